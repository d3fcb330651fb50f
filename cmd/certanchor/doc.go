package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"xdao.co/certanchor/cidutil"
	"xdao.co/certanchor/document"
	"xdao.co/certanchor/keys"
)

func readDocument(path string) (*document.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return document.Decode(b)
}

func cmdDocCID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("doc-cid", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: certanchor doc-cid <document.json>")
		return 2
	}
	d, err := readDocument(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid document: %v\n", err)
		return 1
	}
	b, err := d.Encode()
	if err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, cidutil.DocumentCIDString(b))
	return 0
}

func cmdPublish(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common casFlags
	common.add(fs)

	var keysDir, root, orgID, alg, hashAlg string
	fs.StringVar(&keysDir, "keys-dir", "", "Key store directory (default ~/.certanchor/keys)")
	fs.StringVar(&root, "root", "", "Root key name; signs the document when set")
	fs.StringVar(&orgID, "org", "", "Organization key under --root (default: the document's organizationId)")
	fs.StringVar(&alg, "alg", "ed25519", "Signature algorithm")
	fs.StringVar(&hashAlg, "hash-alg", "sha256", "Hash algorithm")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: certanchor publish [cas flags] [--root <name> [--org <id>]] <document.json>")
		return 2
	}

	d, err := readDocument(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid document: %v\n", err)
		return 1
	}
	if root != "" {
		if orgID == "" {
			orgID = d.OrganizationID
		}
		ks, err := keys.OpenKeyStore(keysDir)
		if err != nil {
			fmt.Fprintf(errOut, "keys: %v\n", err)
			return 1
		}
		signer, err := ks.Signer(root, orgID, alg, hashAlg)
		if err != nil {
			fmt.Fprintf(errOut, "signer: %v\n", err)
			return 1
		}
		if err := d.Sign(signer); err != nil {
			fmt.Fprintf(errOut, "sign: %v\n", err)
			return 1
		}
	}

	cas, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	ctx, cancel := commandContext()
	defer cancel()
	id, err := document.Publish(ctx, cas, *d)
	if err != nil {
		fmt.Fprintf(errOut, "publish: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common casFlags
	common.add(fs)

	var cidStr string
	var outPath string
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if cidStr == "" {
		fmt.Fprintln(errOut, "missing --cid")
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: certanchor get [cas flags] --cid <cid> [--out <file>]")
		return 2
	}
	id, err := cidutil.Parse(cidStr)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --cid: %v\n", err)
		return 2
	}

	cas, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	ctx, cancel := commandContext()
	defer cancel()
	b, err := cas.Get(ctx, id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", filepath.Base(outPath), err)
		return 1
	}
	return 0
}
