package main

import (
	"flag"
	"fmt"
	"io"

	"xdao.co/certanchor/keys"
)

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "certanchor key: local organization signing keys")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  certanchor key init --root <name> [--seed-hex <64hex>] [--alg ed25519|dilithium3] [--force]")
	fmt.Fprintln(w, "  certanchor key derive --root <name> --org <id> [--alg ed25519|dilithium3] [--force]")
	fmt.Fprintln(w, "  certanchor key list")
	fmt.Fprintln(w, "  certanchor key export --root <name> [--org <id>] [--alg ed25519|dilithium3]")
}

type keyFlags struct {
	dir string
	alg string
}

func (k *keyFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&k.dir, "dir", "", "Key store directory (default ~/.certanchor/keys)")
	fs.StringVar(&k.alg, "alg", "ed25519", "Signature algorithm for the printed issuer key")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var kf keyFlags
	kf.add(fs)

	var root string
	var seedHex string
	var force bool
	fs.StringVar(&root, "root", "", "Root key name")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional 32-byte seed as 64 hex chars (for reproducible setups)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if root == "" {
		fmt.Fprintln(errOut, "missing --root")
		return 2
	}
	if err := keys.CheckKeyName(root); err != nil {
		fmt.Fprintf(errOut, "invalid --root: %v\n", err)
		return 2
	}

	var seed []byte
	var err error
	if seedHex != "" {
		seed, err = keys.ParseSeedHex(seedHex)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else if seed, err = keys.NewSeed(); err != nil {
		fmt.Fprintf(errOut, "rand: %v\n", err)
		return 1
	}

	ks, err := keys.OpenKeyStore(kf.dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	issuerKey, path, err := ks.InitRoot(root, seed, kf.alg, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", issuerKey)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var kf keyFlags
	kf.add(fs)

	var root string
	var orgID string
	var force bool
	fs.StringVar(&root, "root", "", "Root key name")
	fs.StringVar(&orgID, "org", "", "Organization id")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if root == "" || orgID == "" {
		fmt.Fprintln(errOut, "usage: certanchor key derive --root <name> --org <id> [--force]")
		return 2
	}
	if err := keys.CheckKeyName(orgID); err != nil {
		fmt.Fprintf(errOut, "invalid --org: %v\n", err)
		return 2
	}
	ks, err := keys.OpenKeyStore(kf.dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	issuerKey, path, err := ks.DeriveOrg(root, orgID, kf.alg, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive organization key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created organization key: %s\n", issuerKey)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var kf keyFlags
	kf.add(fs)

	var root string
	var orgID string
	fs.StringVar(&root, "root", "", "Root key name")
	fs.StringVar(&orgID, "org", "", "Optional organization id (exports the derived key)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if root == "" {
		fmt.Fprintln(errOut, "missing --root")
		return 2
	}
	ks, err := keys.OpenKeyStore(kf.dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	issuerKey, err := ks.Export(root, orgID, kf.alg)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, issuerKey)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var dir string
	fs.StringVar(&dir, "dir", "", "Key store directory (default ~/.certanchor/keys)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := keys.OpenKeyStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	entries, err := ks.List()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Root)
		for _, org := range e.Organizations {
			fmt.Fprintf(out, "  - %s\n", org)
		}
	}
	return 0
}
