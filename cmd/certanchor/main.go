package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"xdao.co/certanchor/storage"
	"xdao.co/certanchor/storage/casregistry"

	_ "xdao.co/certanchor/storage/gateway"
	_ "xdao.co/certanchor/storage/grpccas"
	_ "xdao.co/certanchor/storage/ipfs"
	_ "xdao.co/certanchor/storage/localfs"
)

const commandTimeout = 2 * time.Minute

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "doc-cid":
		return cmdDocCID(args[1:], out, errOut)
	case "publish":
		return cmdPublish(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "resolve":
		return cmdResolve(args[1:], out, errOut)
	case "stats":
		return cmdStats(args[1:], out, errOut)
	case "network":
		return cmdNetwork(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "certanchor: certificate anchoring tools")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  certanchor doc-cid <document.json>")
	fmt.Fprintln(w, "  certanchor publish [cas flags] [--keys-dir <dir> --root <name> [--org <id>]] <document.json>")
	fmt.Fprintln(w, "  certanchor get [cas flags] --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  certanchor resolve [cas flags] --rpc <url> --contract <0x..> --code <code> [--abi <file>] [--mode permissive|strict]")
	fmt.Fprintln(w, "  certanchor stats --records-url <url> [--token <jwt>] --start <YYYY-MM-DD> --end <YYYY-MM-DD> [--org <id>] [--issuer <id>]")
	fmt.Fprintln(w, "  certanchor network ensure --wallet-rpc <url> --chain-id <id> --name <name> --rpc-url <url> [--symbol <sym>]")
	fmt.Fprintln(w, "  certanchor key init --root <name> [--seed-hex <64hex>] [--alg ed25519|dilithium3] [--force]")
	fmt.Fprintln(w, "  certanchor key derive --root <name> --org <id> [--force]")
	fmt.Fprintln(w, "  certanchor key list")
	fmt.Fprintln(w, "  certanchor key export --root <name> [--org <id>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - cas flags: --backend <name> plus backend flags; --list-backends prints them")
	fmt.Fprintln(w, "  - doc-cid prints the CID publish would store the document under")
	fmt.Fprintln(w, "  - key commands accept --dir (default ~/.certanchor/keys)")
}

type casFlags struct {
	backend      string
	listBackends bool
	options      *casregistry.Flags
}

func (c *casFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "CAS backend name")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	c.options = casregistry.BindFlags(fs, casregistry.UsageCLI)
}

func (c *casFlags) open() (storage.CAS, func() error, error) {
	return c.options.Open(c.backend)
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
		for _, o := range b.Options {
			_, _ = fmt.Fprintf(w, "  --%s\t%s\n", b.FlagName(o.Key), o.Help)
		}
	}
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}
