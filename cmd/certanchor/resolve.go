package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/ethclient"

	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/compliance"
	"xdao.co/certanchor/contract"
	"xdao.co/certanchor/resolver"
)

func cmdResolve(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common casFlags
	common.add(fs)

	var rpcURL, contractAddr, code, abiFile, mode string
	fs.StringVar(&rpcURL, "rpc", "", "JSON-RPC endpoint for contract reads")
	fs.StringVar(&contractAddr, "contract", "", "Anchoring contract address")
	fs.StringVar(&code, "code", "", "Certificate code")
	fs.StringVar(&abiFile, "abi", "", "Contract ABI JSON (default: built-in)")
	fs.StringVar(&mode, "mode", "permissive", "Compliance mode: permissive|strict")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if rpcURL == "" || contractAddr == "" || code == "" {
		fmt.Fprintln(errOut, "usage: certanchor resolve [cas flags] --rpc <url> --contract <0x..> --code <code>")
		return 2
	}
	m, err := compliance.ParseMode(mode)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --mode: %v\n", err)
		return 2
	}
	binding := contract.Default()
	if abiFile != "" {
		if binding, err = contract.Load(abiFile); err != nil {
			fmt.Fprintf(errOut, "load abi: %v\n", err)
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
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		fmt.Fprintf(errOut, "dial %s: %v\n", rpcURL, err)
		return 1
	}
	defer client.Close()

	res, err := resolver.New(resolver.Config{
		Caller:          client,
		ContractAddress: contractAddr,
		Binding:         binding,
		CAS:             cas,
		Options:         resolver.Options{Mode: m},
	})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	r, err := res.Resolve(ctx, code)
	if err != nil {
		fmt.Fprintf(errOut, "%s: %s\n", cert.KindOf(err), cert.UserMessage(err))
		return 1
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}
