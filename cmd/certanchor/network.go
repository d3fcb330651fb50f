package main

import (
	"flag"
	"fmt"
	"io"

	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/chain"
)

type stringList []string

func (s *stringList) String() string { return fmt.Sprint(*s) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdNetwork(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "ensure" {
		fmt.Fprintln(errOut, "usage: certanchor network ensure --wallet-rpc <url> --chain-id <id> --name <name> --rpc-url <url> [--rpc-url ...]")
		return 2
	}
	fs := flag.NewFlagSet("network ensure", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var walletRPC string
	var network chain.Network
	var rpcURLs, explorers stringList
	fs.StringVar(&walletRPC, "wallet-rpc", "", "Wallet JSON-RPC endpoint")
	fs.StringVar(&network.ChainID, "chain-id", "", "Required chain id (decimal or 0x hex)")
	fs.StringVar(&network.Name, "name", "", "Chain name")
	fs.StringVar(&network.NativeCurrency.Name, "currency", "", "Native currency name (default: --symbol)")
	fs.StringVar(&network.NativeCurrency.Symbol, "symbol", "ETH", "Native currency symbol")
	fs.IntVar(&network.NativeCurrency.Decimals, "decimals", 18, "Native currency decimals")
	fs.Var(&rpcURLs, "rpc-url", "Public RPC URL for the chain (repeatable)")
	fs.Var(&explorers, "explorer-url", "Block explorer URL (repeatable)")

	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if network.NativeCurrency.Name == "" {
		network.NativeCurrency.Name = network.NativeCurrency.Symbol
	}
	network.RPCURLs = rpcURLs
	network.ExplorerURLs = explorers
	if walletRPC == "" {
		fmt.Fprintln(errOut, "missing --wallet-rpc")
		return 2
	}
	if err := network.Validate(); err != nil {
		fmt.Fprintf(errOut, "invalid network: %v\n", err)
		return 2
	}

	ctx, cancel := commandContext()
	defer cancel()
	p, err := chain.DialRPC(ctx, walletRPC)
	if err != nil {
		fmt.Fprintf(errOut, "dial %s: %v\n", walletRPC, err)
		return 1
	}
	defer p.Close()

	if err := chain.EnsureNetwork(ctx, p, network); err != nil {
		fmt.Fprintf(errOut, "%s: %s\n", cert.KindOf(err), cert.UserMessage(err))
		return 1
	}
	_, _ = fmt.Fprintln(out, "OK")
	return 0
}
