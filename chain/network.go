package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"xdao.co/certanchor/cert"
)

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Network describes the chain certificates are anchored on.
type Network struct {
	ChainID        string         `json:"chainId"`
	Name           string         `json:"name"`
	NativeCurrency NativeCurrency `json:"nativeCurrency"`
	RPCURLs        []string       `json:"rpcUrls"`
	ExplorerURLs   []string       `json:"explorerUrls,omitempty"`
}

// HexChainID returns the chain id as 0x-prefixed lowercase hex.
func (n Network) HexChainID() (string, error) {
	id, err := NormalizeChainID(n.ChainID)
	if err != nil {
		return "", err
	}
	return hexutil.EncodeBig(id), nil
}

// AddParams is the wallet_addEthereumChain parameter object.
func (n Network) AddParams() (map[string]any, error) {
	id, err := n.HexChainID()
	if err != nil {
		return nil, err
	}
	p := map[string]any{
		"chainId":   id,
		"chainName": n.Name,
		"nativeCurrency": map[string]any{
			"name":     n.NativeCurrency.Name,
			"symbol":   n.NativeCurrency.Symbol,
			"decimals": n.NativeCurrency.Decimals,
		},
		"rpcUrls": n.RPCURLs,
	}
	if len(n.ExplorerURLs) > 0 {
		p["blockExplorerUrls"] = n.ExplorerURLs
	}
	return p, nil
}

func (n Network) Validate() error {
	if _, err := NormalizeChainID(n.ChainID); err != nil {
		return err
	}
	if n.Name == "" {
		return errors.New("chain: network name is required")
	}
	if len(n.RPCURLs) == 0 {
		return errors.New("chain: at least one rpc url is required")
	}
	return nil
}

// NormalizeChainID parses a chain id given as 0x-hex (any case) or decimal.
func NormalizeChainID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("chain: empty chain id")
	}
	v := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = v.SetString(s[2:], 16)
	} else {
		_, ok = v.SetString(s, 10)
	}
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("chain: invalid chain id %q", s)
	}
	return v, nil
}

// EnsureNetwork puts the wallet on network.
//
// The current chain id is read first and nothing else is sent when it already
// matches. Otherwise the wallet is asked to switch; if it does not know the
// chain (CodeUnrecognizedChain) the chain is added and the switch retried once.
// Every failure is returned as cert.KindNetwork.
func EnsureNetwork(ctx context.Context, p Provider, network Network) error {
	want, err := NormalizeChainID(network.ChainID)
	if err != nil {
		return cert.WrapError(cert.KindNetwork, "invalid required chain id", err)
	}

	raw, err := p.Request(ctx, "eth_chainId")
	if err != nil {
		return cert.WrapError(cert.KindNetwork, "could not read wallet chain id", err)
	}
	var current string
	if err := json.Unmarshal(raw, &current); err != nil {
		return cert.WrapError(cert.KindNetwork, "unexpected eth_chainId result", err)
	}
	if got, err := NormalizeChainID(current); err == nil && got.Cmp(want) == 0 {
		return nil
	}

	switchParams := map[string]any{"chainId": hexutil.EncodeBig(want)}
	_, err = p.Request(ctx, "wallet_switchEthereumChain", switchParams)
	if err == nil {
		return nil
	}
	if CodeOf(err) != CodeUnrecognizedChain {
		return cert.WrapError(cert.KindNetwork, "wallet refused to switch network", err)
	}

	add, err := network.AddParams()
	if err != nil {
		return cert.WrapError(cert.KindNetwork, "invalid network descriptor", err)
	}
	if _, err := p.Request(ctx, "wallet_addEthereumChain", add); err != nil {
		return cert.WrapError(cert.KindNetwork, "wallet refused to add network", err)
	}
	if _, err := p.Request(ctx, "wallet_switchEthereumChain", switchParams); err != nil {
		return cert.WrapError(cert.KindNetwork, "wallet refused to switch network after adding it", err)
	}
	return nil
}
