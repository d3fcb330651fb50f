// Package chaintest provides an in-memory wallet that speaks the subset of the
// EIP-1193 protocol used by certanchor, recording every request.
package chaintest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"xdao.co/certanchor/chain"
)

type Call struct {
	Method string
	Params []any
}

// Wallet is a scripted chain.Provider.
//
// Switching to a chain that is not in Known fails with CodeUnrecognizedChain
// until wallet_addEthereumChain adds it. Receipts appear after PendingPolls
// unsuccessful eth_getTransactionReceipt calls.
type Wallet struct {
	mu sync.Mutex

	ChainID      string
	Known        map[string]bool
	Account      string
	TxHash       string
	PendingPolls int
	Reverted     bool
	// Fail makes the named method return the given error.
	Fail map[string]error
	// OnSend runs each time eth_sendTransaction is answered.
	OnSend func()

	calls []Call
	polls int
	sent  []map[string]any
}

var _ chain.Provider = (*Wallet)(nil)

// New returns a wallet on chainID that knows only that chain.
func New(chainID string) *Wallet {
	return &Wallet{
		ChainID: chainID,
		Known:   map[string]bool{strings.ToLower(chainID): true},
		Account: "0x00000000000000000000000000000000000000a1",
		TxHash:  "0x" + strings.Repeat("ab", 32),
		Fail:    map[string]error{},
	}
}

func (w *Wallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, Call{Method: method, Params: params})
	if err := w.Fail[method]; err != nil {
		return nil, err
	}

	switch method {
	case "eth_requestAccounts", "eth_accounts":
		return json.Marshal([]string{w.Account})
	case "eth_chainId":
		return json.Marshal(w.ChainID)
	case "wallet_switchEthereumChain":
		id := strings.ToLower(param(params, "chainId"))
		if !w.Known[id] {
			return nil, &chain.ProviderError{Code: chain.CodeUnrecognizedChain, Message: "Unrecognized chain ID " + id}
		}
		w.ChainID = id
		return json.RawMessage("null"), nil
	case "wallet_addEthereumChain":
		w.Known[strings.ToLower(param(params, "chainId"))] = true
		return json.RawMessage("null"), nil
	case "eth_sendTransaction":
		if len(params) > 0 {
			if tx, ok := params[0].(map[string]any); ok {
				w.sent = append(w.sent, tx)
			}
		}
		if w.OnSend != nil {
			w.OnSend()
		}
		return json.Marshal(w.TxHash)
	case "eth_getTransactionReceipt":
		if w.polls < w.PendingPolls {
			w.polls++
			return json.RawMessage("null"), nil
		}
		status := "0x1"
		if w.Reverted {
			status = "0x0"
		}
		return json.Marshal(map[string]any{
			"transactionHash": w.TxHash,
			"blockNumber":     hexutil.EncodeUint64(16),
			"from":            w.Account,
			"status":          status,
		})
	default:
		return nil, &chain.ProviderError{Code: chain.CodeUnsupportedMethod, Message: fmt.Sprintf("method %s not supported", method)}
	}
}

func param(params []any, key string) string {
	if len(params) == 0 {
		return ""
	}
	switch m := params[0].(type) {
	case map[string]any:
		s, _ := m[key].(string)
		return s
	case map[string]string:
		return m[key]
	}
	return ""
}

// Calls returns the methods requested so far, in order.
func (w *Wallet) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.calls))
	for i, c := range w.calls {
		out[i] = c.Method
	}
	return out
}

// Count returns how many times method was requested.
func (w *Wallet) Count(method string) int {
	n := 0
	for _, m := range w.Calls() {
		if m == method {
			n++
		}
	}
	return n
}

// Sent returns the transaction objects passed to eth_sendTransaction.
func (w *Wallet) Sent() []map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]map[string]any(nil), w.sent...)
}
