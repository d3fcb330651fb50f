// Package chain talks to a wallet through the EIP-1193 request protocol and
// makes sure the wallet is on the configured network before anything is written.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// Wallet error codes from EIP-1193 and EIP-3326.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
)

// Provider is a wallet handle. Implementations must be safe for sequential
// use; callers never issue overlapping writes through one provider.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// ProviderError is a wallet or node error carrying its numeric code.
//
// Reason holds a symbolic code when the wallet sends one (e.g.
// "INSUFFICIENT_FUNDS", "ACTION_REJECTED").
type ProviderError struct {
	Code    int
	Reason  string
	Message string
	Data    any
}

func (e *ProviderError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// CodeOf returns the provider error code of err, or 0.
func CodeOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}

// RPCProvider is a Provider over a JSON-RPC endpoint that manages accounts
// (a signer service, a node with unlocked accounts, or a wallet bridge).
type RPCProvider struct {
	client *rpc.Client
}

var _ Provider = (*RPCProvider)(nil)

func DialRPC(ctx context.Context, url string) (*RPCProvider, error) {
	if url == "" {
		return nil, errors.New("chain: wallet rpc url is required")
	}
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	return &RPCProvider{client: c}, nil
}

func NewRPCProvider(c *rpc.Client) *RPCProvider { return &RPCProvider{client: c} }

func (p *RPCProvider) Close() {
	if p != nil && p.client != nil {
		p.client.Close()
	}
}

func (p *RPCProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := p.client.CallContext(ctx, &out, method, params...); err != nil {
		return nil, fromRPC(err)
	}
	return out, nil
}

func fromRPC(err error) error {
	var re rpc.Error
	if !errors.As(err, &re) {
		return err
	}
	pe := &ProviderError{Code: re.ErrorCode(), Message: re.Error()}
	var de rpc.DataError
	if errors.As(err, &de) {
		pe.Data = de.ErrorData()
		if m, ok := pe.Data.(map[string]any); ok {
			if r, ok := m["reason"].(string); ok {
				pe.Reason = r
			}
		}
	}
	return pe
}
