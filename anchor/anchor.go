// Package anchor writes signed certificates to the registry contract through
// a wallet provider and waits for the transaction to be mined.
package anchor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/chain"
	"xdao.co/certanchor/contract"
)

const (
	DefaultPollInterval = 2 * time.Second
	// DefaultReceiptTimeout bounds the receipt wait once a transaction is sent.
	DefaultReceiptTimeout = 5 * time.Minute
)

type Config struct {
	Network         chain.Network
	ContractAddress string
	// Binding defaults to contract.Default().
	Binding      *contract.Binding
	PollInterval time.Duration
	// ReceiptTimeout defaults to DefaultReceiptTimeout.
	ReceiptTimeout time.Duration
	Logger         *zap.Logger
}

// Adapter submits certificates to the contract. It holds no per-call state.
type Adapter struct {
	network  chain.Network
	contract string
	binding  *contract.Binding
	poll     time.Duration
	wait     time.Duration
	log      *zap.Logger
}

// Receipt identifies the mined transaction.
type Receipt struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	From        string `json:"from"`
}

func New(cfg Config) *Adapter {
	b := cfg.Binding
	if b == nil {
		b = contract.Default()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	wait := cfg.ReceiptTimeout
	if wait <= 0 {
		wait = DefaultReceiptTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		network:  cfg.Network,
		contract: strings.TrimSpace(cfg.ContractAddress),
		binding:  b,
		poll:     poll,
		wait:     wait,
		log:      log.With(zap.String("component", "anchor")),
	}
}

// Preconditions returns a MissingFields error naming every field c lacks for
// anchoring, or nil.
func (a *Adapter) Preconditions(c cert.Certificate) error {
	var missing []string
	if !validContract(a.contract) {
		missing = append(missing, "contractAddress")
	}
	add := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	add("id", c.ID)
	add("organizationId", c.OrganizationID)
	add("certificateTypeId", c.CertificateTypeID)
	add("authorProfile.idCard", c.AuthorProfile.IDCard)
	add("authorProfile.countryCode", c.AuthorProfile.CountryCode)
	if _, ok := c.AuthorProfile.GrantLevelValue(); !ok {
		missing = append(missing, "authorProfile.grantLevel")
	}
	if c.ValidTo == nil || c.ValidTo.Unix() <= 0 {
		missing = append(missing, "validTo")
	}
	add("certificateHash", c.CertificateHash)
	return cert.MissingFields(missing...)
}

func validContract(addr string) bool {
	if !common.IsHexAddress(addr) {
		return false
	}
	return common.HexToAddress(addr) != (common.Address{})
}

// Submit anchors c and returns the mined receipt.
//
// Steps run strictly in order: account access, network gate, call encoding,
// eth_sendTransaction, receipt polling. Nothing is sent to the wallet when a
// precondition fails. Wallet errors are classified with chain.Classify.
//
// Once the wallet returns a transaction hash, cancelling ctx no longer stops
// the receipt wait; only the adapter's receipt timeout does.
func (a *Adapter) Submit(ctx context.Context, c cert.Certificate, p chain.Provider) (Receipt, error) {
	if err := a.Preconditions(c); err != nil {
		return Receipt{}, err
	}
	if p == nil {
		return Receipt{}, cert.NewError(cert.KindGeneric, "no wallet provider")
	}
	log := a.log.With(zap.String("certificate_id", c.ID), zap.String("code", c.Code))

	raw, err := p.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return Receipt{}, chain.Classify(err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil || len(accounts) == 0 {
		return Receipt{}, cert.NewError(cert.KindGeneric, "wallet returned no accounts")
	}
	from := accounts[0]

	if err := chain.EnsureNetwork(ctx, p, a.network); err != nil {
		return Receipt{}, err
	}

	level, _ := c.AuthorProfile.GrantLevelValue()
	data, err := a.binding.PackSubmit(contract.SubmitArgs{
		Code:              c.Code,
		OrganizationID:    c.OrganizationID,
		CertificateTypeID: c.CertificateTypeID,
		HolderIDCard:      c.AuthorProfile.IDCard,
		HolderCountryCode: c.AuthorProfile.CountryCode,
		GrantLevel:        new(big.Int).SetUint64(level),
		Expiry:            big.NewInt(c.ValidTo.Unix()),
		CertificateHash:   c.CertificateHash,
	})
	if err != nil {
		return Receipt{}, cert.WrapError(cert.KindGeneric, "encode submitCertificate", err)
	}

	raw, err = p.Request(ctx, "eth_sendTransaction", map[string]any{
		"from": from,
		"to":   common.HexToAddress(a.contract).Hex(),
		"data": hexutil.Encode(data),
	})
	if err != nil {
		log.Warn("submit rejected", zap.Error(err))
		return Receipt{}, chain.Classify(err)
	}
	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil || txHash == "" {
		return Receipt{}, cert.NewError(cert.KindGeneric, "wallet returned no transaction hash")
	}
	log.Info("transaction sent", zap.String("tx_hash", txHash), zap.String("from", from))

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.wait)
	defer cancel()
	rcpt, err := a.waitMined(wctx, p, txHash)
	if err != nil {
		log.Error("transaction not confirmed", zap.String("tx_hash", txHash), zap.Error(err))
		return Receipt{}, err
	}
	log.Info("certificate anchored", zap.String("tx_hash", rcpt.TxHash), zap.Uint64("block", rcpt.BlockNumber))
	return rcpt, nil
}

type rpcReceipt struct {
	TransactionHash string          `json:"transactionHash"`
	BlockNumber     *hexutil.Uint64 `json:"blockNumber"`
	From            string          `json:"from"`
	Status          *hexutil.Uint64 `json:"status"`
}

func (a *Adapter) waitMined(ctx context.Context, p chain.Provider, txHash string) (Receipt, error) {
	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()
	for {
		raw, err := p.Request(ctx, "eth_getTransactionReceipt", txHash)
		if err != nil {
			return Receipt{}, chain.Classify(err)
		}
		if len(raw) > 0 && string(raw) != "null" {
			var r rpcReceipt
			if err := json.Unmarshal(raw, &r); err != nil {
				return Receipt{}, cert.WrapError(cert.KindGeneric, "decode receipt", err)
			}
			if r.BlockNumber != nil {
				if r.Status == nil || uint64(*r.Status) != 1 {
					return Receipt{}, cert.NewError(cert.KindGeneric, fmt.Sprintf("transaction %s reverted", txHash))
				}
				hash := r.TransactionHash
				if hash == "" {
					hash = txHash
				}
				return Receipt{TxHash: hash, BlockNumber: uint64(*r.BlockNumber), From: r.From}, nil
			}
		}

		select {
		case <-ctx.Done():
			return Receipt{}, cert.WrapError(cert.KindGeneric, "stopped waiting for transaction "+txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}
