// Package resolver reconstructs a certificate's public record from its code:
// contract read, content hash, document fetch and issuer signature check.
package resolver

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/cidutil"
	"xdao.co/certanchor/compliance"
	"xdao.co/certanchor/contract"
	"xdao.co/certanchor/document"
	"xdao.co/certanchor/storage"
)

// Caller performs read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Options controls resolver compliance behavior.
//
// Default behavior is Permissive when Options{} is used.
type Options struct {
	Mode compliance.ComplianceMode
}

type Config struct {
	Caller          Caller
	ContractAddress string
	Binding         *contract.Binding
	CAS             storage.Reader
	Options         Options
	Logger          *zap.Logger
}

type Resolver struct {
	caller   Caller
	contract common.Address
	binding  *contract.Binding
	cas      storage.Reader
	opts     Options
	log      *zap.Logger
}

// Resolution is the public view of an anchored certificate.
type Resolution struct {
	Code            string             `json:"code"`
	CertificateHash string             `json:"certificateHash"`
	Document        *document.Document `json:"document"`
	Signed          bool               `json:"signed"`
	Verified        bool               `json:"verified"`
	VerifyError     string             `json:"verifyError,omitempty"`
}

func New(cfg Config) (*Resolver, error) {
	if cfg.Caller == nil {
		return nil, errors.New("resolver: caller is required")
	}
	if cfg.CAS == nil {
		return nil, errors.New("resolver: CAS is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, errors.New("resolver: invalid contract address")
	}
	b := cfg.Binding
	if b == nil {
		b = contract.Default()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		caller:   cfg.Caller,
		contract: common.HexToAddress(cfg.ContractAddress),
		binding:  b,
		cas:      cfg.CAS,
		opts:     cfg.Options,
		log:      log.With(zap.String("component", "resolver")),
	}, nil
}

// Resolve looks code up on chain and returns the anchored document.
//
// Errors: NotFound when the contract has no record for code (reverted call,
// empty return data or an empty record), NotAnchored when the record exists
// without a content hash, ContentUnavailable when the hash cannot be turned
// into a verified, parseable document.
func (r *Resolver) Resolve(ctx context.Context, code string) (*Resolution, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, cert.NewError(cert.KindNotFound, "empty certificate code")
	}
	log := r.log.With(zap.String("code", code))

	rec, err := r.read(ctx, code)
	if err != nil {
		return nil, err
	}
	if rec.Empty() {
		return nil, cert.NewError(cert.KindNotFound, "no certificate recorded for "+code)
	}
	if rec.CertificateHash == "" {
		return nil, cert.NewError(cert.KindNotAnchored, "certificate "+code+" has no content hash")
	}

	id, err := cidutil.Parse(rec.CertificateHash)
	if err != nil {
		return nil, cert.WrapError(cert.KindContentUnavailable, "content hash is not a CID", err)
	}
	b, err := r.cas.Get(ctx, id)
	if err != nil {
		log.Warn("content fetch failed", zap.String("cid", id.String()), zap.Error(err))
		return nil, cert.WrapError(cert.KindContentUnavailable, "fetch "+id.String(), err)
	}
	doc, err := document.Decode(b)
	if err != nil {
		return nil, cert.WrapError(cert.KindContentUnavailable, "parse "+id.String(), err)
	}
	if doc.Code != code {
		return nil, cert.NewError(cert.KindContentUnavailable, "document code does not match "+code)
	}

	res := &Resolution{
		Code:            code,
		CertificateHash: id.String(),
		Document:        doc,
		Signed:          doc.Issuer != nil && doc.Issuer.Signature != "",
	}
	if verr := doc.Verify(); verr == nil {
		res.Verified = true
	} else {
		res.VerifyError = verr.Error()
		if r.opts.Mode == compliance.Strict {
			return nil, cert.WrapError(cert.KindContentUnavailable, "issuer signature", verr)
		}
	}
	log.Debug("resolved", zap.String("cid", res.CertificateHash), zap.Bool("verified", res.Verified))
	return res, nil
}

func (r *Resolver) read(ctx context.Context, code string) (contract.Record, error) {
	data, err := r.binding.PackGet(code)
	if err != nil {
		return contract.Record{}, cert.WrapError(cert.KindGeneric, "encode getCertificate", err)
	}
	to := r.contract
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return contract.Record{}, cert.WrapError(cert.KindNotFound, "no certificate recorded for "+code, err)
		}
		return contract.Record{}, cert.WrapError(cert.KindGeneric, "getCertificate call failed", err)
	}
	if len(out) == 0 {
		return contract.Record{}, cert.NewError(cert.KindNotFound, "no certificate recorded for "+code)
	}
	rec, err := r.binding.UnpackGet(out)
	if err != nil {
		return contract.Record{}, cert.WrapError(cert.KindGeneric, "decode getCertificate", err)
	}
	return rec, nil
}

func isRevert(err error) bool {
	var re rpc.Error
	if errors.As(err, &re) && re.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
