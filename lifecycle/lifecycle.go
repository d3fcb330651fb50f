// Package lifecycle drives certificates through CREATED, SIGNED, VERIFIED and
// REVOKED.
//
// The orchestrator is stateless: it never caches status and always acts on
// the certificate it is handed (or loads it fresh by id). Each request is
// checked against the transition table in package cert before any network
// call is made.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"xdao.co/certanchor/anchor"
	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/chain"
	"xdao.co/certanchor/events"
	"xdao.co/certanchor/recordstore"
	"xdao.co/certanchor/storage"
)

// Anchorer writes a certificate to the chain. *anchor.Adapter implements it.
type Anchorer interface {
	Submit(ctx context.Context, c cert.Certificate, p chain.Provider) (anchor.Receipt, error)
}

type Config struct {
	Store  recordstore.Store
	Anchor Anchorer
	// CAS receives the metadata documents built by Create.
	CAS storage.CAS
	// Signers is optional; without it documents are published unsigned.
	Signers SignerSource
	Events  events.Publisher
	Logger  *zap.Logger
}

type Orchestrator struct {
	store   recordstore.Store
	anchor  Anchorer
	cas     storage.CAS
	signers SignerSource
	events  events.Publisher
	log     *zap.Logger
}

func New(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pub := cfg.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &Orchestrator{
		store:   cfg.Store,
		anchor:  cfg.Anchor,
		cas:     cfg.CAS,
		signers: cfg.Signers,
		events:  pub,
		log:     log.With(zap.String("component", "lifecycle")),
	}
}

// Request asks for one transition. Wallet is only used by sign; Reason is
// only used by revoke.
type Request struct {
	Action cert.Action
	Actor  cert.Actor
	Reason string
	Wallet chain.Provider
}

// Transition loads the certificate by id and requests the transition on it.
func (o *Orchestrator) Transition(ctx context.Context, id string, req Request) (*cert.Certificate, error) {
	c, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.RequestTransition(ctx, &c, req)
}

// Actions returns the actions actor may request on the certificate id.
func (o *Orchestrator) Actions(ctx context.Context, id string, actor cert.Actor) (*cert.Certificate, []cert.Action, error) {
	c, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return &c, cert.AvailableActions(&c, actor), nil
}

// RequestTransition performs req on c and returns the updated record.
//
// c itself is never modified. A rejected request (wrong status, wrong role,
// blank revoke reason) has no side effect. No step is retried.
func (o *Orchestrator) RequestTransition(ctx context.Context, c *cert.Certificate, req Request) (*cert.Certificate, error) {
	rule, err := cert.Authorize(c, req.Action, req.Actor)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if rule.RequiresReason && reason == "" {
		return nil, cert.NewError(cert.KindMissingReason, "revocation reason is empty")
	}

	log := o.log.With(
		zap.String("certificate_id", c.ID),
		zap.String("action", string(req.Action)),
		zap.String("actor", req.Actor.ID),
	)

	var (
		out    cert.Certificate
		txHash string
	)
	switch req.Action {
	case cert.ActionSign:
		out, txHash, err = o.sign(ctx, *c, req.Wallet, log)
	case cert.ActionApprove:
		out, err = o.store.Approve(ctx, c.ID)
	case cert.ActionRevoke:
		out, err = o.store.Revoke(ctx, c.ID, reason)
	default:
		err = cert.NewError(cert.KindInvalidTransition, fmt.Sprintf("unknown action %q", req.Action))
	}
	if err == nil {
		err = checkStored(rule, *c, out, txHash)
	}
	if err != nil {
		log.Warn("transition failed", zap.String("kind", string(cert.KindOf(err))), zap.Error(err))
		return nil, err
	}
	log.Info("transition completed", zap.String("status", string(out.Status)))

	if typ, ok := events.TypeFor(req.Action); ok {
		o.publish(ctx, events.New(typ, out, req.Actor.ID))
	}
	return &out, nil
}

// recordTimeout bounds the record update that follows a mined transaction.
const recordTimeout = 30 * time.Second

func (o *Orchestrator) sign(ctx context.Context, c cert.Certificate, wallet chain.Provider, log *zap.Logger) (cert.Certificate, string, error) {
	if wallet == nil {
		return cert.Certificate{}, "", cert.NewError(cert.KindGeneric, "signing requires a wallet")
	}
	if o.anchor == nil {
		return cert.Certificate{}, "", cert.NewError(cert.KindGeneric, "anchoring is not configured")
	}
	rcpt, err := o.anchor.Submit(ctx, c, wallet)
	if err != nil {
		return cert.Certificate{}, "", err
	}

	// The transaction is mined; the record follows it even if the caller left.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	status := cert.StatusSigned
	txHash := rcpt.TxHash
	out, err := o.store.Update(uctx, c.ID, cert.Patch{Status: &status, SignedTxHash: &txHash})
	if err != nil {
		// The chain write is final; the record must be reconciled by hand.
		log.Error("anchored but record update failed",
			zap.String("tx_hash", txHash),
			zap.Uint64("block", rcpt.BlockNumber),
			zap.Error(err))
		return cert.Certificate{}, "", cert.WrapError(cert.KindGeneric,
			fmt.Sprintf("transaction %s was mined but the record was not updated", txHash), err)
	}
	return out, txHash, nil
}

// checkStored compares the record returned by the store with what rule
// produces from before. The status must match and no tx hash may be lost.
func checkStored(rule cert.Rule, before, stored cert.Certificate, txHash string) error {
	want := rule.Apply(before, txHash)
	if stored.Status != want.Status {
		return cert.NewError(cert.KindGeneric,
			fmt.Sprintf("record store returned status %s after %s, want %s", stored.Status, rule.Action, want.Status))
	}
	hashes := []struct{ name, want, got string }{
		{"signedTxHash", want.SignedTxHash, stored.SignedTxHash},
		{"approvedTxHash", want.ApprovedTxHash, stored.ApprovedTxHash},
		{"revokedTxHash", want.RevokedTxHash, stored.RevokedTxHash},
	}
	for _, h := range hashes {
		if h.want != "" && h.got != h.want {
			return cert.NewError(cert.KindGeneric,
				fmt.Sprintf("record store returned %s %q, want %q", h.name, h.got, h.want))
		}
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if err := o.events.Publish(ctx, ev); err != nil {
		o.log.Warn("publish event failed",
			zap.String("type", string(ev.Type)),
			zap.String("certificate_id", ev.CertificateID),
			zap.Error(err))
	}
}
