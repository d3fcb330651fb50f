package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"xdao.co/certanchor/anchor"
	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/chain"
	"xdao.co/certanchor/chain/chaintest"
	"xdao.co/certanchor/cidutil"
	"xdao.co/certanchor/document"
	"xdao.co/certanchor/events"
	"xdao.co/certanchor/keys"
	"xdao.co/certanchor/storage/memcas"
)

const contractAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

var network = chain.Network{
	ChainID:        "0x13882",
	Name:           "Polygon Amoy",
	NativeCurrency: chain.NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
	RPCURLs:        []string{"https://rpc-amoy.polygon.technology"},
}

var (
	owner  = cert.Actor{ID: "u-owner", OrganizationID: "org-1", IsOwner: true}
	issuer = cert.Actor{ID: "u-issuer", OrganizationID: "org-1"}
)

func record(status cert.Status) cert.Certificate {
	level := 1.0
	to := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	return cert.Certificate{
		ID:                "c-1",
		Code:              "CERT-0001",
		Status:            status,
		CertificateTypeID: "type-1",
		OrganizationID:    "org-1",
		IssuerID:          "u-issuer",
		ValidTo:           &to,
		CertificateHash:   "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy",
		AuthorProfile:     cert.AuthorProfile{Name: "Ada", IDCard: "079200001234", CountryCode: "VN", GrantLevel: &level},
	}
}

type fixture struct {
	store  *memStore
	wallet *chaintest.Wallet
	events *events.Memory
	cas    *memcas.CAS
	orch   *Orchestrator
}

func newFixture(cs ...cert.Certificate) *fixture {
	f := &fixture{
		store:  newMemStore(cs...),
		wallet: chaintest.New(network.ChainID),
		events: &events.Memory{},
		cas:    memcas.New(),
	}
	f.orch = New(Config{
		Store:  f.store,
		Anchor: anchor.New(anchor.Config{Network: network, ContractAddress: contractAddr, PollInterval: time.Millisecond}),
		CAS:    f.cas,
		Events: f.events,
	})
	return f
}

func TestRequestTransition_WrongStatusHasNoSideEffects(t *testing.T) {
	cases := []struct {
		status cert.Status
		action cert.Action
	}{
		{cert.StatusSigned, cert.ActionSign},
		{cert.StatusCreated, cert.ActionApprove},
		{cert.StatusRevoked, cert.ActionRevoke},
		{cert.StatusSigned, cert.ActionRevoke},
	}
	for _, tc := range cases {
		c := record(tc.status)
		c.SignedTxHash = "0xkept"
		before := c
		f := newFixture(c)

		_, err := f.orch.RequestTransition(context.Background(), &c, Request{
			Action: tc.action, Actor: owner, Reason: "because", Wallet: f.wallet,
		})
		if !cert.IsKind(err, cert.KindInvalidTransition) {
			t.Fatalf("%s from %s: got %v want InvalidTransition", tc.action, tc.status, err)
		}
		if !reflect.DeepEqual(c, before) {
			t.Fatalf("%s from %s: certificate modified: %+v", tc.action, tc.status, c)
		}
		if stored := f.store.certs[c.ID]; stored.Status != tc.status || stored.SignedTxHash != "0xkept" {
			t.Fatalf("%s from %s: stored record changed: %+v", tc.action, tc.status, stored)
		}
		if len(f.store.Calls()) != 0 || len(f.wallet.Calls()) != 0 || len(f.events.Events()) != 0 {
			t.Fatalf("%s from %s: side effects store=%v wallet=%v", tc.action, tc.status, f.store.Calls(), f.wallet.Calls())
		}
	}
}

func TestRequestTransition_BlankRevokeReason(t *testing.T) {
	for _, reason := range []string{"", "   ", "\t\n"} {
		c := record(cert.StatusVerified)
		f := newFixture(c)
		_, err := f.orch.RequestTransition(context.Background(), &c, Request{Action: cert.ActionRevoke, Actor: owner, Reason: reason})
		if !cert.IsKind(err, cert.KindMissingReason) {
			t.Fatalf("reason %q: got %v want MissingReason", reason, err)
		}
		if calls := f.store.Calls(); len(calls) != 0 {
			t.Fatalf("reason %q: store called %v", reason, calls)
		}
	}
}

func TestRequestTransition_SignRoundTrip(t *testing.T) {
	c := record(cert.StatusCreated)
	f := newFixture(c)
	f.wallet.PendingPolls = 2

	out, err := f.orch.RequestTransition(context.Background(), &c, Request{Action: cert.ActionSign, Actor: issuer, Wallet: f.wallet})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if out.Status != cert.StatusSigned {
		t.Fatalf("status = %s want SIGNED", out.Status)
	}
	if out.SignedTxHash != f.wallet.TxHash {
		t.Fatalf("signedTxHash = %s want %s", out.SignedTxHash, f.wallet.TxHash)
	}
	if out.CertificateHash != c.CertificateHash {
		t.Fatalf("certificateHash changed: %s", out.CertificateHash)
	}
	if c.Status != cert.StatusCreated {
		t.Fatalf("input certificate mutated: %s", c.Status)
	}
	if got := f.store.Calls(); !reflect.DeepEqual(got, []string{"update"}) {
		t.Fatalf("store calls = %v", got)
	}
	evs := f.events.Events()
	if len(evs) != 1 || evs[0].Type != events.TypeSigned || evs[0].TxHash != f.wallet.TxHash {
		t.Fatalf("events = %+v", evs)
	}
}

func TestRequestTransition_SignRecordedAfterCallerLeaves(t *testing.T) {
	c := record(cert.StatusCreated)
	f := newFixture(c)
	f.wallet.PendingPolls = 3
	ctx, cancel := context.WithCancel(context.Background())
	f.wallet.OnSend = cancel

	out, err := f.orch.RequestTransition(ctx, &c, Request{Action: cert.ActionSign, Actor: issuer, Wallet: f.wallet})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	stored := f.store.certs[c.ID]
	if stored.Status != cert.StatusSigned || stored.SignedTxHash != f.wallet.TxHash {
		t.Fatalf("stored record = %s %q", stored.Status, stored.SignedTxHash)
	}
	if out.SignedTxHash != f.wallet.TxHash {
		t.Fatalf("signedTxHash = %s", out.SignedTxHash)
	}
}

func TestRequestTransition_StoreMustKeepTxHashes(t *testing.T) {
	c := record(cert.StatusSigned)
	c.SignedTxHash = "0xsigned"
	f := newFixture(c)
	f.store.tamper = func(c *cert.Certificate) { c.SignedTxHash = "" }

	_, err := f.orch.RequestTransition(context.Background(), &c, Request{Action: cert.ActionApprove, Actor: owner})
	if !cert.IsKind(err, cert.KindGeneric) || !strings.Contains(err.Error(), "signedTxHash") {
		t.Fatalf("got %v want Generic naming signedTxHash", err)
	}
	if len(f.events.Events()) != 0 {
		t.Fatalf("event published for inconsistent record")
	}

	c = record(cert.StatusVerified)
	f = newFixture(c)
	f.store.tamper = func(c *cert.Certificate) { c.Status = cert.StatusVerified }
	_, err = f.orch.RequestTransition(context.Background(), &c, Request{Action: cert.ActionRevoke, Actor: owner, Reason: "fraud"})
	if !cert.IsKind(err, cert.KindGeneric) || !strings.Contains(err.Error(), "status") {
		t.Fatalf("got %v want Generic naming status", err)
	}
}

func TestRequestTransition_SignWithoutWallet(t *testing.T) {
	c := record(cert.StatusCreated)
	f := newFixture(c)
	_, err := f.orch.RequestTransition(context.Background(), &c, Request{Action: cert.ActionSign, Actor: owner})
	if !cert.IsKind(err, cert.KindGeneric) || len(f.store.Calls()) != 0 {
		t.Fatalf("got %v, store calls %v", err, f.store.Calls())
	}
}

func TestRequestTransition_SignStoreFailureCarriesTxHash(t *testing.T) {
	c := record(cert.StatusCreated)
	f := newFixture(c)
	f.store.updateErr = errors.New("backend down")

	_, err := f.orch.RequestTransition(context.Background(), &c, Request{Action: cert.ActionSign, Actor: owner, Wallet: f.wallet})
	if !cert.IsKind(err, cert.KindGeneric) {
		t.Fatalf("got %v want Generic", err)
	}
	if !strings.Contains(err.Error(), f.wallet.TxHash) {
		t.Fatalf("error does not carry tx hash: %v", err)
	}
	if len(f.events.Events()) != 0 {
		t.Fatalf("event published for failed transition")
	}
}

func TestRequestTransition_SignUserRejected(t *testing.T) {
	c := record(cert.StatusCreated)
	f := newFixture(c)
	f.wallet.Fail["eth_sendTransaction"] = &chain.ProviderError{Code: chain.CodeUserRejected, Message: "User rejected the request."}

	_, err := f.orch.RequestTransition(context.Background(), &c, Request{Action: cert.ActionSign, Actor: owner, Wallet: f.wallet})
	if !cert.IsKind(err, cert.KindUserRejected) {
		t.Fatalf("got %v want UserRejected", err)
	}
	if len(f.store.Calls()) != 0 {
		t.Fatalf("store called after rejection: %v", f.store.Calls())
	}
}

func TestTransition_ApproveThenRevoke(t *testing.T) {
	f := newFixture(record(cert.StatusSigned))
	ctx := context.Background()

	out, err := f.orch.Transition(ctx, "c-1", Request{Action: cert.ActionApprove, Actor: owner})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.Status != cert.StatusVerified || out.ApprovedTxHash != "0xapproved" {
		t.Fatalf("unexpected approved record: %+v", out)
	}
	if _, err := f.orch.Transition(ctx, "c-1", Request{Action: cert.ActionRevoke, Actor: issuer, Reason: "x"}); !cert.IsKind(err, cert.KindInvalidTransition) {
		t.Fatalf("issuer revoke: got %v want InvalidTransition", err)
	}
	out, err = f.orch.Transition(ctx, "c-1", Request{Action: cert.ActionRevoke, Actor: owner, Reason: "  issued in error "})
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if out.Status != cert.StatusRevoked || out.RevokedReason != "issued in error" {
		t.Fatalf("unexpected revoked record: %+v", out)
	}
	if _, err := f.orch.Transition(ctx, "missing", Request{Action: cert.ActionApprove, Actor: owner}); !cert.IsKind(err, cert.KindNotFound) {
		t.Fatalf("missing id: got %v want NotFound", err)
	}

	var types []events.Type
	for _, ev := range f.events.Events() {
		types = append(types, ev.Type)
	}
	if !reflect.DeepEqual(types, []events.Type{events.TypeApproved, events.TypeRevoked}) {
		t.Fatalf("event types = %v", types)
	}
}

func TestActions(t *testing.T) {
	f := newFixture(record(cert.StatusSigned))
	_, actions, err := f.orch.Actions(context.Background(), "c-1", owner)
	if err != nil {
		t.Fatalf("Actions: %v", err)
	}
	if !reflect.DeepEqual(actions, []cert.Action{cert.ActionApprove}) {
		t.Fatalf("actions = %v", actions)
	}
}

type fixedSigners struct{ s *keys.Signer }

func (f fixedSigners) Signer(string) (*keys.Signer, error) { return f.s, nil }

func draft(code string) cert.Draft {
	level := 3.0
	return cert.Draft{
		Code:              code,
		CertificateTypeID: "type-1",
		AuthorProfile:     cert.AuthorProfile{Name: "Ada", IDCard: "0792", CountryCode: "VN", GrantLevel: &level},
	}
}

func TestCreate_PublishesSignedDocument(t *testing.T) {
	f := newFixture()
	f.store.types["type-1"] = cert.CertificateType{ID: "type-1", Active: true, ExpiryMonths: 12}
	signer, err := keys.SignerFromSeed(keys.AlgEd25519, "", bytes.Repeat([]byte{7}, keys.SeedSize))
	if err != nil {
		t.Fatalf("SignerFromSeed: %v", err)
	}
	f.orch.signers = fixedSigners{signer}

	out, err := f.orch.Create(context.Background(), issuer, []cert.Draft{draft(" CERT-9 ")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(out) != 1 || out[0].Status != cert.StatusCreated || out[0].Code != "CERT-9" || out[0].IssuerID != issuer.ID {
		t.Fatalf("unexpected records: %+v", out)
	}
	if out[0].OrganizationID != "org-1" || out[0].ValidTo == nil {
		t.Fatalf("defaults not applied: %+v", out[0])
	}
	if got := f.store.Calls(); !reflect.DeepEqual(got, []string{"certificateType", "create"}) {
		t.Fatalf("store calls = %v", got)
	}

	id, err := cidutil.Parse(out[0].CertificateHash)
	if err != nil {
		t.Fatalf("certificateHash is not a CID: %v", err)
	}
	b, err := f.cas.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("document not in CAS: %v", err)
	}
	doc, err := document.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Code != "CERT-9" || doc.Verify() != nil {
		t.Fatalf("unexpected document: %+v verify=%v", doc, doc.Verify())
	}
	if evs := f.events.Events(); len(evs) != 1 || evs[0].Type != events.TypeCreated {
		t.Fatalf("events = %+v", evs)
	}
}

func TestCreate_BatchUsesImportAndCollectsMissing(t *testing.T) {
	f := newFixture()
	f.store.types["type-1"] = cert.CertificateType{ID: "type-1", Active: true, TemplateKind: cert.TemplateDegree}
	ctx := context.Background()

	bad := draft("")
	bad.AuthorProfile.IDCard = ""
	_, err := f.orch.Create(ctx, issuer, []cert.Draft{draft("A"), bad})
	if !cert.IsKind(err, cert.KindMissingFields) {
		t.Fatalf("got %v want MissingFields", err)
	}
	if got := cert.FieldsOf(err); !reflect.DeepEqual(got, []string{"certificates[1].code", "certificates[1].authorProfile.idCard"}) {
		t.Fatalf("fields = %v", got)
	}
	if len(f.store.Calls()) != 0 || f.cas.Len() != 0 {
		t.Fatalf("side effects before validation passed")
	}

	_, err = f.orch.Create(ctx, issuer, []cert.Draft{draft("A"), draft("B")})
	if got := cert.FieldsOf(err); !reflect.DeepEqual(got, []string{"certificates[0].authorProfile.additionalInfo", "certificates[1].authorProfile.additionalInfo"}) {
		t.Fatalf("template fields = %v (%v)", got, err)
	}

	a, b := draft("A"), draft("B")
	a.AuthorProfile.AdditionalInfo = []byte(`{"major":"math"}`)
	b.AuthorProfile.AdditionalInfo = []byte(`{"major":"law"}`)
	out, err := f.orch.Create(ctx, issuer, []cert.Draft{a, b})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(out) != 2 || out[0].CertificateHash == out[1].CertificateHash {
		t.Fatalf("unexpected records: %+v", out)
	}
	if calls := f.store.Calls(); calls[len(calls)-1] != "import" {
		t.Fatalf("store calls = %v", calls)
	}
	if f.cas.Len() != 2 {
		t.Fatalf("CAS holds %d documents", f.cas.Len())
	}
}

func TestCreate_ForeignOrganization(t *testing.T) {
	f := newFixture()
	d := draft("X")
	d.OrganizationID = "org-2"
	if _, err := f.orch.Create(context.Background(), issuer, []cert.Draft{d}); !cert.IsKind(err, cert.KindInvalidTransition) {
		t.Fatalf("got %v want InvalidTransition", err)
	}
}
