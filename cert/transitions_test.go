package cert

import (
	"math"
	"reflect"
	"testing"
)

func certIn(status Status) *Certificate {
	return &Certificate{ID: "c1", Code: "CERT-1", Status: status, OrganizationID: "org-1", IssuerID: "u-issuer"}
}

var (
	owner    = Actor{ID: "u-owner", OrganizationID: "org-1", IsOwner: true}
	issuer   = Actor{ID: "u-issuer", OrganizationID: "org-1"}
	stranger = Actor{ID: "u-other", OrganizationID: "org-2", IsOwner: true}
)

func TestAuthorize_StatusMustMatchSource(t *testing.T) {
	for _, st := range []Status{StatusSigned, StatusVerified, StatusRevoked} {
		_, err := Authorize(certIn(st), ActionSign, owner)
		if !IsKind(err, KindInvalidTransition) {
			t.Fatalf("sign from %s: got %v want InvalidTransition", st, err)
		}
	}
	for _, st := range []Status{StatusCreated, StatusVerified, StatusRevoked} {
		_, err := Authorize(certIn(st), ActionApprove, owner)
		if !IsKind(err, KindInvalidTransition) {
			t.Fatalf("approve from %s: got %v want InvalidTransition", st, err)
		}
	}
	for _, st := range []Status{StatusCreated, StatusSigned, StatusRevoked} {
		_, err := Authorize(certIn(st), ActionRevoke, owner)
		if !IsKind(err, KindInvalidTransition) {
			t.Fatalf("revoke from %s: got %v want InvalidTransition", st, err)
		}
	}
}

func TestAuthorize_Roles(t *testing.T) {
	if _, err := Authorize(certIn(StatusCreated), ActionSign, issuer); err != nil {
		t.Fatalf("issuer sign: %v", err)
	}
	if _, err := Authorize(certIn(StatusCreated), ActionSign, owner); err != nil {
		t.Fatalf("owner sign: %v", err)
	}
	if _, err := Authorize(certIn(StatusSigned), ActionApprove, issuer); !IsKind(err, KindInvalidTransition) {
		t.Fatalf("issuer approve: got %v want InvalidTransition", err)
	}
	if _, err := Authorize(certIn(StatusVerified), ActionRevoke, issuer); !IsKind(err, KindInvalidTransition) {
		t.Fatalf("issuer revoke: got %v want InvalidTransition", err)
	}
	// Owner of a different organization is not an owner here.
	if _, err := Authorize(certIn(StatusSigned), ActionApprove, stranger); !IsKind(err, KindInvalidTransition) {
		t.Fatalf("foreign owner approve: got %v want InvalidTransition", err)
	}
	if _, err := Authorize(certIn(StatusCreated), Action("delete"), owner); !IsKind(err, KindInvalidTransition) {
		t.Fatalf("unknown action: got %v want InvalidTransition", err)
	}
}

func TestAvailableActions(t *testing.T) {
	cases := []struct {
		status Status
		actor  Actor
		want   []Action
	}{
		{StatusCreated, owner, []Action{ActionSign}},
		{StatusCreated, issuer, []Action{ActionSign}},
		{StatusCreated, stranger, []Action{}},
		{StatusSigned, owner, []Action{ActionApprove}},
		{StatusSigned, issuer, []Action{}},
		{StatusVerified, owner, []Action{ActionRevoke}},
		{StatusRevoked, owner, []Action{}},
	}
	for _, tc := range cases {
		got := AvailableActions(certIn(tc.status), tc.actor)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s/%s: got %v want %v", tc.status, tc.actor.ID, got, tc.want)
		}
	}
}

func TestApply_NeverOverwritesTxHash(t *testing.T) {
	r, _ := RuleFor(ActionSign)
	c := *certIn(StatusCreated)
	c.CertificateHash = "bafkhash"
	got := r.Apply(c, "0xaaa")
	if got.Status != StatusSigned || got.SignedTxHash != "0xaaa" || got.CertificateHash != "bafkhash" {
		t.Fatalf("unexpected apply result: %+v", got)
	}
	again := r.Apply(got, "0xbbb")
	if again.SignedTxHash != "0xaaa" {
		t.Fatalf("signedTxHash overwritten: %s", again.SignedTxHash)
	}
}

func TestTransitionsAreSingleForwardSteps(t *testing.T) {
	order := []Status{StatusCreated, StatusSigned, StatusVerified, StatusRevoked}
	if len(Transitions) != len(order)-1 {
		t.Fatalf("%d transitions for %d statuses", len(Transitions), len(order))
	}
	for i, r := range Transitions {
		if r.From != order[i] || r.To != order[i+1] {
			t.Fatalf("transition %s goes %s -> %s", r.Action, r.From, r.To)
		}
	}
	if !StatusRevoked.Valid() || Status("EXPIRED").Valid() {
		t.Fatalf("Valid disagrees with the status list")
	}
}

func TestGrantLevelValue(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	cases := []struct {
		in *float64
		ok bool
	}{
		{nil, false},
		{f(0), true},
		{f(3), true},
		{f(-1), false},
		{f(2.5), false},
		{f(math.NaN()), false},
		{f(math.Inf(1)), false},
	}
	for _, tc := range cases {
		_, ok := AuthorProfile{GrantLevel: tc.in}.GrantLevelValue()
		if ok != tc.ok {
			t.Fatalf("GrantLevelValue(%v) ok=%v want %v", tc.in, ok, tc.ok)
		}
	}
}

func TestUserMessageDistinguishesKinds(t *testing.T) {
	seen := map[string]Kind{}
	for kind := range userMessages {
		msg := UserMessage(NewError(kind, ""))
		if prev, dup := seen[msg]; dup {
			t.Fatalf("kinds %s and %s share message %q", prev, kind, msg)
		}
		seen[msg] = kind
	}
	err := MissingFields("certificateHash", "validTo")
	if got := FieldsOf(err); !reflect.DeepEqual(got, []string{"certificateHash", "validTo"}) {
		t.Fatalf("FieldsOf = %v", got)
	}
	if MissingFields() != nil {
		t.Fatalf("MissingFields() with no fields must be nil")
	}
}
