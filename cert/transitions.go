package cert

import (
	"fmt"
)

type Action string

const (
	ActionSign    Action = "sign"
	ActionApprove Action = "approve"
	ActionRevoke  Action = "revoke"
)

// Who may perform a transition.
type Who uint8

const (
	// WhoOwner allows only the owner of the certificate's organization.
	WhoOwner Who = 1 << iota
	// WhoIssuer allows the user who created the certificate.
	WhoIssuer
)

// Rule is one row of the lifecycle transition table.
type Rule struct {
	Action         Action
	From           Status
	To             Status
	Who            Who
	ChainWrite     bool
	RequiresReason bool
}

// Transitions is the lifecycle transition table. It is the only place where
// status, action and role rules are defined.
var Transitions = []Rule{
	{Action: ActionSign, From: StatusCreated, To: StatusSigned, Who: WhoOwner | WhoIssuer, ChainWrite: true},
	{Action: ActionApprove, From: StatusSigned, To: StatusVerified, Who: WhoOwner},
	{Action: ActionRevoke, From: StatusVerified, To: StatusRevoked, Who: WhoOwner, RequiresReason: true},
}

// RuleFor returns the transition rule for action.
func RuleFor(action Action) (Rule, bool) {
	for _, r := range Transitions {
		if r.Action == action {
			return r, true
		}
	}
	return Rule{}, false
}

func (r Rule) allows(c *Certificate, actor Actor) bool {
	if r.Who&WhoOwner != 0 && actor.OwnsOrganization(c.OrganizationID) {
		return true
	}
	if r.Who&WhoIssuer != 0 && actor.ID != "" && actor.ID == c.IssuerID {
		return true
	}
	return false
}

// Authorize checks action against the certificate's current status and the actor's role.
// It returns the matching rule, or a KindInvalidTransition error.
func Authorize(c *Certificate, action Action, actor Actor) (Rule, error) {
	if c == nil {
		return Rule{}, NewError(KindInvalidTransition, "no certificate")
	}
	r, ok := RuleFor(action)
	if !ok {
		return Rule{}, NewError(KindInvalidTransition, fmt.Sprintf("unknown action %q", action))
	}
	if c.Status != r.From {
		return Rule{}, NewError(KindInvalidTransition,
			fmt.Sprintf("cannot %s a certificate in status %s (requires %s)", action, c.Status, r.From))
	}
	if !r.allows(c, actor) {
		return Rule{}, NewError(KindInvalidTransition,
			fmt.Sprintf("actor %q is not permitted to %s this certificate", actor.ID, action))
	}
	return r, nil
}

// AvailableActions lists the actions actor may request on c, in table order.
func AvailableActions(c *Certificate, actor Actor) []Action {
	out := []Action{}
	if c == nil {
		return out
	}
	for _, r := range Transitions {
		if c.Status == r.From && r.allows(c, actor) {
			out = append(out, r.Action)
		}
	}
	return out
}

// Apply returns a copy of c moved to r.To with the stage tx hash recorded.
// A tx hash field that is already set is never overwritten.
func (r Rule) Apply(c Certificate, txHash string) Certificate {
	c.Status = r.To
	switch r.Action {
	case ActionSign:
		if c.SignedTxHash == "" {
			c.SignedTxHash = txHash
		}
	case ActionApprove:
		if c.ApprovedTxHash == "" {
			c.ApprovedTxHash = txHash
		}
	case ActionRevoke:
		if c.RevokedTxHash == "" {
			c.RevokedTxHash = txHash
		}
	}
	return c
}
