package chain

import (
	"errors"
	"strings"

	"xdao.co/certanchor/cert"
)

// Classify maps a raw wallet/node error onto the cert error kinds.
// Errors that already carry a kind are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *cert.Error
	if errors.As(err, &ce) {
		return err
	}

	var reason string
	var pe *ProviderError
	if errors.As(err, &pe) {
		reason = strings.ToUpper(pe.Reason)
	}
	msg := strings.ToLower(err.Error())

	switch {
	case reason == "INSUFFICIENT_FUNDS" || strings.Contains(msg, "insufficient funds"):
		return cert.WrapError(cert.KindInsufficientFunds, err.Error(), err)
	case CodeOf(err) == CodeUserRejected || reason == "ACTION_REJECTED" ||
		strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied"):
		return cert.WrapError(cert.KindUserRejected, err.Error(), err)
	default:
		return cert.WrapError(cert.KindGeneric, err.Error(), err)
	}
}
