package memcas

import (
	"testing"

	"xdao.co/certanchor/storage"
	"xdao.co/certanchor/storage/testkit"
)

func TestMemCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return New()
	})
}
