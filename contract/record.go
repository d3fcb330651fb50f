package contract

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// HashIndex is the position of the content hash when outputs are unnamed.
const HashIndex = 7

var hashNames = []string{"certificateHash", "contentHash", "hash"}

var ErrNoHash = errors.New("contract: record has no content hash field")

// Record is the normalized getCertificate result.
type Record struct {
	// Code is empty when the record carries no readable string code.
	Code            string
	CertificateHash string
	// Values holds every output by name (or "#<index>" when unnamed).
	Values map[string]any
}

// Empty reports whether every output holds its zero value, which is what the
// contract returns for a code it has never stored.
func (r Record) Empty() bool {
	for _, v := range r.Values {
		if !isZero(v) {
			return false
		}
	}
	return true
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []byte:
		return len(x) == 0
	case *big.Int:
		return x == nil || x.Sign() == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil() || isZero(rv.Elem().Interface())
	}
	return rv.IsZero()
}

type field struct {
	name  string
	value any
}

// Normalize flattens decoded getCertificate outputs into a Record.
//
// outputs may be a single tuple (decoded as a struct) or a flat list, with
// or without names. The hash is taken by name when one of hashNames is
// present and from HashIndex otherwise. Strings are trimmed.
func Normalize(values []any, outputs abi.Arguments) (Record, error) {
	fields, err := flatten(values, outputs)
	if err != nil {
		return Record{}, err
	}

	rec := Record{Values: make(map[string]any, len(fields))}
	for i, f := range fields {
		key := f.name
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		rec.Values[key] = f.value
	}

	hash, ok := lookup(fields, hashNames, HashIndex)
	if !ok {
		return Record{}, ErrNoHash
	}
	rec.CertificateHash, err = asString(hash)
	if err != nil {
		return Record{}, fmt.Errorf("contract: content hash: %w", err)
	}
	if code, ok := lookup(fields, []string{"code", "certificateCode"}, 0); ok {
		rec.Code, _ = asString(code)
	}
	return rec, nil
}

func flatten(values []any, outputs abi.Arguments) ([]field, error) {
	if len(values) != len(outputs) {
		return nil, fmt.Errorf("contract: %d values for %d outputs", len(values), len(outputs))
	}
	if len(outputs) == 1 && outputs[0].Type.T == abi.TupleTy {
		v := reflect.ValueOf(values[0])
		for v.Kind() == reflect.Pointer {
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, fmt.Errorf("contract: tuple output decoded as %s", v.Kind())
		}
		names := outputs[0].Type.TupleRawNames
		out := make([]field, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			name := ""
			if i < len(names) {
				name = names[i]
			}
			out[i] = field{name: name, value: v.Field(i).Interface()}
		}
		return out, nil
	}
	out := make([]field, len(values))
	for i := range values {
		out[i] = field{name: outputs[i].Name, value: values[i]}
	}
	return out, nil
}

func lookup(fields []field, names []string, index int) (any, bool) {
	for _, want := range names {
		for _, f := range fields {
			if strings.EqualFold(f.name, want) {
				return f.value, true
			}
		}
	}
	if index < len(fields) {
		return fields[index].value, true
	}
	return nil, false
}

func asString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), nil
	case []byte:
		return strings.TrimSpace(string(s)), nil
	default:
		return "", fmt.Errorf("unexpected type %T", v)
	}
}
