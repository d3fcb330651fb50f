// Package keys manages organization issuer keys used to sign certificate
// metadata documents before they are published and anchored.
//
// Issuer keys are encoded as "<alg>:<base64 public key>" with alg one of
// ed25519 or dilithium3. Seeds live in a local KeyStore; an organization's key
// is derived from a root seed so it can be re-created from the root alone.
package keys
