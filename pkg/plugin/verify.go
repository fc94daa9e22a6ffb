package plugin

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// Verifier checks a detached JWS signature over a plugin binary's bytes
// against a JWKS endpoint, the supply-chain-integrity use of the
// teacher's JWT/JWK stack (pkg/auth/jwt.go) described in SPEC_FULL.md.
type Verifier struct {
	keyset jwk.Set
}

// NewVerifier fetches and caches the JWKS from jwksURL. A plugin catalog
// with no signature requirement never constructs a Verifier.
func NewVerifier(ctx context.Context, jwksURL string) (*Verifier, error) {
	keyset, err := jwk.Fetch(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch plugin signing JWKS from %s: %w", jwksURL, err)
	}
	return &Verifier{keyset: keyset}, nil
}

// VerifyFile checks that signature (a compact JWS whose payload is the
// sha256 digest of the binary at path, hex-encoded) was produced by a key
// in the verifier's JWKS. An empty signature is rejected — callers decide
// whether verification is required for a given plugin entry.
func (v *Verifier) VerifyFile(path, signature string) error {
	if signature == "" {
		return fmt.Errorf("plugin %s has no signature to verify", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read plugin binary %s: %w", path, err)
	}
	digest := fmt.Sprintf("%x", sha256.Sum256(data))

	payload, err := jws.Verify([]byte(signature), jws.WithKeySet(v.keyset))
	if err != nil {
		return fmt.Errorf("plugin signature verification failed for %s: %w", path, err)
	}
	if string(payload) != digest {
		return fmt.Errorf("plugin signature digest mismatch for %s", path)
	}
	return nil
}
