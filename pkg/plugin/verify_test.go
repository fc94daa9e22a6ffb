package plugin

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/require"
)

func startJWKSServer(t *testing.T, publicKey *rsa.PublicKey) *httptest.Server {
	t.Helper()
	key, err := jwk.FromRaw(publicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "plugin-signing-key"))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))

	keyset := jwk.NewSet()
	require.NoError(t, keyset.AddKey(key))

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(keyset)
	}))
}

func TestVerifyFileRejectsEmptySignature(t *testing.T) {
	v := &Verifier{}
	err := v.VerifyFile("irrelevant", "")
	require.Error(t, err)
}

func TestVerifyFileRejectsUnreadableBinary(t *testing.T) {
	v := &Verifier{keyset: jwk.NewSet()}
	err := v.VerifyFile("/no/such/plugin/binary", "not-empty")
	require.Error(t, err)
}

func TestNewVerifierAndVerifyFileRoundTrip(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := startJWKSServer(t, &privateKey.PublicKey)
	defer server.Close()

	v, err := NewVerifier(context.Background(), server.URL)
	require.NoError(t, err)

	dir := t.TempDir()
	binPath := filepath.Join(dir, "plugin-bin")
	require.NoError(t, os.WriteFile(binPath, []byte("pretend plugin binary contents"), 0o755))

	data, err := os.ReadFile(binPath)
	require.NoError(t, err)
	digest := fmt.Sprintf("%x", sha256.Sum256(data))

	signingKey, err := jwk.FromRaw(privateKey)
	require.NoError(t, err)
	require.NoError(t, signingKey.Set(jwk.KeyIDKey, "plugin-signing-key"))

	signed, err := jws.Sign([]byte(digest), jws.WithKey(jwa.RS256, signingKey))
	require.NoError(t, err)

	require.NoError(t, v.VerifyFile(binPath, string(signed)))

	tampered, err := os.CreateTemp(dir, "tampered")
	require.NoError(t, err)
	_, err = tampered.WriteString("different contents entirely")
	require.NoError(t, err)
	require.NoError(t, tampered.Close())

	require.Error(t, v.VerifyFile(tampered.Name(), string(signed)))
}
