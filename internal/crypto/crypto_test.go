package crypto

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignKnownVector(t *testing.T) {
	// Published example from the exchange's signed endpoint documentation.
	a := &QueryAuth{Secret: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"}
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", a.Sign(payload))
}

func TestSignedQueryAt(t *testing.T) {
	a := &QueryAuth{Key: "k", Secret: "s", RecvWindow: 5 * time.Second}
	params := url.Values{"symbol": {"SOLUSDT"}}
	q := a.SignedQueryAt(params, time.UnixMilli(1700000000000))

	unsigned, sig, ok := strings.Cut(q, "&signature=")
	require.True(t, ok)
	assert.Equal(t, "recvWindow=5000&symbol=SOLUSDT&timestamp=1700000000000", unsigned)
	assert.Equal(t, a.Sign(unsigned), sig)
	assert.Len(t, params, 1, "params must not be modified")
	assert.Equal(t, "k", a.Headers()["X-MBX-APIKEY"])
	assert.Equal(t, "QueryAuth{key=****, secret=****}", a.String())
}

func TestSecretRoundTripThroughFile(t *testing.T) {
	sealed, err := EncryptSecret("api-secret", "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	got, err := LoadSecret(SecretConfig{EncryptedPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "api-secret", got)

	_, err = LoadSecret(SecretConfig{EncryptedPath: path, Password: "wrong"})
	assert.Error(t, err)
}

func TestLoadSecretPrecedence(t *testing.T) {
	got, err := LoadSecret(SecretConfig{Raw: "raw", EncryptedPath: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	got, err = LoadSecret(SecretConfig{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
