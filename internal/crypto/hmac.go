package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// QueryAuth holds exchange API credentials. Signed requests carry the key in
// a header and an HMAC-SHA256 of the query string as the signature
// parameter.
type QueryAuth struct {
	Key        string
	Secret     string
	RecvWindow time.Duration
}

// Sign returns the hex HMAC-SHA256 of payload under the secret.
func (a *QueryAuth) Sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(a.Secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedQuery adds timestamp, recvWindow and signature to params and returns
// the encoded query string.
func (a *QueryAuth) SignedQuery(params url.Values) string {
	return a.SignedQueryAt(params, time.Now())
}

// SignedQueryAt is SignedQuery with a caller supplied clock.
func (a *QueryAuth) SignedQueryAt(params url.Values, now time.Time) string {
	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	q.Set("timestamp", strconv.FormatInt(now.UnixMilli(), 10))
	if a.RecvWindow > 0 {
		q.Set("recvWindow", strconv.FormatInt(a.RecvWindow.Milliseconds(), 10))
	}
	encoded := q.Encode()
	return encoded + "&signature=" + a.Sign(encoded)
}

// Headers returns the authentication headers for a signed request.
func (a *QueryAuth) Headers() map[string]string {
	return map[string]string{"X-MBX-APIKEY": a.Key}
}

// String returns a redacted representation suitable for logging.
func (a *QueryAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("QueryAuth{key=%s, secret=%s}", redact(a.Key), redact(a.Secret))
}
