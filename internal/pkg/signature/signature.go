package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	TimestampHeader = "X-GS-Timestamp"
	SignatureHeader = "X-GS-Signature"

	// DefaultWindow is the symmetric replay window around the server clock.
	DefaultWindow = 300 * time.Second
)

var (
	ErrNotConfigured      = errors.New("shared secret not configured")
	ErrMissingCredentials = errors.New("missing auth headers")
	ErrExpired            = errors.New("expired request")
	ErrBadSignature       = errors.New("bad signature")
)

// Failure is the HTTP rendering of a verification error.
type Failure struct {
	Status  int
	Code    string
	Message string
}

// Describe maps an error returned by Verify to the status and body every
// signed endpoint answers with. Unknown errors are reported as a bad
// signature.
func Describe(err error) Failure {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return Failure{Status: http.StatusInternalServerError, Code: "not_configured", Message: "Server not configured."}
	case errors.Is(err, ErrMissingCredentials):
		return Failure{Status: http.StatusUnauthorized, Code: "missing_auth", Message: "Missing auth headers."}
	case errors.Is(err, ErrExpired):
		return Failure{Status: http.StatusUnauthorized, Code: "expired", Message: "Expired request."}
	default:
		return Failure{Status: http.StatusUnauthorized, Code: "bad_signature", Message: "Bad signature."}
	}
}

// Verifier checks that a raw request body was signed with the shared secret
// within the replay window.
type Verifier struct {
	Secret string
	Window time.Duration
	Now    func() time.Time
}

// NewVerifier creates a verifier with the default replay window.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		Secret: secret,
		Window: DefaultWindow,
		Now:    time.Now,
	}
}

// Verify returns nil when rawBody is authentic and recent. The signature is
// the hex HMAC-SHA256 of "<timestamp>.<rawBody>".
func (v *Verifier) Verify(rawBody []byte, timestamp, sig string) error {
	if v == nil || v.Secret == "" {
		return ErrNotConfigured
	}

	timestamp = strings.TrimSpace(timestamp)
	sig = strings.TrimSpace(sig)
	if timestamp == "" || sig == "" {
		return ErrMissingCredentials
	}

	// A non-numeric timestamp can never be inside the window.
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrExpired
	}
	window := v.Window
	if window <= 0 {
		window = DefaultWindow
	}
	// Bounds are checked before any subtraction involving ts so extreme
	// values cannot wrap around.
	now := v.now().Unix()
	limit := int64(window / time.Second)
	if ts < now-limit || ts > now+limit {
		return ErrExpired
	}

	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal(compute(v.Secret, timestamp, rawBody), decoded) {
		return ErrBadSignature
	}
	return nil
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Sign produces the hex signature a client sends for rawBody at timestamp.
func Sign(secret, timestamp string, rawBody []byte) string {
	return hex.EncodeToString(compute(secret, timestamp, rawBody))
}

func compute(secret, timestamp string, rawBody []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return mac.Sum(nil)
}
