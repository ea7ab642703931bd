package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SignatureHeader is the request header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

const signingScheme = "v1"

var (
	// ErrInvalidSignature is the parent of every signature verification failure.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	ErrMissingHeader     = fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	ErrMalformedHeader   = fmt.Errorf("%w: malformed signature header", ErrInvalidSignature)
	ErrNoValidSignatures = fmt.Errorf("%w: no signature matches the payload", ErrInvalidSignature)
	ErrTimestampExpired  = fmt.Errorf("%w: timestamp outside the tolerance window", ErrInvalidSignature)
)

type signedHeader struct {
	timestamp  time.Time
	signatures [][]byte
}

func parseSignatureHeader(header string) (*signedHeader, error) {
	if strings.TrimSpace(header) == "" {
		return nil, ErrMissingHeader
	}

	sh := &signedHeader{}
	var hasTimestamp bool
	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, ErrMalformedHeader
		}

		switch parts[0] {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, ErrMalformedHeader
			}
			sh.timestamp = time.Unix(ts, 0)
			hasTimestamp = true
		case signingScheme:
			sig, err := hex.DecodeString(parts[1])
			if err != nil {
				// other schemes and garbage entries are ignored
				continue
			}
			sh.signatures = append(sh.signatures, sig)
		}
	}

	if !hasTimestamp {
		return nil, ErrMalformedHeader
	}
	if len(sh.signatures) == 0 {
		return nil, ErrNoValidSignatures
	}
	return sh, nil
}

func computeSignature(t time.Time, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(t.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// VerifySignature checks header against payload signed with secret. A tolerance of zero
// disables the timestamp check.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	sh, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	expected := computeSignature(sh.timestamp, payload, secret)
	if tolerance > 0 && now.Sub(sh.timestamp) > tolerance {
		return ErrTimestampExpired
	}

	for _, sig := range sh.signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrNoValidSignatures
}

// SignPayload returns a signature header for payload as the processor would send it.
func SignPayload(payload []byte, secret string, t time.Time) string {
	return fmt.Sprintf("t=%d,%s=%s", t.Unix(), signingScheme, hex.EncodeToString(computeSignature(t, payload, secret)))
}
