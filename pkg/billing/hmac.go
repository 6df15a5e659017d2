package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureTolerance bounds how old a signed payload may be before it
// is rejected as a replay.
const DefaultSignatureTolerance = 5 * time.Minute

// HMACProvider verifies the generic HMAC-SHA256 signing scheme used by
// providers following the Stripe convention: the signature header carries
// `t=<unix>,v1=<hex>` and the signed message is `<unix>.<payload>`.
// Timestamp binding prevents replay of captured webhook bodies.
type HMACProvider struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// HMACOption configures an HMACProvider.
type HMACOption func(*HMACProvider)

// WithSignatureTolerance overrides the replay window.
func WithSignatureTolerance(d time.Duration) HMACOption {
	return func(p *HMACProvider) {
		if d > 0 {
			p.tolerance = d
		}
	}
}

// NewHMACProvider creates an HMACProvider with the shared signing secret.
func NewHMACProvider(secret string, opts ...HMACOption) (*HMACProvider, error) {
	if secret == "" {
		return nil, ErrMissingWebhookSecret
	}

	p := &HMACProvider{
		secret:    []byte(secret),
		tolerance: DefaultSignatureTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// VerifyAndParse checks the signature and parses the payload into an event
// variant. Verification failures are deliberately uninformative to callers
// beyond ErrInvalidSignature; the detail lives in server logs only.
func (p *HMACProvider) VerifyAndParse(ctx context.Context, payload []byte, signature string) (Event, error) {
	if err := p.verify(payload, signature); err != nil {
		return nil, err
	}
	return parseWireEvent(payload)
}

func (p *HMACProvider) verify(payload []byte, signature string) error {
	if len(payload) == 0 || signature == "" {
		return ErrInvalidSignature
	}

	var ts int64
	var provided string
	for part := range strings.SplitSeq(signature, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			ts = parsed
		case "v1":
			provided = value
		}
	}
	if ts == 0 || provided == "" {
		return ErrInvalidSignature
	}

	// Reject stale timestamps and far-future ones (allowing modest skew).
	age := p.now().Sub(time.Unix(ts, 0))
	if age > p.tolerance || age < -time.Minute {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, p.secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrInvalidSignature
	}

	return nil
}

// Sign produces a signature header for a payload. Used by tests and by
// internal tooling that replays events into a staging environment.
func (p *HMACProvider) Sign(payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, p.secret)
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
