package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"concord/internal/domain"
)

// DefaultSignatureTolerance bounds how stale a signed timestamp may be.
const DefaultSignatureTolerance = 5 * time.Minute

// StripeVerifier checks checkout webhook signatures. The header carries
// "t=<unix>,v1=<hex>,..."; the signed payload is "<t>.<body>" and the scheme
// is HMAC-SHA256 with the endpoint secret.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewStripeVerifier creates a verifier with the endpoint secret
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{
		secret:    secret,
		tolerance: DefaultSignatureTolerance,
		now:       time.Now,
	}
}

// Verify checks the signature header against the raw request body
func (v *StripeVerifier) Verify(body []byte, header string) error {
	if v.secret == "" {
		return fmt.Errorf("webhook secret not configured: %w", domain.ErrConfiguration)
	}
	if header == "" {
		return fmt.Errorf("missing signature header: %w", domain.ErrUnauthorized)
	}

	var timestamp int64
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("malformed timestamp in signature header: %w", domain.ErrUnauthorized)
			}
			timestamp = ts
		case "v1":
			candidates = append(candidates, value)
		}
	}

	if timestamp == 0 || len(candidates) == 0 {
		return fmt.Errorf("incomplete signature header: %w", domain.ErrUnauthorized)
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("signature timestamp outside tolerance: %w", domain.ErrUnauthorized)
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return fmt.Errorf("signature mismatch: %w", domain.ErrUnauthorized)
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID          string            `json:"id"`
			AmountTotal *int              `json:"amount_total"`
			Metadata    map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseStripeEvent decodes a verified event body. Only completed checkout
// sessions are actionable; other event types return ok=false and are
// acknowledged without action. The session metadata carries user_id and
// tokens_to_add.
func ParseStripeEvent(body []byte) (Notification, bool, error) {
	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return Notification{}, false, fmt.Errorf("%w: malformed event body", domain.ErrValidation)
	}

	if event.Type != "checkout.session.completed" {
		return Notification{}, false, nil
	}

	userID := event.Data.Object.Metadata["user_id"]
	tokens, err := strconv.Atoi(event.Data.Object.Metadata["tokens_to_add"])
	if userID == "" || err != nil || tokens < 1 {
		return Notification{}, false, fmt.Errorf("%w: checkout session missing user_id/tokens_to_add metadata", domain.ErrValidation)
	}

	return Notification{
		Provider:    "stripe",
		EventID:     event.ID,
		UserID:      userID,
		Tokens:      tokens,
		AmountCents: event.Data.Object.AmountTotal,
	}, true, nil
}
