package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"concord/internal/domain"
)

func signStripe(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestStripeVerifier(secret string, now time.Time) *StripeVerifier {
	v := NewStripeVerifier(secret)
	v.now = func() time.Time { return now }
	return v
}

func TestStripeVerify(t *testing.T) {
	const secret = "whsec_test"
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Unix(1_700_000_000, 0)
	ts := now.Unix()

	v := newTestStripeVerifier(secret, now)

	header := fmt.Sprintf("t=%d,v1=%s", ts, signStripe(secret, ts, body))
	if err := v.Verify(body, header); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}

	t.Run("multiple v1 candidates", func(t *testing.T) {
		// Stripe sends old and new signatures during secret rotation
		header := fmt.Sprintf("t=%d,v1=%s,v1=%s", ts, signStripe("old-secret", ts, body), signStripe(secret, ts, body))
		if err := v.Verify(body, header); err != nil {
			t.Errorf("rotation header rejected: %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := fmt.Sprintf("t=%d,v1=%s", ts, signStripe("other", ts, body))
		if err := v.Verify(body, header); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("stale timestamp", func(t *testing.T) {
		stale := ts - int64((DefaultSignatureTolerance + time.Second).Seconds())
		header := fmt.Sprintf("t=%d,v1=%s", stale, signStripe(secret, stale, body))
		if err := v.Verify(body, header); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("future timestamp", func(t *testing.T) {
		future := ts + int64((DefaultSignatureTolerance + time.Second).Seconds())
		header := fmt.Sprintf("t=%d,v1=%s", future, signStripe(secret, future, body))
		if err := v.Verify(body, header); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("timestamp at tolerance edge accepted", func(t *testing.T) {
		edge := ts - int64(DefaultSignatureTolerance.Seconds())
		header := fmt.Sprintf("t=%d,v1=%s", edge, signStripe(secret, edge, body))
		if err := v.Verify(body, header); err != nil {
			t.Errorf("edge timestamp rejected: %v", err)
		}
	})

	t.Run("incomplete headers", func(t *testing.T) {
		for _, header := range []string{
			"",
			fmt.Sprintf("t=%d", ts),
			"v1=" + signStripe(secret, ts, body),
			"t=garbage,v1=abc",
		} {
			if err := v.Verify(body, header); !errors.Is(err, domain.ErrUnauthorized) {
				t.Errorf("header %q: err = %v, want ErrUnauthorized", header, err)
			}
		}
	})

	t.Run("empty secret", func(t *testing.T) {
		unconfigured := newTestStripeVerifier("", now)
		if err := unconfigured.Verify(body, header); !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("err = %v, want ErrConfiguration", err)
		}
	})
}

func TestParseStripeEvent(t *testing.T) {
	t.Run("completed checkout", func(t *testing.T) {
		body := []byte(`{
			"id": "evt_abc",
			"type": "checkout.session.completed",
			"data": {"object": {
				"id": "cs_123",
				"amount_total": 1999,
				"metadata": {"user_id": "user-7", "tokens_to_add": "1000"}
			}}
		}`)

		n, ok, err := ParseStripeEvent(body)
		if err != nil {
			t.Fatalf("ParseStripeEvent: %v", err)
		}
		if !ok {
			t.Fatal("completed checkout not actionable")
		}
		if n.Provider != "stripe" || n.EventID != "evt_abc" {
			t.Errorf("provider/event = %s/%s", n.Provider, n.EventID)
		}
		if n.UserID != "user-7" || n.Tokens != 1000 {
			t.Errorf("user/tokens = %s/%d", n.UserID, n.Tokens)
		}
		if n.AmountCents == nil || *n.AmountCents != 1999 {
			t.Errorf("amount_cents = %v, want 1999", n.AmountCents)
		}
	})

	t.Run("other event types ignored", func(t *testing.T) {
		body := []byte(`{"id":"evt_x","type":"payment_intent.created","data":{"object":{}}}`)
		_, ok, err := ParseStripeEvent(body)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if ok {
			t.Error("non-checkout event treated as actionable")
		}
	})

	t.Run("missing metadata", func(t *testing.T) {
		for _, metadata := range []string{
			`{}`,
			`{"user_id": "u"}`,
			`{"tokens_to_add": "100"}`,
			`{"user_id": "u", "tokens_to_add": "zero"}`,
			`{"user_id": "u", "tokens_to_add": "0"}`,
		} {
			body := []byte(`{"id":"evt_x","type":"checkout.session.completed","data":{"object":{"metadata":` + metadata + `}}}`)
			if _, _, err := ParseStripeEvent(body); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("metadata %s: err = %v, want ErrValidation", metadata, err)
			}
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		if _, _, err := ParseStripeEvent([]byte("not json")); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("err = %v, want ErrValidation", err)
		}
	})
}
