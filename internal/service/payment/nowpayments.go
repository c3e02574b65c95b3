package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"concord/internal/domain"
)

// NowPaymentsVerifier checks IPN callbacks: HMAC-SHA512 of the raw body with
// the IPN secret, hex-encoded, against the x-nowpayments-sig header.
type NowPaymentsVerifier struct {
	secret string
}

// NewNowPaymentsVerifier creates a verifier with the shared IPN secret
func NewNowPaymentsVerifier(secret string) *NowPaymentsVerifier {
	return &NowPaymentsVerifier{secret: secret}
}

// Verify checks the signature over the raw request body
func (v *NowPaymentsVerifier) Verify(body []byte, signature string) error {
	if v.secret == "" {
		return fmt.Errorf("IPN secret not configured: %w", domain.ErrConfiguration)
	}
	if signature == "" {
		return fmt.Errorf("missing signature: %w", domain.ErrUnauthorized)
	}

	mac := hmac.New(sha512.New, []byte(v.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return fmt.Errorf("signature mismatch: %w", domain.ErrUnauthorized)
	}
	return nil
}

type nowPaymentsIPN struct {
	PaymentID     json.Number `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
	OrderID       string      `json:"order_id"`
	PriceAmount   float64     `json:"price_amount"`
	PriceCurrency string      `json:"price_currency"`
}

// ParseNowPayments decodes a verified IPN body into the normalized shape.
// Only finished payments are actionable; everything else returns ok=false
// so the webhook acknowledges without crediting.
//
// The order id encodes the purchase as "<userID>_<tokens>". User ids are
// UUIDs, so the token count is everything after the last underscore.
func ParseNowPayments(body []byte) (Notification, bool, error) {
	var ipn nowPaymentsIPN
	if err := json.Unmarshal(body, &ipn); err != nil {
		return Notification{}, false, fmt.Errorf("%w: malformed IPN body", domain.ErrValidation)
	}

	if ipn.PaymentStatus != "finished" {
		return Notification{}, false, nil
	}

	idx := strings.LastIndex(ipn.OrderID, "_")
	if idx <= 0 || idx == len(ipn.OrderID)-1 {
		return Notification{}, false, fmt.Errorf("%w: malformed order_id %q", domain.ErrValidation, ipn.OrderID)
	}
	userID := ipn.OrderID[:idx]
	tokens, err := strconv.Atoi(ipn.OrderID[idx+1:])
	if err != nil || tokens < 1 {
		return Notification{}, false, fmt.Errorf("%w: malformed token count in order_id %q", domain.ErrValidation, ipn.OrderID)
	}

	n := Notification{
		Provider: "nowpayments",
		EventID:  ipn.PaymentID.String(),
		UserID:   userID,
		Tokens:   tokens,
	}
	if ipn.PriceAmount > 0 {
		cents := int(ipn.PriceAmount * 100)
		n.AmountCents = &cents
	}
	return n, true, nil
}
