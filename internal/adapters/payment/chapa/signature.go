package chapa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyWebhookSignature checks the HMAC-SHA256 of the raw webhook body
// against the X-Chapa-Signature header value. A missing webhook secret fails
// closed: unsigned intake is only acceptable when no secret is configured at
// the provider either, and that is not a decision this adapter makes.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c.webhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
