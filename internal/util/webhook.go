package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// WebhookTolerance is how far a webhook timestamp may drift from now.
const WebhookTolerance = 5 * time.Minute

var (
	ErrWebhookHeaders   = errors.New("missing webhook signature headers")
	ErrWebhookTimestamp = errors.New("webhook timestamp outside tolerance")
	ErrWebhookSignature = errors.New("no matching webhook signature")
	ErrWebhookSecret    = errors.New("invalid webhook secret")
)

// SignWebhook computes the "v1,<base64>" signature of body for msgID at
// timestamp.
func SignWebhook(secret, msgID string, timestamp int64, body []byte) (string, error) {
	key, err := webhookKey(secret)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msgID + "." + strconv.FormatInt(timestamp, 10) + "."))
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// VerifyWebhook checks the svix-id, svix-timestamp and svix-signature headers
// the identity provider sends with each event. The signature header may carry
// several space separated signatures; one match is enough.
func VerifyWebhook(secret string, header http.Header, body []byte, now time.Time) error {
	msgID := header.Get("svix-id")
	ts := header.Get("svix-timestamp")
	sigs := header.Get("svix-signature")
	if msgID == "" || ts == "" || sigs == "" {
		return ErrWebhookHeaders
	}

	timestamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrWebhookTimestamp
	}
	sent := time.Unix(timestamp, 0)
	if now.Sub(sent) > WebhookTolerance || sent.Sub(now) > WebhookTolerance {
		return ErrWebhookTimestamp
	}

	expected, err := SignWebhook(secret, msgID, timestamp, body)
	if err != nil {
		return err
	}
	for _, sig := range strings.Fields(sigs) {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrWebhookSignature
}

func webhookKey(secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil || len(key) == 0 {
		return nil, ErrWebhookSecret
	}
	return key, nil
}
