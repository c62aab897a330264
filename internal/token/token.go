// Package token signs popup display receipts. A receipt is handed out with
// a served popup and redeemed once when the popup is actually displayed.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// MaxFieldLength bounds every string field to keep tokens URL sized.
const MaxFieldLength = 128

// Receipt identifies one served popup instance.
type Receipt struct {
	Nonce     string
	VisitorID string
	ScriptID  string
	AdType    string
	Position  string
	IssuedAt  time.Time
}

// payload structure for encoding/decoding
type payload struct {
	Nonce     string `json:"n"`
	VisitorID string `json:"v"`
	ScriptID  string `json:"s"`
	AdType    string `json:"a"`
	Position  string `json:"p,omitempty"`
	TS        int64  `json:"t"`
}

func validate(r Receipt) error {
	fields := map[string]string{
		"visitor":  r.VisitorID,
		"script":   r.ScriptID,
		"adType":   r.AdType,
		"position": r.Position,
	}
	for name, v := range fields {
		if len(v) > MaxFieldLength {
			return fmt.Errorf("%s too long: %d chars, max %d", name, len(v), MaxFieldLength)
		}
	}
	if r.VisitorID == "" {
		return errors.New("visitor is required")
	}
	return nil
}

// Generate signs r. A missing nonce is filled with a random UUID and a zero
// IssuedAt with the current time.
func Generate(r Receipt, secret []byte) (string, error) {
	if err := validate(r); err != nil {
		return "", fmt.Errorf("receipt validation failed: %w", err)
	}
	if r.Nonce == "" {
		r.Nonce = uuid.NewString()
	}
	if r.IssuedAt.IsZero() {
		r.IssuedAt = time.Now()
	}
	pl := payload{
		Nonce:     r.Nonce,
		VisitorID: r.VisitorID,
		ScriptID:  r.ScriptID,
		AdType:    r.AdType,
		Position:  r.Position,
		TS:        r.IssuedAt.Unix(),
	}
	data, err := json.Marshal(pl)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sig), nil
}

// Verify checks the token integrity and expiry and returns the receipt.
func Verify(token string, secret []byte, ttl time.Duration) (Receipt, error) {
	return verifyAt(token, secret, ttl, time.Now())
}

func verifyAt(token string, secret []byte, ttl time.Duration, now time.Time) (Receipt, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Receipt{}, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return Receipt{}, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return Receipt{}, ErrInvalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Receipt{}, ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil {
		return Receipt{}, ErrInvalid
	}
	if pl.Nonce == "" || pl.VisitorID == "" {
		return Receipt{}, ErrInvalid
	}
	issued := time.Unix(pl.TS, 0)
	if ttl > 0 && now.Sub(issued) > ttl {
		return Receipt{}, ErrExpired
	}
	return Receipt{
		Nonce:     pl.Nonce,
		VisitorID: pl.VisitorID,
		ScriptID:  pl.ScriptID,
		AdType:    pl.AdType,
		Position:  pl.Position,
		IssuedAt:  issued,
	}, nil
}
