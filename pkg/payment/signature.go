package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// SignHex returns the lowercase hex HMAC-SHA256 of payload
func SignHex(payload []byte, secret string) string {
	return hex.EncodeToString(mac(payload, secret))
}

// SignBase64 returns the standard base64 HMAC-SHA256 of payload
func SignBase64(payload []byte, secret string) string {
	return base64.StdEncoding.EncodeToString(mac(payload, secret))
}

func mac(payload []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return h.Sum(nil)
}

// verifyHex compares a hex signature in constant time. An optional
// "sha256=" prefix is accepted.
func verifyHex(payload []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" || secret == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(provided, mac(payload, secret))
}

// verifyBase64 compares a base64 signature in constant time
func verifyBase64(payload []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || secret == "" {
		return false
	}
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(provided, mac(payload, secret))
}
