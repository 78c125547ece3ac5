package mpesa

import (
	"encoding/base64"
	"strings"
	"time"

	"tikiti/internal/status"
)

// NormalizePhone canonicalizes a Kenyan MSISDN to 2547XXXXXXXX (or
// 2541XXXXXXXX). Accepts 07.., 01.., 7.., 1.., 254.. and +254.. input.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
	cleaned = strings.TrimPrefix(cleaned, "+")

	switch {
	case len(cleaned) == 12 && strings.HasPrefix(cleaned, "254"):
	case len(cleaned) == 10 && strings.HasPrefix(cleaned, "0"):
		cleaned = "254" + cleaned[1:]
	case len(cleaned) == 9 && (strings.HasPrefix(cleaned, "7") || strings.HasPrefix(cleaned, "1")):
		cleaned = "254" + cleaned
	default:
		return "", status.NewValidationError("Invalid phone number")
	}

	if !strings.HasPrefix(cleaned, "2547") && !strings.HasPrefix(cleaned, "2541") {
		return "", status.NewValidationError("Invalid phone number")
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", status.NewValidationError("Invalid phone number")
		}
	}

	return cleaned, nil
}

// Password builds the Daraja request password: the shortcode and passkey
// concatenated with the request timestamp, base64 encoded.
func Password(shortCode, passkey string, t time.Time) (password, timestamp string) {
	timestamp = t.Format("20060102150405")
	password = base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
	return password, timestamp
}
