package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func GenerateCode(n int) (string, error) {
	// Make a slice of nBytes random bytes.
	byt := make([]byte, n)

	// Read into the slice.
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	// Return the hexadecimal string.
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// TicketCode mints a globally unique admission code. The UUID keeps it
// collision free across instances; the prefix keeps it scannable by humans.
func TicketCode() string {
	return fmt.Sprintf("TKT-%s", strings.ToUpper(uuid.NewString()))
}

// OrderNumber builds a customer-facing order reference, unique enough to be
// backed by a unique index on the orders collection.
func OrderNumber(now time.Time) (string, error) {
	suffix, err := GenerateCode(4)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix), nil
}
