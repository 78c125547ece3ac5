package utils

import "golang.org/x/crypto/bcrypt"

// NewClaimToken generates the one-time token a guest receives at checkout and
// later presents to claim their orders into an account.
func NewClaimToken() (string, error) {
	return GenerateCode(16)
}

// HashClaimToken stores only a bcrypt hash on the order, never the token.
func HashClaimToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckClaimToken(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
