package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(8)
	require.NoError(t, err)
	assert.Len(t, code, 16, "8 bytes hex encode to 16 characters")
	assert.Equal(t, strings.ToUpper(code), code)

	other, err := GenerateCode(8)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestTicketCode(t *testing.T) {
	code := TicketCode()
	assert.True(t, strings.HasPrefix(code, "TKT-"))
	assert.NotEqual(t, code, TicketCode())
}

func TestOrderNumber(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	number, err := OrderNumber(at)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(number, "ORD-20240601-"))
	assert.Len(t, number, len("ORD-20240601-")+8)
}

func TestClaimTokenRoundtrip(t *testing.T) {
	token, err := NewClaimToken()
	require.NoError(t, err)

	hash, err := HashClaimToken(token)
	require.NoError(t, err)
	assert.NotEqual(t, token, hash)

	assert.True(t, CheckClaimToken(hash, token))
	assert.False(t, CheckClaimToken(hash, "wrong-token"))
	assert.False(t, CheckClaimToken("", token))
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	wantErr := errors.New("boom")
	_, err = cb.Execute(context.Background(), func() (interface{}, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
