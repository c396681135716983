package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_AccumulatesAndUnwraps(t *testing.T) {
	v := Validation("domain", "taken").Add("password", "too_short", "missing_digit")
	wrapped := fmt.Errorf("create registration: %w", v)

	got, ok := IsValidation(wrapped)
	require.True(t, ok)
	assert.True(t, got.Has("domain", "taken"))
	assert.True(t, got.Has("password", "missing_digit"))
	assert.False(t, got.Has("email", "taken"))
	assert.Equal(t, "validation failed: domain: taken; password: too_short,missing_digit", got.Error())
}

func TestTokenError_Messages(t *testing.T) {
	assert.Equal(t, "invitation expired", Token(TokenExpired, "invitation").Error())
	assert.Equal(t, "invitation is no longer valid", Token(TokenUsed, "invitation").Error())
	assert.Equal(t, "token is invalid", Token(TokenInvalid, "").Error())

	te, ok := IsToken(fmt.Errorf("accept: %w", Token(TokenUsed, "invitation")))
	require.True(t, ok)
	assert.Equal(t, TokenUsed, te.Kind)
}

func TestSyncWarning_Unwrap(t *testing.T) {
	base := errors.New("role missing")
	w := SyncWarning{Step: "role_assignment", TenantID: "acme", Err: base}
	assert.ErrorIs(t, w, base)
	assert.Contains(t, w.Error(), "role_assignment")
}
