package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocare/internal/domain/errs"
)

type sample struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Confirm  string `json:"password_confirmation" validate:"eqfield=Password"`
	Key      string `json:"key" validate:"omitempty,consentkey"`
}

func TestStruct_MapsJSONNamesAndReasons(t *testing.T) {
	err := Struct(sample{Email: "nope", Password: "short", Confirm: "other", Key: "Bad Key"})
	require.Error(t, err)

	ve, ok := errs.IsValidation(err)
	require.True(t, ok)
	assert.True(t, ve.Has("email", "invalid_email"))
	assert.True(t, ve.Has("password", "too_short"))
	assert.True(t, ve.Has("password_confirmation", "mismatch"))
	assert.True(t, ve.Has("key", "invalid_consentkey"))
}

func TestStruct_Valid(t *testing.T) {
	require.NoError(t, Struct(sample{Email: "a@b.co", Password: "longenough", Confirm: "longenough", Key: "privacy_policy"}))
}

func TestValidConsentKey(t *testing.T) {
	for _, k := range []string{"a", "privacy_policy", "terms-of-service", "hipaa.v2", "a" + strings.Repeat("b", 62) + "c"} {
		assert.True(t, ValidConsentKey(k), k)
	}
	for _, k := range []string{"", "Privacy", "_lead", "trail-", "with space", strings.Repeat("a", 65)} {
		assert.False(t, ValidConsentKey(k), k)
	}
}

func TestValidTenantID(t *testing.T) {
	assert.True(t, ValidTenantID("acme"))
	assert.True(t, ValidTenantID("acme-dental-2"))
	assert.False(t, ValidTenantID("Acme"))
	assert.False(t, ValidTenantID("acme--dental"))
	assert.False(t, ValidTenantID("-acme"))
	assert.False(t, ValidTenantID(strings.Repeat("a", 41)))
}
