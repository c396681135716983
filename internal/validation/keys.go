package validation

import "regexp"

// Consent key rules:
// - Lowercase only.
// - Start and end with [a-z0-9].
// - Middle chars may include [a-z0-9_.-].
// - Length 1..64.
//
// Examples valid: privacy_policy, terms-of-service, hipaa.v2
// Examples invalid: Privacy, _lead, trail-, "with space", "".
var consentKeyRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9_\.-]{0,62}[a-z0-9])?$`)

// ValidConsentKey returns true if the key matches the allowed pattern.
func ValidConsentKey(key string) bool {
	return consentKeyRe.MatchString(key)
}

// Tenant ids are slugs: lowercase alnum separated by single hyphens, max 40.
var tenantIDRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9]|-[a-z0-9]){0,39}$`)

// ValidTenantID returns true if id is a well-formed tenant slug.
func ValidTenantID(id string) bool {
	return len(id) <= 40 && tenantIDRe.MatchString(id)
}
