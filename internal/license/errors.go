package license

import "errors"

// Error taxonomy for license operations. Callers match with errors.Is; the
// transport layer maps these onto HTTP responses.
var (
	// ErrInvalidLicenseTerms reports bad issuance input (max users below one,
	// expiry not after issue date, missing tenant or product code). It is
	// returned before any key material is touched.
	ErrInvalidLicenseTerms = errors.New("invalid license terms")

	// ErrNotFound reports an unknown tenant or license id.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRevoked is the benign outcome of revoking a license that is
	// already in the terminal Revoked state. The license ends in the desired
	// state either way, so callers should treat it as a no-op success.
	ErrAlreadyRevoked = errors.New("license already revoked")

	// ErrInvalidRevocation reports a revocation request with a missing acting
	// identity or a missing/oversized reason.
	ErrInvalidRevocation = errors.New("invalid revocation request")

	// ErrMalformedFlags reports a feature flag blob whose structure cannot be
	// decoded.
	ErrMalformedFlags = errors.New("malformed feature flags")

	// ErrAuthenticationFailed is the single undifferentiated decryption
	// failure. Tag mismatch, truncated blob, unknown key version, and
	// associated-data mismatch are deliberately indistinguishable so a caller
	// probing the API learns nothing about why a blob was rejected.
	ErrAuthenticationFailed = errors.New("sealed payload authentication failed")

	// ErrMalformedPayload reports an authenticated plaintext that does not
	// split into payload and signature.
	ErrMalformedPayload = errors.New("malformed sealed payload")

	// ErrNotConfigured reports missing or invalid signing/encryption key
	// material. It is fatal at startup; the service must not accept traffic.
	ErrNotConfigured = errors.New("signing or encryption key not configured")
)
