package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Valid(t *testing.T) {
	signer := newTestSigner(t)
	enc := newTestEncryptor(t)
	sink := &memSink{}
	v := NewValidator(signer, enc, sink)

	lic := sealLicense(t, signer, enc, "tenant-42", time.Now().AddDate(1, 0, 0))

	result, err := v.Validate(context.Background(), lic)
	require.NoError(t, err)
	assert.Equal(t, VerdictValid, result.Verdict)
	require.NotNil(t, result.Payload)
	assert.Equal(t, "tenant-42", result.Payload.TenantID)
	assert.True(t, result.Payload.FeatureFlags.Has("EnableAPI"))
	assert.Equal(t, 25, result.Payload.FeatureFlags.Int("MaxExports", 0))
	assert.Empty(t, sink.entries, "a valid license must not produce audit entries")
}

func TestValidator_Expired(t *testing.T) {
	signer := newTestSigner(t)
	enc := newTestEncryptor(t)
	v := NewValidator(signer, enc, &memSink{})

	lic := sealLicense(t, signer, enc, "tenant-42", time.Now().Add(-time.Hour))

	result, err := v.Validate(context.Background(), lic)
	require.NoError(t, err)
	assert.Equal(t, VerdictExpired, result.Verdict)
	assert.NotNil(t, result.Payload, "expired verdicts still expose the verified payload")
}

func TestValidator_ExpiryFromPayloadNotStore(t *testing.T) {
	signer := newTestSigner(t)
	enc := newTestEncryptor(t)
	v := NewValidator(signer, enc, &memSink{})

	lic := sealLicense(t, signer, enc, "tenant-42", time.Now().Add(-time.Hour))
	// An attacker edits the stored expiry column; the sealed payload wins.
	lic.ExpiryDate = time.Now().AddDate(10, 0, 0)

	result, err := v.Validate(context.Background(), lic)
	require.NoError(t, err)
	assert.Equal(t, VerdictExpired, result.Verdict)
}

func TestValidator_Revoked(t *testing.T) {
	signer := newTestSigner(t)
	enc := newTestEncryptor(t)
	v := NewValidator(signer, enc, &memSink{})

	lic := sealLicense(t, signer, enc, "tenant-42", time.Now().AddDate(1, 0, 0))
	lic.Status = StatusRevoked

	result, err := v.Validate(context.Background(), lic)
	require.NoError(t, err)
	assert.Equal(t, VerdictRevoked, result.Verdict)
}

func TestValidator_ExpiredBeatsRevoked(t *testing.T) {
	signer := newTestSigner(t)
	enc := newTestEncryptor(t)
	v := NewValidator(signer, enc, &memSink{})

	lic := sealLicense(t, signer, enc, "tenant-42", time.Now().Add(-time.Hour))
	lic.Status = StatusRevoked

	result, err := v.Validate(context.Background(), lic)
	require.NoError(t, err)
	assert.Equal(t, VerdictExpired, result.Verdict, "expiry is checked before status")
}

func TestValidator_TamperedBlob(t *testing.T) {
	signer := newTestSigner(t)
	enc := newTestEncryptor(t)
	sink := &memSink{}
	v := NewValidator(signer, enc, sink)

	lic := sealLicense(t, signer, enc, "tenant-42", time.Now().AddDate(1, 0, 0))

	// Any single-byte corruption of the stored blob must yield Tampered.
	for i := 0; i < len(lic.SealedPayload); i += 7 {
		mutated := *lic
		mutated.SealedPayload = append([]byte(nil), lic.SealedPayload...)
		mutated.SealedPayload[i] ^= 0x01

		result, err := v.Validate(context.Background(), &mutated)
		require.NoError(t, err)
		assert.Equal(t, VerdictTampered, result.Verdict, "byte %d", i)
		assert.Nil(t, result.Payload)
	}
	assert.NotEmpty(t, sink.entries, "tamper detections must be audited")
}

func TestValidator_CrossTenantBlob(t *testing.T) {
	signer := newTestSigner(t)
	enc := newTestEncryptor(t)
	v := NewValidator(signer, enc, &memSink{})

	lic := sealLicense(t, signer, enc, "tenant-42", time.Now().AddDate(1, 0, 0))
	// Reassigning the blob to another tenant breaks the associated data.
	lic.TenantID = "tenant-43"

	result, err := v.Validate(context.Background(), lic)
	require.NoError(t, err)
	assert.Equal(t, VerdictTampered, result.Verdict)
}

func TestValidator_WrongSigningKey(t *testing.T) {
	issuerSigner := newTestSigner(t)
	enc := newTestEncryptor(t)
	lic := sealLicense(t, issuerSigner, enc, "tenant-42", time.Now().AddDate(1, 0, 0))

	// Validator trusts a different public key.
	v := NewValidator(newTestSigner(t), enc, &memSink{})

	result, err := v.Validate(context.Background(), lic)
	require.NoError(t, err)
	assert.Equal(t, VerdictTampered, result.Verdict)
}

func TestValidator_MalformedPayload(t *testing.T) {
	signer := newTestSigner(t)
	enc := newTestEncryptor(t)
	sink := &memSink{}
	v := NewValidator(signer, enc, sink)

	// Correctly signed and sealed, but the payload is not valid JSON. The
	// seal and signature pass, parsing does not.
	garbage := []byte("definitely not a json payload")
	sig, err := signer.Sign(garbage)
	require.NoError(t, err)
	blob, version, err := enc.Seal(joinPayloadSignature(garbage, sig), []byte("tenant-42"))
	require.NoError(t, err)

	lic := &License{
		ID:            "lic-garbage",
		TenantID:      "tenant-42",
		Status:        StatusActive,
		SealedPayload: blob,
		KeyVersion:    version,
	}

	result, err := v.Validate(context.Background(), lic)
	require.NoError(t, err)
	assert.Equal(t, VerdictMalformed, result.Verdict)
	assert.Equal(t, 1, sink.count("validation_failed", "lic-garbage"))
}

func TestValidator_NilLicense(t *testing.T) {
	v := NewValidator(newTestSigner(t), newTestEncryptor(t), &memSink{})

	_, err := v.Validate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidator_DoesNotMutateLicense(t *testing.T) {
	signer := newTestSigner(t)
	enc := newTestEncryptor(t)
	v := NewValidator(signer, enc, &memSink{})

	lic := sealLicense(t, signer, enc, "tenant-42", time.Now().Add(-time.Hour))
	before := *lic
	beforeBlob := append([]byte(nil), lic.SealedPayload...)

	_, err := v.Validate(context.Background(), lic)
	require.NoError(t, err)

	assert.Equal(t, before.Status, lic.Status)
	assert.Equal(t, beforeBlob, lic.SealedPayload)
}
