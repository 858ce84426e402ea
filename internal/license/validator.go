package license

import (
	"context"
	"fmt"
	"time"

	"p4portal/internal/audit"
)

// Verdict is the outcome of validating a stored license. Validation is a
// read-only classification: it never mutates the record it inspects.
type Verdict string

const (
	// VerdictValid: signature and seal intact, not expired, not revoked.
	VerdictValid Verdict = "valid"
	// VerdictExpired: cryptographically intact but past its expiry date.
	VerdictExpired Verdict = "expired"
	// VerdictRevoked: cryptographically intact but administratively revoked.
	VerdictRevoked Verdict = "revoked"
	// VerdictTampered: decryption or signature verification failed.
	VerdictTampered Verdict = "tampered"
	// VerdictMalformed: decrypted cleanly but the payload is structurally
	// unparseable.
	VerdictMalformed Verdict = "malformed"
)

// Result carries a verdict plus the verified payload when one could be
// recovered. Payload is nil for Tampered and Malformed verdicts.
type Result struct {
	Verdict Verdict
	Payload *Payload
}

// Validator classifies stored licenses. The pipeline is strictly ordered:
// decrypt, split, verify signature, parse, check expiry, check status. Expiry
// is always evaluated against the date recovered from the verified payload,
// never against the store's copy, so a corrupted expiry column cannot extend
// a license.
type Validator struct {
	signer    *Signer
	encryptor *Encryptor
	audit     audit.Sink
	now       func() time.Time
}

// NewValidator builds a Validator. The audit sink receives an entry for every
// Tampered or Malformed verdict; those are security events.
func NewValidator(signer *Signer, encryptor *Encryptor, sink audit.Sink) *Validator {
	return &Validator{
		signer:    signer,
		encryptor: encryptor,
		audit:     sink,
		now:       time.Now,
	}
}

// Validate classifies a stored license. It returns an error only for
// infrastructure failures (never for a bad license); every defect in the
// license itself maps to a verdict.
func (v *Validator) Validate(ctx context.Context, lic *License) (*Result, error) {
	if lic == nil {
		return nil, fmt.Errorf("%w: nil license", ErrNotFound)
	}

	plaintext, err := v.encryptor.Open(lic.SealedPayload, lic.KeyVersion, []byte(lic.TenantID))
	if err != nil {
		v.recordSecurityEvent(ctx, lic.ID, "decryption or authentication failed")
		return &Result{Verdict: VerdictTampered}, nil
	}

	payloadBytes, sig, err := splitPayloadSignature(plaintext)
	if err != nil {
		v.recordSecurityEvent(ctx, lic.ID, "sealed plaintext has invalid layout")
		return &Result{Verdict: VerdictMalformed}, nil
	}

	if !v.signer.Verify(payloadBytes, sig) {
		v.recordSecurityEvent(ctx, lic.ID, "signature verification failed")
		return &Result{Verdict: VerdictTampered}, nil
	}

	payload, err := ParsePayload(payloadBytes)
	if err != nil {
		v.recordSecurityEvent(ctx, lic.ID, "verified payload is unparseable")
		return &Result{Verdict: VerdictMalformed}, nil
	}

	expiry, err := payload.Expiry()
	if err != nil {
		v.recordSecurityEvent(ctx, lic.ID, "verified payload carries invalid expiry date")
		return &Result{Verdict: VerdictMalformed}, nil
	}

	if v.now().After(expiry) {
		return &Result{Verdict: VerdictExpired, Payload: payload}, nil
	}
	if lic.Status == StatusRevoked {
		return &Result{Verdict: VerdictRevoked, Payload: payload}, nil
	}
	return &Result{Verdict: VerdictValid, Payload: payload}, nil
}

// recordSecurityEvent audits a Tampered/Malformed detection. An audit sink
// failure must not change the verdict, so the error is swallowed here; the
// slog sink makes the failure visible either way.
func (v *Validator) recordSecurityEvent(ctx context.Context, licenseID, message string) {
	if v.audit == nil {
		return
	}
	_ = v.audit.Record(ctx, "license_validator", "validation_failed", licenseID, message, true)
}
