package license

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// payloadDateFormat is the fixed wire format for dates inside the canonical
// payload. Times are normalized to UTC before formatting.
const payloadDateFormat = time.RFC3339

// Payload is the parsed form of the canonical payload bytes. It is produced
// by ParsePayload during validation; issuance writes the bytes directly.
type Payload struct {
	TenantID     string `json:"tenant_id"`
	ProductCode  string `json:"product_code"`
	MaxUsers     int    `json:"max_users"`
	IssuedDate   string `json:"issued_date"`
	ExpiryDate   string `json:"expiry_date"`
	FeatureFlags Flags  `json:"feature_flags"`
}

// BuildPayload serializes the logical license fields into their canonical
// byte form. The output is deterministic: fixed field order, RFC3339 UTC
// dates, decimal integers, and bytewise-sorted flag keys. The signature is
// computed over exactly these bytes, and verification reads them back from
// the sealed blob, never from a mutable object graph.
//
// Terms are checked before any serialization so that bad input is rejected
// without touching key material.
func BuildPayload(tenantID, productCode string, maxUsers int, issuedDate, expiryDate time.Time, flags Flags) ([]byte, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidLicenseTerms)
	}
	if strings.TrimSpace(productCode) == "" {
		return nil, fmt.Errorf("%w: product code is required", ErrInvalidLicenseTerms)
	}
	if maxUsers < 1 {
		return nil, fmt.Errorf("%w: max users must be at least 1, got %d", ErrInvalidLicenseTerms, maxUsers)
	}
	if !expiryDate.After(issuedDate) {
		return nil, fmt.Errorf("%w: expiry date must be after issued date", ErrInvalidLicenseTerms)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"tenant_id":`)
	writeJSONString(&buf, tenantID)
	buf.WriteString(`,"product_code":`)
	writeJSONString(&buf, productCode)
	buf.WriteString(`,"max_users":`)
	buf.WriteString(strconv.Itoa(maxUsers))
	buf.WriteString(`,"issued_date":`)
	writeJSONString(&buf, issuedDate.UTC().Format(payloadDateFormat))
	buf.WriteString(`,"expiry_date":`)
	writeJSONString(&buf, expiryDate.UTC().Format(payloadDateFormat))
	buf.WriteString(`,"feature_flags":`)
	buf.Write(EncodeFlags(flags))
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// ParsePayload decodes canonical payload bytes back into their logical
// fields. It is only called on bytes whose signature already verified, so a
// parse failure means the payload format itself is broken, not tampered.
func ParsePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &p, nil
}

// Expiry returns the payload's expiry date. The verified payload is the only
// trusted source of the expiry; a separately stored expiry column may have
// drifted or been edited.
func (p *Payload) Expiry() (time.Time, error) {
	t, err := time.Parse(payloadDateFormat, p.ExpiryDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad expiry date: %v", ErrMalformedPayload, err)
	}
	return t, nil
}

// Issued returns the payload's issue date.
func (p *Payload) Issued() (time.Time, error) {
	t, err := time.Parse(payloadDateFormat, p.IssuedDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad issued date: %v", ErrMalformedPayload, err)
	}
	return t, nil
}
