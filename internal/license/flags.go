package license

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Flags maps feature flag names to string values. Flags are embedded inside
// the signed payload, so they are tamper-evident; a flag map supplied
// out-of-band must never be trusted.
type Flags map[string]string

// EncodeFlags produces the canonical, order-stable encoding of a flag map:
// a JSON object with keys sorted bytewise. Equal maps always encode to
// byte-identical output regardless of map iteration order.
func EncodeFlags(flags Flags) []byte {
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, k)
		buf.WriteByte(':')
		writeJSONString(&buf, flags[k])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// DecodeFlags parses an encoded flag map. Unknown flag names pass through
// untouched so newer issuers remain readable by older validators. Structural
// problems (not an object, non-string values) are reported as
// ErrMalformedFlags.
func DecodeFlags(data []byte) (Flags, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFlags, err)
	}

	flags := make(Flags, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, fmt.Errorf("%w: flag %q is not a string", ErrMalformedFlags, k)
		}
		flags[k] = s
	}
	return flags, nil
}

// Has reports whether the named flag is enabled. A flag is enabled when its
// value equals "true" ignoring case.
func (f Flags) Has(name string) bool {
	return strings.EqualFold(f[name], "true")
}

// Int returns the named flag parsed as an integer, or def when the flag is
// absent or not a valid integer. It never fails.
func (f Flags) Int(name string, def int) int {
	v, ok := f[name]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// writeJSONString appends s to buf as a quoted, escaped JSON string.
func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
