// Package sign implements the provider's wire signature scheme: ASCII-sorted
// key=value pairs, a trailing secret, and an MD5 digest in lowercase hex.
//
// MD5 is a hard requirement of the provider protocol, not a choice; the
// output must match the provider byte for byte, so nothing here may be
// "upgraded" to a stronger hash or a different sort order.
package sign

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// Field name carrying the signature itself; always excluded from signing.
const SignField = "sign"

// Sign computes the signature over params with the given secret key.
//
// Entries with empty values and the "sign" entry are dropped, the remaining
// keys are sorted in ascending byte order (case-sensitive), concatenated as
// k1=v1&k2=v2&..., and "&Key=<secretKey>" is appended before hashing.
// Deterministic: map iteration order never affects the result.
func Sign(params map[string]string, secretKey string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == SignField || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString("&Key=")
	b.WriteString(secretKey)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the signature over params (minus the sign field) and
// compares it to claimed. The comparison is case-sensitive; an uppercase hex
// signature does not verify. Never panics, never returns an error: a false
// result is the caller's authorization failure.
func Verify(params map[string]string, claimed, secretKey string) bool {
	if claimed == "" {
		return false
	}
	expected := Sign(params, secretKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) == 1
}
