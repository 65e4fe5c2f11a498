package coalesce

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint computes the deduplication key for one logical request.
//
// Two requests hash identically iff they share the target (endpoint name
// plus operation path), the call mode, the canonicalized payload, and the
// caller credential. The mode keeps a streaming call from attaching to a
// non-streaming execution whose result carries no increments. The
// credential is folded in as a SHA-256 digest so responses scoped to a
// caller never coalesce across callers, while the credential itself never
// appears in the fingerprint, in logs, or anywhere else in cleartext.
func Fingerprint(endpoint, path, mode string, payload []byte, credential string) string {
	d := xxhash.New()

	// The separators keep ("a","bc") and ("ab","c") distinct.
	_, _ = d.WriteString(endpoint)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(path)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(mode)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(canonicalize(payload))
	_, _ = d.Write([]byte{0})

	if credential != "" {
		sum := sha256.Sum256([]byte(credential))
		_, _ = d.Write(sum[:])
	}

	return strconv.FormatUint(d.Sum64(), 16)
}

// canonicalize normalizes a JSON payload so insignificant whitespace does
// not defeat deduplication. Non-JSON payloads are fingerprinted verbatim.
func canonicalize(payload []byte) []byte {
	if len(payload) == 0 {
		return payload
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return payload
	}
	return buf.Bytes()
}
