package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
)

// Fingerprint returns a stable cache key for a method body: the SHA-256 of
// its msgpack encoding with sorted map keys, prefixed by salt. Callers put
// anything that changes the analysis outcome (engine version, options) in
// salt.
func Fingerprint(m *bytecode.Method, salt string) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("failed to encode method %s: %w", m.ID(), err)
	}
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte{0})
	h.Write(buf.Bytes())
	return hex.EncodeToString(h.Sum(nil)), nil
}
