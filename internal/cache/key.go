package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key builds a cache key by hashing a canonical JSON representation of the
// cache-relevant fields. Map keys are serialized in sorted order, so
// equivalent requests collapse to one key regardless of field ordering.
// Raw free text never appears in the key itself.
func Key(fields map[string]any) string {
	// encoding/json sorts map keys, which gives us the canonical form.
	payload, err := json.Marshal(fields)
	if err != nil {
		// Marshaling plain scalar/slice/map fields cannot fail in practice;
		// fall back to the unhashable representation rather than panic.
		payload = []byte(fmt.Sprintf("%v", fields))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
