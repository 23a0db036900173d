package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// Fingerprint digests an item together with the mapping configuration.
// Map keys are sorted at every level by the JSON encoding, so field order
// never changes the result.
func Fingerprint(item domain.Item, mappings []Mapping) string {
	h := sha256.New()
	h.Write(canonical(item))
	h.Write([]byte{0})
	h.Write(canonical(mappings))
	return hex.EncodeToString(h.Sum(nil))
}

func canonical(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Appendf(nil, "%v", v)
	}
	return b
}
