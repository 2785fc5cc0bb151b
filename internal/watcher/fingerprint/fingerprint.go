// Package fingerprint computes the change-detection digest of a record set.
package fingerprint

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

// Of returns a 16-hex-digit xxhash64 of the records serialized as a JSON list of
// label->value objects. Object keys are sorted, list order is kept, so any field
// change or reorder yields a different digest.
func Of(records []models.MatchRecord) string {
	canonical := make([]map[string]string, len(records))
	for i, r := range records {
		canonical[i] = r.Fields()
	}

	// map[string]string always marshals
	data, _ := json.Marshal(canonical)
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
