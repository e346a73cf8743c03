package store

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// DocumentID derives a stable 16 hex char id from content and its metadata,
// so ingesting the same document twice overwrites instead of duplicating.
func DocumentID(content string, metadata map[string]interface{}) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := xxhash.New()
	_, _ = d.WriteString(content)
	for _, k := range keys {
		_, _ = fmt.Fprintf(d, "\x00%s=%v", k, metadata[k])
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
