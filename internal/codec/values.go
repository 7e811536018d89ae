package codec

import (
	"fmt"
	"strings"
)

// DefaultUnknown is the display used for values missing from a ValueMap.
const DefaultUnknown = "Unknown (%d)"

// ValueMap maps protocol codes to display names.
type ValueMap map[uint64]string

// Lookup returns the name for v, or fallback formatted with v when absent.
// A fallback without a format verb is returned as-is.
func (m ValueMap) Lookup(v uint64, fallback string) string {
	if name, ok := m[v]; ok {
		return name
	}
	if fallback == "" {
		fallback = DefaultUnknown
	}
	if strings.Contains(fallback, "%") {
		return fmt.Sprintf(fallback, v)
	}
	return fallback
}

// Has reports whether v has a name.
func (m ValueMap) Has(v uint64) bool {
	_, ok := m[v]
	return ok
}
