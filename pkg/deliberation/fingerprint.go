package deliberation

import (
	"strings"
)

// normalizeContent trims, collapses runs of whitespace and lowercases
func normalizeContent(content string) string {
	return strings.ToLower(strings.Join(strings.Fields(content), " "))
}

// fingerprintSet remembers messages that were posted successfully. Lookup and
// marking are separate so that a failed post leaves no trace.
type fingerprintSet struct {
	seen map[string]struct{}
}

func newFingerprintSet() *fingerprintSet {
	return &fingerprintSet{seen: make(map[string]struct{})}
}

func fingerprint(fromAgentID, toAgentID, content string) string {
	return fromAgentID + "\x00" + toAgentID + "\x00" + normalizeContent(content)
}

func (f *fingerprintSet) Seen(key string) bool {
	_, ok := f.seen[key]
	return ok
}

func (f *fingerprintSet) Mark(key string) {
	f.seen[key] = struct{}{}
}

func (f *fingerprintSet) Len() int {
	return len(f.seen)
}
