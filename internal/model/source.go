package model

import "strings"

// SourceKind identifies the job board a notification came from.
type SourceKind string

const (
	SourceLinkedIn  SourceKind = "linkedin"
	SourceIndeed    SourceKind = "indeed"
	SourceGlassdoor SourceKind = "glassdoor"
	SourceGeneric   SourceKind = "generic"
)

// KnownSources lists every source kind with a dedicated parser, generic last.
var KnownSources = []SourceKind{SourceLinkedIn, SourceIndeed, SourceGlassdoor, SourceGeneric}

// ParseSourceKind maps a user-supplied name to a SourceKind. Unknown names map
// to SourceGeneric with ok=false.
func ParseSourceKind(s string) (SourceKind, bool) {
	k := SourceKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownSources {
		if k == known {
			return k, true
		}
	}
	return SourceGeneric, false
}

// HourlyCap is the maximum number of external requests allowed per source in
// any trailing 60-minute window.
func (k SourceKind) HourlyCap() int {
	if k == SourceLinkedIn {
		return 10
	}
	return 20
}

// BaseScore is the starting relevance score for candidates from this source.
func (k SourceKind) BaseScore() int {
	switch k {
	case SourceLinkedIn:
		return 70
	case SourceIndeed, SourceGlassdoor:
		return 65
	default:
		return 60
	}
}

func (k SourceKind) String() string { return string(k) }
