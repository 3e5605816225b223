package model

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RawMessage is one inbound notification as delivered by a job board.
type RawMessage struct {
	Source     SourceKind `json:"source" yaml:"source"`
	Body       string     `json:"body" yaml:"body"`
	ReceivedAt time.Time  `json:"received_at" yaml:"received_at"`
}

// GeneralExperience is the requirement reported when no known skill keyword
// appears in a message.
const GeneralExperience = "general experience"

// Candidate is a listing extracted from a RawMessage, not yet scored or stored.
type Candidate struct {
	Title        string
	Company      string
	Location     string
	SalaryRange  string // empty when the source gives none
	Requirements []string
	PostedAt     time.Time
	Source       SourceKind
	RawScore     int // 0-100, set by the scoring engine
}

// MatchRecord is a persisted listing that passed the threshold for a user.
type MatchRecord struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	IdentityKey  string     `json:"identity_key"`
	Title        string     `json:"title"`
	Company      string     `json:"company"`
	Location     string     `json:"location"`
	SalaryRange  string     `json:"salary_range,omitempty"`
	Requirements []string   `json:"requirements"`
	PostedAt     time.Time  `json:"posted_at"`
	Source       SourceKind `json:"source"`
	Score        int        `json:"score"`
	IsSaved      bool       `json:"is_saved"`
	IsDismissed  bool       `json:"is_dismissed"`
	IsApplied    bool       `json:"is_applied"`
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// MatchFlags carries the user-controlled status flags of a MatchRecord. Nil
// fields are left unchanged.
type MatchFlags struct {
	IsSaved     *bool `json:"is_saved,omitempty"`
	IsDismissed *bool `json:"is_dismissed,omitempty"`
	IsApplied   *bool `json:"is_applied,omitempty"`
}

// MatchFilter narrows ListMatches results.
type MatchFilter struct {
	IncludeDismissed bool
	OnlySaved        bool
	MinScore         int
	Limit            int
}

// IdentityKey derives the deduplication key for a title+company pair. It is
// case-insensitive and ignores accents, punctuation and spacing differences.
func IdentityKey(title, company string) string {
	return normalizeIdentity(title) + "::" + normalizeIdentity(company)
}

func normalizeIdentity(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped) // Caser is stateful, not shared

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}
