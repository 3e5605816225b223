package scoring

import (
	"regexp"
	"strings"

	"github.com/amishk599/jobsieve/internal/model"
)

// Bonus points added on top of the source's base score.
const (
	SeniorityBonus = 10
	LocationBonus  = 5
	RemoteBonus    = 5
	SalaryBonus    = 5
	MaxScore       = 100
)

// DefaultSeniorityTerms and DefaultLocationTerms are used when the scorer is
// built without explicit keyword lists.
var (
	DefaultSeniorityTerms = []string{"senior", "lead", "principal", "staff", "head of", "mentor", "coach"}
	DefaultLocationTerms  = []string{"london", "leeds", "manchester", "uk"}
	remoteTerms           = []string{"remote", "hybrid"}
)

var salaryRegex = regexp.MustCompile(`(?i)[£$€]\s?\d[\d,.]*\s?k?|\b\d{2,3}(?:,\d{3}|k)\b\s*(?:-|to)`)

// Scorer computes a 0-100 relevance score for a candidate. Matching is
// case-insensitive on word boundaries. The zero value is not usable; build
// one with NewScorer.
type Scorer struct {
	seniority *regexp.Regexp
	location  *regexp.Regexp
	remote    *regexp.Regexp
}

// NewScorer returns a scorer for the given keyword lists. Empty lists fall
// back to the defaults.
func NewScorer(seniorityTerms, locationTerms []string) *Scorer {
	if len(seniorityTerms) == 0 {
		seniorityTerms = DefaultSeniorityTerms
	}
	if len(locationTerms) == 0 {
		locationTerms = DefaultLocationTerms
	}
	return &Scorer{
		seniority: termsRegex(seniorityTerms),
		location:  termsRegex(locationTerms),
		remote:    termsRegex(remoteTerms),
	}
}

func termsRegex(terms []string) *regexp.Regexp {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(t))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Score returns the candidate's relevance given the body of the message it
// came from. It is deterministic and performs no I/O.
func (s *Scorer) Score(c model.Candidate, body string) int {
	text := body + "\n" + c.Title + "\n" + c.Location

	score := c.Source.BaseScore()
	if matches(s.seniority, text) {
		score += SeniorityBonus
	}
	if matches(s.location, text) {
		score += LocationBonus
	}
	if matches(s.remote, text) {
		score += RemoteBonus
	}
	if c.SalaryRange != "" || salaryRegex.MatchString(body) {
		score += SalaryBonus
	}
	return min(score, MaxScore)
}

func matches(re *regexp.Regexp, text string) bool {
	return re != nil && re.MatchString(text)
}
