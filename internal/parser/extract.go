package parser

import (
	"regexp"
	"strings"

	"github.com/amishk599/jobsieve/internal/model"
)

// Skill keywords reported as requirements, in report order.
var skillKeywords = []string{
	// scripting and general-purpose languages
	"Python", "JavaScript", "TypeScript", "Golang", "Java", "Ruby", "PHP", "Bash", "Kotlin", "Scala",
	// data stores
	"SQL", "PostgreSQL", "MySQL", "MongoDB", "Redis", "Elasticsearch", "DynamoDB", "Snowflake",
	// styling and front end
	"HTML", "CSS", "Sass", "Tailwind", "React", "Vue", "Angular",
	// testing
	"Jest", "Cypress", "Selenium", "Playwright", "Pytest", "JUnit",
}

var skillPatterns = compileWordPatterns(skillKeywords)

// Locations recognised by the generic parser and the glassdoor fallback.
var knownLocations = []string{
	"London", "Leeds", "Manchester", "Birmingham", "Bristol", "Edinburgh", "Glasgow", "Cardiff",
	"Liverpool", "Newcastle", "Sheffield", "Nottingham", "Cambridge", "Oxford", "Belfast", "Reading",
	"Dublin", "Amsterdam", "Berlin", "Paris", "New York", "San Francisco", "Remote", "United Kingdom",
}

var locationPatterns = compileWordPatterns(knownLocations)

func compileWordPatterns(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return out
}

// extractRequirements returns the skill keywords mentioned in body, or the
// general-experience sentinel when none are.
func extractRequirements(body string) []string {
	var reqs []string
	for i, re := range skillPatterns {
		if re.MatchString(body) {
			reqs = append(reqs, skillKeywords[i])
		}
	}
	if len(reqs) == 0 {
		return []string{model.GeneralExperience}
	}
	return reqs
}

// lookupLocation returns the known location mentioned earliest in text.
func lookupLocation(text string) (string, bool) {
	best, at := -1, len(text)
	for i, re := range locationPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] < at {
			best, at = i, loc[0]
		}
	}
	if best < 0 {
		return "", false
	}
	return knownLocations[best], true
}

// findSalary returns the first pay figure in text.
func findSalary(text string) string {
	return strings.TrimSpace(salaryRegex.FindString(text))
}

// newCandidate fills the fields shared by every parser.
func newCandidate(msg model.RawMessage, source model.SourceKind, title, company, location string, reqs []string) model.Candidate {
	return model.Candidate{
		Title:        strings.TrimSpace(title),
		Company:      strings.TrimSpace(company),
		Location:     strings.TrimSpace(location),
		Requirements: reqs,
		PostedAt:     msg.ReceivedAt,
		Source:       source,
	}
}

// trailer consumes the optional salary and posted tokens that may follow a
// block, starting at toks[i]. It returns the index after the last consumed
// token.
func trailer(toks []token, i int, c *model.Candidate) int {
	if i < len(toks) && toks[i].kind == tokSalary && c.SalaryRange == "" {
		c.SalaryRange = toks[i].text
		i++
	}
	if i < len(toks) && toks[i].kind == tokPosted {
		if !c.PostedAt.IsZero() {
			c.PostedAt = c.PostedAt.Add(-toks[i].age)
		}
		i++
	}
	return i
}
