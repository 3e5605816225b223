package parser

import (
	"regexp"
	"strings"

	"github.com/amishk599/jobsieve/internal/model"
)

var roleKeywords = []string{
	"engineer", "developer", "analyst", "manager", "designer", "architect", "scientist",
	"consultant", "administrator", "specialist", "lead", "tester", "programmer", "coach",
	"director", "intern", "technician", "officer",
}

var roleRegex = regexp.MustCompile(`(?i)\b(` + strings.Join(roleKeywords, "|") + `)s?\b`)

var (
	atCompanyRegex = regexp.MustCompile(`(?i)^(.+?)\s+at\s+(.+?)(?:\s+in\s+(.+))?$`)
	isHiringRegex  = regexp.MustCompile(`(?i)^(.+?)\s+(?:is|are)\s+hiring:?\s*(?:an?\s+)?(.+)$`)
)

// windowSize is how many lines after a title line are searched for salary
// and location.
const windowSize = 4

// ParseGeneric extracts listings from notifications of unknown layout using
// keyword heuristics. A line naming a role becomes a title. The company comes
// from "Title at Company", "Company is hiring: Title", a "Title | Company"
// line or the next line that is not itself a role. Listings without a company
// are dropped.
func ParseGeneric(msg model.RawMessage) []model.Candidate {
	toks := tokenize(msg.Body)
	lines := make([]string, len(toks))
	for i, tok := range toks {
		lines[i] = tok.text
	}
	reqs := extractRequirements(plainText(msg.Body))

	var out []model.Candidate
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !roleRegex.MatchString(line) {
			continue
		}
		title, company, location, consumed := splitGenericLine(lines, i)
		if company == "" {
			continue
		}

		window := strings.Join(lines[i:min(len(lines), i+windowSize+1)], "\n")
		if location == "" {
			location = "Unknown"
			if loc, ok := lookupLocation(window); ok {
				location = loc
			}
		}
		c := newCandidate(msg, model.SourceGeneric, title, company, location, reqs)
		c.SalaryRange = findSalary(window)
		out = append(out, c)
		i += consumed
	}
	return out
}

// splitGenericLine reads title, company and location out of lines[i]. The
// returned count is the number of extra lines used.
func splitGenericLine(lines []string, i int) (title, company, location string, consumed int) {
	line := lines[i]

	if m := isHiringRegex.FindStringSubmatch(line); m != nil {
		return trimTitle(m[2]), strings.TrimSpace(m[1]), "", 0
	}
	if m := atCompanyRegex.FindStringSubmatch(line); m != nil {
		return trimTitle(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3]), 0
	}
	if parts := strings.Split(line, "|"); len(parts) >= 2 {
		for j := range parts {
			parts[j] = strings.TrimSpace(parts[j])
		}
		if len(parts) >= 3 {
			location = parts[2]
		}
		return trimTitle(parts[0]), parts[1], location, 0
	}

	if i+1 < len(lines) {
		next := lines[i+1]
		if !roleRegex.MatchString(next) && !salaryRegex.MatchString(next) {
			if _, isLoc := lookupLocation(next); !isLoc {
				return trimTitle(line), next, "", 1
			}
		}
	}
	return trimTitle(line), "", "", 0
}

func trimTitle(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), ":-–—"))
}
