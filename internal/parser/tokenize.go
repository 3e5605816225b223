package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type tokenKind int

const (
	tokText            tokenKind = iota
	tokSalary                    // the whole line is a pay figure
	tokJobType                   // "Full-time", "Contract", ...
	tokRating                    // "4.2 ★"
	tokCompanyLocation           // "Acme Corp · London (Hybrid)"
	tokTitleSalary               // "Data Analyst - £40K - £50K (Employer est.)"
	tokPosted                    // "Posted 3 days ago"
)

var tokenKindNames = map[tokenKind]string{
	tokText:            "text",
	tokSalary:          "salary",
	tokJobType:         "job_type",
	tokRating:          "rating",
	tokCompanyLocation: "company_location",
	tokTitleSalary:     "title_salary",
	tokPosted:          "posted",
}

func (k tokenKind) String() string { return tokenKindNames[k] }

// token is one classified line of a notification.
type token struct {
	kind tokenKind
	text string
	// left/right hold the split halves for tokCompanyLocation (company,
	// location) and tokTitleSalary (title, salary).
	left, right string
	age         time.Duration // tokPosted only
}

var (
	salaryRegex       = regexp.MustCompile(`(?i)[£$€]\s?\d[\d,.]*\s?[km]?(?:\s*(?:-|–|to)\s*[£$€]?\s?\d[\d,.]*\s?[km]?)?(?:\s*(?:a|an|per|/)\s*(?:year|yr|annum|hour|hr|day|month))?`)
	salaryFillerRegex = regexp.MustCompile(`(?i)\b(up|to|from|estimated|est|salary|pay|employer|glassdoor|base|ote|plus|benefits|dpd)\b`)
	ratingRegex       = regexp.MustCompile(`^([0-5](?:\.\d)?)\s*(?:★|\*|stars?|/\s*5)?$`)
	postedRegex       = regexp.MustCompile(`(?i)^(?:posted\s+|active\s+)?(just posted|today|yesterday|(\d+)\+?\s*(h|hr|hrs|hour|hours|d|day|days|w|week|weeks)\s+ago)$`)
	jobTypes          = map[string]bool{
		"full-time": true, "full time": true, "part-time": true, "part time": true,
		"contract": true, "permanent": true, "temporary": true, "internship": true,
		"freelance": true, "apprenticeship": true, "fixed term": true, "fixed-term": true,
	}
	jobTypeSplitRegex = regexp.MustCompile(`\s*(?:,|/|\+|\band\b)\s*`)
	titleSalarySeps   = []string{" - ", " – ", " — "}
	companyLocSeps    = []string{" · ", " • "}
)

// Lines that carry no listing content in the supported notification layouts.
var noisePrefixes = []string{
	"view job", "view jobs", "view all", "see all jobs", "see more jobs", "apply now", "easy apply",
	"apply with", "unsubscribe", "manage alerts", "manage job alerts", "job alert", "your job alert",
	"jobs you may be interested in", "promoted", "actively recruiting", "be an early applicant",
	"sign in", "privacy policy", "help center", "you are receiving", "this email was sent",
	"new job", "new jobs", "save job", "responsive employer", "urgently hiring",
}

// tokenize splits body into classified tokens, dropping boilerplate lines.
func tokenize(body string) []token {
	lines := bodyLines(body)
	tokens := make([]token, 0, len(lines))
	for _, line := range lines {
		if isNoise(line) {
			continue
		}
		tokens = append(tokens, classify(line))
	}
	return tokens
}

func isNoise(line string) bool {
	lower := strings.ToLower(line)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return true
	}
	for _, p := range noisePrefixes {
		if lower == p || strings.HasPrefix(lower, p+" ") || strings.HasPrefix(lower, p+":") {
			return true
		}
	}
	return false
}

func classify(line string) token {
	if ratingRegex.MatchString(line) {
		return token{kind: tokRating, text: line}
	}
	if age, ok := postedAge(line); ok {
		return token{kind: tokPosted, text: line, age: age}
	}
	if isJobType(line) {
		return token{kind: tokJobType, text: line}
	}
	if isSalaryLine(line) {
		return token{kind: tokSalary, text: line}
	}
	if title, salary, ok := splitTitleSalary(line); ok {
		return token{kind: tokTitleSalary, text: line, left: title, right: salary}
	}
	for _, sep := range companyLocSeps {
		if company, location, ok := strings.Cut(line, sep); ok {
			company, location = strings.TrimSpace(company), strings.TrimSpace(location)
			if company != "" && location != "" {
				return token{kind: tokCompanyLocation, text: line, left: company, right: location}
			}
		}
	}
	return token{kind: tokText, text: line}
}

func isJobType(line string) bool {
	parts := jobTypeSplitRegex.Split(strings.ToLower(line), -1)
	for _, p := range parts {
		if !jobTypes[strings.TrimSpace(p)] {
			return false
		}
	}
	return len(parts) > 0
}

// isSalaryLine reports whether line holds a pay figure and nothing else
// besides filler words such as "up to" or "(Employer est.)".
func isSalaryLine(line string) bool {
	if !salaryRegex.MatchString(line) {
		return false
	}
	rest := salaryRegex.ReplaceAllString(line, "")
	rest = salaryFillerRegex.ReplaceAllString(rest, "")
	for _, r := range rest {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}

// splitTitleSalary splits "Title - £40K - £50K" into title and salary.
func splitTitleSalary(line string) (string, string, bool) {
	for _, sep := range titleSalarySeps {
		title, rest, ok := strings.Cut(line, sep)
		if !ok {
			continue
		}
		title, rest = strings.TrimSpace(title), strings.TrimSpace(rest)
		if title == "" || !isSalaryLine(rest) {
			continue
		}
		return title, rest, true
	}
	return "", "", false
}

// postedAge parses relative posting lines into how long ago the listing
// was posted.
func postedAge(line string) (time.Duration, bool) {
	m := postedRegex.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	switch strings.ToLower(m[1]) {
	case "just posted", "today":
		return 0, true
	case "yesterday":
		return 24 * time.Hour, true
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	unit := time.Hour
	switch strings.ToLower(m[3]) {
	case "d", "day", "days":
		unit = 24 * time.Hour
	case "w", "week", "weeks":
		unit = 7 * 24 * time.Hour
	}
	return time.Duration(n) * unit, true
}
