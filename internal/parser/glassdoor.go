package parser

import "github.com/amishk599/jobsieve/internal/model"

// ParseGlassdoor extracts listings from a Glassdoor alert. Each listing is
//
//	Data Analyst - £40K - £50K (Employer est.)
//	Beta Ltd
//	3.9 ★
//
// where the salary part of the first line is optional. A following line
// naming a known location is taken as the location; otherwise the block is
// searched for one.
func ParseGlassdoor(msg model.RawMessage) []model.Candidate {
	toks := tokenize(msg.Body)
	reqs := extractRequirements(plainText(msg.Body))

	var out []model.Candidate
	for i := 0; i+2 < len(toks); {
		head, company, rating := toks[i], toks[i+1], toks[i+2]
		if (head.kind != tokText && head.kind != tokTitleSalary) || company.kind != tokText || rating.kind != tokRating {
			i++
			continue
		}
		title, salary := head.text, ""
		if head.kind == tokTitleSalary {
			title, salary = head.left, head.right
		}

		j := i + 3
		location := ""
		if j < len(toks) && toks[j].kind == tokText && !startsGlassdoorBlock(toks, j) {
			if _, ok := lookupLocation(toks[j].text); ok {
				location = toks[j].text
				j++
			}
		}
		if location == "" {
			location = "Unknown"
			if loc, ok := lookupLocation(title + " " + company.text); ok {
				location = loc
			}
		}

		c := newCandidate(msg, model.SourceGlassdoor, title, company.text, location, reqs)
		c.SalaryRange = salary
		i = trailer(toks, j, &c)
		out = append(out, c)
	}
	return out
}

// startsGlassdoorBlock reports whether toks[i] is the head of another listing.
func startsGlassdoorBlock(toks []token, i int) bool {
	return i+2 < len(toks) && toks[i+1].kind == tokText && toks[i+2].kind == tokRating
}
