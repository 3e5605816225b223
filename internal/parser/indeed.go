package parser

import "github.com/amishk599/jobsieve/internal/model"

// ParseIndeed extracts listings from an Indeed alert. Each listing is
//
//	title / company / location / [salary] / job type / [posted]
//
// The job type line anchors the block; without it nothing is extracted.
func ParseIndeed(msg model.RawMessage) []model.Candidate {
	toks := tokenize(msg.Body)
	reqs := extractRequirements(plainText(msg.Body))

	var out []model.Candidate
	for i := 0; i+3 < len(toks); {
		title, company, location := toks[i], toks[i+1], toks[i+2]
		if title.kind != tokText || company.kind != tokText || location.kind != tokText {
			i++
			continue
		}
		j := i + 3
		salary := ""
		if toks[j].kind == tokSalary {
			salary = toks[j].text
			j++
		}
		if j >= len(toks) || toks[j].kind != tokJobType {
			i++
			continue
		}
		c := newCandidate(msg, model.SourceIndeed, title.text, company.text, location.text, reqs)
		c.SalaryRange = salary
		i = trailer(toks, j+1, &c)
		out = append(out, c)
	}
	return out
}
