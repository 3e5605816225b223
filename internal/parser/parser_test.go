package parser

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/amishk599/jobsieve/internal/model"
)

var received = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func msg(source model.SourceKind, body string) model.RawMessage {
	return model.RawMessage{Source: source, Body: body, ReceivedAt: received}
}

type want struct {
	title, company, location, salary string
}

func checkCandidates(t *testing.T, got []model.Candidate, wants []want) {
	t.Helper()
	if len(got) != len(wants) {
		t.Fatalf("got %d candidates, want %d: %+v", len(got), len(wants), got)
	}
	for i, w := range wants {
		c := got[i]
		if c.Title != w.title || c.Company != w.company || c.Location != w.location || c.SalaryRange != w.salary {
			t.Errorf("candidate %d = {%q %q %q %q}, want {%q %q %q %q}", i,
				c.Title, c.Company, c.Location, c.SalaryRange,
				w.title, w.company, w.location, w.salary)
		}
	}
}

const linkedInAlert = `Your job alert for senior engineer
Acme Corp
Senior Engineer
Acme Corp · London (Hybrid)
Acme Corp
Senior Engineer
Acme Corp · London (Hybrid)
Beta Ltd
Analyst
Beta Ltd · Leeds
£45,000 - £55,000 a year
2 days ago
View job
Unsubscribe`

func TestParseLinkedIn(t *testing.T) {
	got := ParseLinkedIn(msg(model.SourceLinkedIn, linkedInAlert))
	checkCandidates(t, got, []want{
		{"Senior Engineer", "Acme Corp", "London (Hybrid)", ""},
		{"Senior Engineer", "Acme Corp", "London (Hybrid)", ""},
		{"Analyst", "Beta Ltd", "Leeds", "£45,000 - £55,000 a year"},
	})
	if !got[0].PostedAt.Equal(received) {
		t.Errorf("PostedAt = %v, want receivedAt %v", got[0].PostedAt, received)
	}
	if want := received.Add(-48 * time.Hour); !got[2].PostedAt.Equal(want) {
		t.Errorf("PostedAt = %v, want %v", got[2].PostedAt, want)
	}
	for _, c := range got {
		if c.Source != model.SourceLinkedIn {
			t.Errorf("Source = %q, want linkedin", c.Source)
		}
	}
}

func TestParseLinkedIn_HTML(t *testing.T) {
	body := `<html><head><style>td { color: red }</style></head><body><table>
<tr><td><a href="https://example.com/c">Acme&nbsp;Corp</a></td></tr>
<tr><td>Senior   Engineer</td></tr>
<tr><td>Acme Corp &middot; London (Hybrid)</td></tr>
<tr><td><a href="https://example.com/j">View job</a></td></tr>
</table></body></html>`

	got := ParseLinkedIn(msg(model.SourceLinkedIn, body))
	checkCandidates(t, got, []want{
		{"Senior Engineer", "Acme Corp", "London (Hybrid)", ""},
	})
}

func TestParseLinkedIn_CompanyMismatchSkipped(t *testing.T) {
	body := "Acme Corp\nSenior Engineer\nOther Co · London"
	if got := ParseLinkedIn(msg(model.SourceLinkedIn, body)); len(got) != 0 {
		t.Errorf("expected no candidates, got %+v", got)
	}
}

func TestParseIndeed(t *testing.T) {
	body := `Software Developer
Gamma Inc
Manchester
£45,000 - £55,000 a year
Full-time
Posted 3 days ago
Data Engineer
Delta plc
Remote
Contract
Just posted`

	got := ParseIndeed(msg(model.SourceIndeed, body))
	checkCandidates(t, got, []want{
		{"Software Developer", "Gamma Inc", "Manchester", "£45,000 - £55,000 a year"},
		{"Data Engineer", "Delta plc", "Remote", ""},
	})
	if want := received.Add(-72 * time.Hour); !got[0].PostedAt.Equal(want) {
		t.Errorf("PostedAt = %v, want %v", got[0].PostedAt, want)
	}
	if !got[1].PostedAt.Equal(received) {
		t.Errorf("PostedAt = %v, want %v", got[1].PostedAt, received)
	}
}

func TestParseIndeed_NoJobTypeNoMatch(t *testing.T) {
	body := "Software Developer\nGamma Inc\nManchester\nApply now"
	if got := ParseIndeed(msg(model.SourceIndeed, body)); len(got) != 0 {
		t.Errorf("expected no candidates, got %+v", got)
	}
}

func TestParseGlassdoor(t *testing.T) {
	body := `Data Analyst - £40K - £50K (Employer est.)
Beta Ltd
3.9 ★
Leeds
QA Engineer
Epsilon Labs
4.1 ★`

	got := ParseGlassdoor(msg(model.SourceGlassdoor, body))
	checkCandidates(t, got, []want{
		{"Data Analyst", "Beta Ltd", "Leeds", "£40K - £50K (Employer est.)"},
		{"QA Engineer", "Epsilon Labs", "Unknown", ""},
	})
}

func TestParseGlassdoor_LocationNotStolenFromNextBlock(t *testing.T) {
	body := `Data Analyst
Beta Ltd
3.9 ★
Support Engineer London
Theta Ltd
4.0 ★`

	got := ParseGlassdoor(msg(model.SourceGlassdoor, body))
	checkCandidates(t, got, []want{
		{"Data Analyst", "Beta Ltd", "Unknown", ""},
		{"Support Engineer London", "Theta Ltd", "London", ""},
	})
}

func TestParseGeneric(t *testing.T) {
	body := `New opportunities this week
Senior Backend Engineer at Zeta Systems in London
Salary: £70,000 - £80,000
Omega Corp is hiring: Product Designer
Remote friendly
Platform Engineer
Kappa Ltd
Manchester
Lonely Architect`

	got := ParseGeneric(msg(model.SourceGeneric, body))
	checkCandidates(t, got, []want{
		{"Senior Backend Engineer", "Zeta Systems", "London", "£70,000 - £80,000"},
		{"Product Designer", "Omega Corp", "Remote", ""},
		{"Platform Engineer", "Kappa Ltd", "Manchester", ""},
	})
}

func TestParseGeneric_PipeSeparated(t *testing.T) {
	body := "Backend Developer | Sigma AG | Berlin"
	got := ParseGeneric(msg(model.SourceGeneric, body))
	checkCandidates(t, got, []want{{"Backend Developer", "Sigma AG", "Berlin", ""}})
}

func TestExtractRequirements(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"case insensitive", "We use python, POSTGRESQL and react.", []string{"Python", "PostgreSQL", "React"}},
		{"word boundaries", "JavaScript only", []string{"JavaScript"}},
		{"none", "A great place to work", []string{model.GeneralExperience}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractRequirements(tt.body); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractRequirements() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsersAreTotal(t *testing.T) {
	bodies := []string{"", "   \n\n", "<html><body></body></html>", "★★★\n- - -\n· · ·", "<p>unterminated"}
	for _, fn := range []Func{ParseLinkedIn, ParseIndeed, ParseGlassdoor, ParseGeneric} {
		for _, body := range bodies {
			if got := fn(msg(model.SourceGeneric, body)); len(got) != 0 {
				t.Errorf("expected no candidates for %q, got %+v", body, got)
			}
		}
	}
}

func TestRegistry_Parse(t *testing.T) {
	r := NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))

	got := r.Parse(msg(model.SourceKind("monster"), "Backend Developer at Sigma AG in Berlin"))
	checkCandidates(t, got, []want{{"Backend Developer", "Sigma AG", "Berlin", ""}})

	got = r.Parse(msg(model.SourceLinkedIn, linkedInAlert))
	if len(got) != 3 {
		t.Errorf("linkedin dispatch: got %d candidates, want 3", len(got))
	}
}

func TestRegistry_RecoversFromPanic(t *testing.T) {
	r := NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Register(model.SourceIndeed, func(model.RawMessage) []model.Candidate {
		panic("boom")
	})

	if got := r.Parse(msg(model.SourceIndeed, "anything")); got != nil {
		t.Errorf("expected nil after panic, got %+v", got)
	}
}
