package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amishk599/jobsieve/internal/model"
)

func TestScorer_Score(t *testing.T) {
	s := NewScorer(nil, nil)

	tests := []struct {
		name string
		c    model.Candidate
		body string
		want int
	}{
		{
			name: "base score only",
			c:    model.Candidate{Title: "Clerk", Location: "Nowhere", Source: model.SourceGeneric},
			body: "An opening for a clerk.",
			want: 60,
		},
		{
			name: "seniority in title",
			c:    model.Candidate{Title: "Lead Developer", Location: "Paris", Source: model.SourceIndeed},
			want: 75,
		},
		{
			name: "coaching term in body",
			c:    model.Candidate{Title: "Developer", Location: "Paris", Source: model.SourceGlassdoor},
			body: "You will mentor two juniors.",
			want: 75,
		},
		{
			name: "location and hybrid from location field",
			c:    model.Candidate{Title: "Analyst", Location: "London (Hybrid)", Source: model.SourceLinkedIn},
			want: 80,
		},
		{
			name: "salary on candidate",
			c:    model.Candidate{Title: "Analyst", Location: "Paris", SalaryRange: "£40K", Source: model.SourceLinkedIn},
			want: 75,
		},
		{
			name: "salary only in body",
			c:    model.Candidate{Title: "Analyst", Location: "Paris", Source: model.SourceLinkedIn},
			body: "Pay: $90,000 per year",
			want: 75,
		},
		{
			name: "every bonus",
			c: model.Candidate{
				Title: "Senior Engineer", Location: "Leeds", SalaryRange: "£60,000",
				Source: model.SourceLinkedIn,
			},
			body: "Fully remote role",
			want: 95,
		},
		{
			name: "terms match whole words only",
			c:    model.Candidate{Title: "Leadership Analyst", Location: "Ukraine", Source: model.SourceGeneric},
			body: "remoteness",
			want: 60,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Score(tt.c, tt.body))
		})
	}
}

func TestScorer_Deterministic(t *testing.T) {
	s := NewScorer(nil, nil)
	c := model.Candidate{Title: "Senior Engineer", Location: "London (Hybrid)", Source: model.SourceLinkedIn}
	first := s.Score(c, "body")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Score(c, "body"))
	}
}

func TestScorer_NeverExceedsMax(t *testing.T) {
	s := NewScorer(nil, nil)
	body := "Senior lead principal staff remote hybrid London Leeds UK £100k"
	for _, src := range model.KnownSources {
		c := model.Candidate{Title: "Head of Engineering", Location: "London", SalaryRange: "£1", Source: src}
		got := s.Score(c, body)
		assert.LessOrEqual(t, got, MaxScore)
		assert.GreaterOrEqual(t, got, 0)
	}
}

func TestNewScorer_CustomTerms(t *testing.T) {
	s := NewScorer([]string{"architect"}, []string{"berlin"})
	c := model.Candidate{Title: "Senior Architect", Location: "Berlin", Source: model.SourceGeneric}

	// "senior" is no longer a bonus term, "architect" is.
	assert.Equal(t, 75, s.Score(c, ""))
}
