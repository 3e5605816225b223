package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobsieve/internal/model"
)

func TestSearch_Success(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if ua := r.Header.Get("User-Agent"); ua != "jobsieve-test" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Write([]byte("Software Developer\nGamma Inc\nManchester\nFull-time"))
	}))
	defer srv.Close()

	s := NewHTTPSearcher(map[model.SourceKind]string{
		model.SourceIndeed: srv.URL + "/jobs?q={keywords}&l={location}&n={limit}",
	}, srv.Client(), "jobsieve-test")
	s.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }

	msg, err := s.Search(context.Background(), model.SearchQuery{
		Source: model.SourceIndeed, Keywords: "senior engineer", Location: "Leeds",
	}, 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "q=senior+engineer&l=Leeds&n=25" {
		t.Errorf("query = %q", gotQuery)
	}
	if msg.Source != model.SourceIndeed {
		t.Errorf("Source = %q", msg.Source)
	}
	if !strings.HasPrefix(msg.Body, "Software Developer") {
		t.Errorf("Body = %q", msg.Body)
	}
	if !msg.ReceivedAt.Equal(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("ReceivedAt = %v", msg.ReceivedAt)
	}
}

func TestSearch_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewHTTPSearcher(map[model.SourceKind]string{model.SourceLinkedIn: srv.URL}, srv.Client(), "")
	_, err := s.Search(context.Background(), model.SearchQuery{Source: model.SourceLinkedIn}, 10)

	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != 429 || httpErr.RetryAfter != 120*time.Second {
		t.Errorf("HTTPError = %+v", httpErr)
	}
}

func TestSearch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPSearcher(map[model.SourceKind]string{model.SourceGlassdoor: srv.URL}, srv.Client(), "")
	_, err := s.Search(context.Background(), model.SearchQuery{Source: model.SourceGlassdoor}, 10)

	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 HTTPError, got %v", err)
	}
}

func TestSearch_UnconfiguredSource(t *testing.T) {
	s := NewHTTPSearcher(nil, http.DefaultClient, "")
	if _, err := s.Search(context.Background(), model.SearchQuery{Source: model.SourceIndeed}, 10); err == nil {
		t.Fatal("expected error for source without a url template")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
