package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobsieve/internal/model"
)

// maxBodyBytes caps how much of a results page is read.
const maxBodyBytes = 2 << 20

// Searcher runs one live search and returns the results page as a raw
// message for the source's parser.
type Searcher interface {
	Search(ctx context.Context, q model.SearchQuery, limit int) (model.RawMessage, error)
}

// HTTPSearcher fetches results pages from per-source URL templates. A
// template may use {keywords}, {location} and {limit} placeholders, e.g.
//
//	https://example.com/jobs?q={keywords}&l={location}&n={limit}
type HTTPSearcher struct {
	templates map[model.SourceKind]string
	client    *http.Client
	userAgent string
	now       func() time.Time
}

// NewHTTPSearcher returns a searcher for the given templates.
func NewHTTPSearcher(templates map[model.SourceKind]string, client *http.Client, userAgent string) *HTTPSearcher {
	return &HTTPSearcher{
		templates: templates,
		client:    client,
		userAgent: userAgent,
		now:       time.Now,
	}
}

// Search fetches one results page for q.
func (s *HTTPSearcher) Search(ctx context.Context, q model.SearchQuery, limit int) (model.RawMessage, error) {
	tmpl, ok := s.templates[q.Source]
	if !ok {
		return model.RawMessage{}, fmt.Errorf("search %s: no search url configured", q.Source)
	}
	target := expand(tmpl, q, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("search %s: %w", q.Source, err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("search %s: %w", q.Source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return model.RawMessage{}, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("search %s: rate limited", q.Source),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return model.RawMessage{}, &model.HTTPError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("search %s: unexpected status %d", q.Source, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("search %s: reading body: %w", q.Source, err)
	}

	return model.RawMessage{
		Source:     q.Source,
		Body:       string(body),
		ReceivedAt: s.now().UTC(),
	}, nil
}

func expand(tmpl string, q model.SearchQuery, limit int) string {
	return strings.NewReplacer(
		"{keywords}", url.QueryEscape(q.Keywords),
		"{location}", url.QueryEscape(q.Location),
		"{limit}", strconv.Itoa(limit),
	).Replace(tmpl)
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
