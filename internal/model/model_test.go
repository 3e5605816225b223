package model

import (
	"errors"
	"testing"
	"time"
)

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name           string
		title, company string
		want           string
	}{
		{"plain", "Senior Engineer", "Acme Corp", "senior engineer::acme corp"},
		{"case insensitive", "SENIOR engineer", "acme CORP", "senior engineer::acme corp"},
		{"punctuation and spacing", "  Senior   Engineer - ", "Acme, Corp.", "senior engineer::acme corp"},
		{"accents", "Ingénieur Logiciel", "Société Générale", "ingenieur logiciel::societe generale"},
		{"german sharp s folds", "Straße Manager", "Größe GmbH", "strasse manager::grosse gmbh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IdentityKey(tt.title, tt.company); got != tt.want {
				t.Errorf("IdentityKey(%q, %q) = %q, want %q", tt.title, tt.company, got, tt.want)
			}
		})
	}
}

func TestAccessPreferences_Clamp(t *testing.T) {
	got := AccessPreferences{MinDelayMs: 0, MaxConcurrent: 10, MaxResultsPerQuery: 500}.Clamp()
	if got.MinDelayMs != 500 {
		t.Errorf("MinDelayMs = %d, want 500", got.MinDelayMs)
	}
	if got.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", got.MaxConcurrent)
	}
	if got.MaxResultsPerQuery != 100 {
		t.Errorf("MaxResultsPerQuery = %d, want 100", got.MaxResultsPerQuery)
	}

	low := AccessPreferences{MinDelayMs: 2000, MaxConcurrent: -1, MaxResultsPerQuery: 0}.Clamp()
	if low.MinDelayMs != 2000 || low.MaxConcurrent != 1 || low.MaxResultsPerQuery != 1 {
		t.Errorf("Clamp() = %+v, want delay kept, concurrency 1, results 1", low)
	}
}

func TestGateDeniedError_Is(t *testing.T) {
	err := error(&GateDeniedError{Source: SourceLinkedIn, Reason: "hourly quota exhausted", NextAllowedAt: time.Now()})
	if !errors.Is(err, ErrGateDenied) {
		t.Error("GateDeniedError should match ErrGateDenied")
	}
	var denied *GateDeniedError
	if !errors.As(err, &denied) || denied.Source != SourceLinkedIn {
		t.Errorf("errors.As failed: %v", err)
	}
}

func TestRepositoryErrorAndFatal(t *testing.T) {
	base := errors.New("disk full")
	repo := RepositoryError("insert match", base)
	if !errors.Is(repo, ErrRepository) || !errors.Is(repo, base) {
		t.Errorf("RepositoryError lost its chain: %v", repo)
	}
	if errors.Is(repo, ErrJobFatal) {
		t.Error("repository error must not be fatal")
	}
	if !errors.Is(Fatal(base), ErrJobFatal) {
		t.Error("Fatal should match ErrJobFatal")
	}
}

func TestParseSourceKind(t *testing.T) {
	if k, ok := ParseSourceKind(" LinkedIn "); !ok || k != SourceLinkedIn {
		t.Errorf("ParseSourceKind(LinkedIn) = %v, %v", k, ok)
	}
	if k, ok := ParseSourceKind("monster"); ok || k != SourceGeneric {
		t.Errorf("ParseSourceKind(monster) = %v, %v, want generic,false", k, ok)
	}
	if SourceLinkedIn.HourlyCap() != 10 || SourceIndeed.HourlyCap() != 20 {
		t.Error("unexpected hourly caps")
	}
}
