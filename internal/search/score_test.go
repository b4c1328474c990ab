package search

import (
	"testing"

	"cineamore/catalogservice/internal/domain"
)

func TestScoreTiers(t *testing.T) {
	tests := []struct {
		title string
		query string
		want  int
	}{
		{"The Matrix", "the matrix", ScoreExact},
		{"  The Matrix ", "THE MATRIX", ScoreExact},
		{"Matrix Reloaded", "matrix", ScorePrefix},
		{"The Matrix", "matrix", ScoreWordPrefix},
		{"Blade Runner 2049", "2049", ScoreWordPrefix},
		{"Spider-Man: No Way Home", "man", ScoreWordPrefix},
		{"Back to the Future", "to the fu", ScoreWordPrefix},
		{"Inception", "cept", ScoreSubstring},
		{"Amélie", "AMÉLIE", ScoreExact},
	}
	for _, tt := range tests {
		if got := Score(tt.title, tt.query); got != tt.want {
			t.Errorf("Score(%q, %q) = %d, want %d", tt.title, tt.query, got, tt.want)
		}
	}
}

func TestScoreUnicodeNormalization(t *testing.T) {
	decomposed := "Ame\u0301lie"
	if got := Score(decomposed, "am\u00e9lie"); got != ScoreExact {
		t.Fatalf("expected exact match across normalization forms, got %d", got)
	}
}

func TestDedupeKey(t *testing.T) {
	if got := dedupeKey("The Matrix", 1999); got != "the matrix-1999" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := dedupeKey("The Matrix", 0); got != "the matrix-" {
		t.Fatalf("unknown year should render empty, got %q", got)
	}
	if dedupeKey("THE MATRIX", 1999) != dedupeKey("the matrix", 1999) {
		t.Fatal("dedupe key must be case-insensitive")
	}
	if dedupeKey("  Ame\u0301lie ", 2001) != dedupeKey("Amélie", 2001) {
		t.Fatal("dedupe key must fold surrounding space and composed accents")
	}
}

func TestIsAnime(t *testing.T) {
	tests := []struct {
		name      string
		candidate domain.ExternalCandidate
		want      bool
	}{
		{"japanese animation", domain.ExternalCandidate{GenreIDs: []int{16, 10759}, OriginCountry: []string{"JP"}}, true},
		{"lowercase origin", domain.ExternalCandidate{GenreIDs: []int{16}, OriginCountry: []string{"jp"}}, true},
		{"western animation", domain.ExternalCandidate{GenreIDs: []int{16}, OriginCountry: []string{"US"}}, false},
		{"japanese drama", domain.ExternalCandidate{GenreIDs: []int{18}, OriginCountry: []string{"JP"}}, false},
		{"no metadata", domain.ExternalCandidate{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAnime(tt.candidate); got != tt.want {
				t.Fatalf("IsAnime = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortByScoreIsStable(t *testing.T) {
	results := []domain.ScoredResult{
		{Title: "first", Score: ScoreSubstring},
		{Title: "second", Score: ScorePrefix},
		{Title: "third", Score: ScoreSubstring},
		{Title: "fourth", Score: ScoreExact},
	}
	sortByScore(results)
	want := []string{"fourth", "second", "first", "third"}
	for i, title := range want {
		if results[i].Title != title {
			t.Fatalf("position %d: expected %q, got %q", i, title, results[i].Title)
		}
	}
}
