package usecase

import (
	"strings"
	"testing"
)

func TestSanitizeHeader_StripsControlCharacters(t *testing.T) {
	t.Parallel()

	got := sanitizeHeader("Trackmania update\r\nBcc: victim@example.com")
	if strings.ContainsAny(got, "\r\n") {
		t.Fatalf("header still contains line breaks: %q", got)
	}
	if got != "Trackmania updateBcc: victim@example.com" {
		t.Fatalf("unexpected header got=%q", got)
	}
}

func TestRenderDigest_EscapesUserContent(t *testing.T) {
	t.Parallel()

	body, err := renderDigest(digestView{
		Username: "<script>alert(1)</script>",
		Date:     "2026-10-17",
		Sections: []digestSection{{Title: mapperSectionTitle, Body: "Map <A>: 1 new record"}},
	})
	if err != nil {
		t.Fatalf("render digest: %v", err)
	}
	if strings.Contains(body, "<script>") || strings.Contains(body, "<A>") {
		t.Fatalf("user content was not escaped: %s", body)
	}
	if !strings.Contains(body, mapperSectionTitle) {
		t.Fatalf("section title missing from body")
	}
}
