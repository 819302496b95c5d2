package adapter

import (
	"strings"
	"testing"
	"time"

	"github.com/vkarpenko/newscrawler/internal/config"
	"github.com/vkarpenko/newscrawler/internal/fetch"
)

func testClient() *fetch.Client {
	return fetch.NewClient(fetch.Options{MaxRetries: 1, Timeout: 5 * time.Second})
}

func TestDedupePreservesOrder(t *testing.T) {
	got := dedupe([]string{"a", "b", "a", "c"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSummarizeTruncates(t *testing.T) {
	long := strings.Repeat("х", 300) // multi-byte runes, not bytes
	s := summarize(long)
	if !strings.HasSuffix(s, "...") {
		t.Errorf("expected ellipsis suffix, got %q", s[len(s)-10:])
	}
	if n := len([]rune(s)); n != summaryRunes+3 {
		t.Errorf("expected %d runes, got %d", summaryRunes+3, n)
	}

	short := "brief"
	if got := summarize(short); got != short {
		t.Errorf("expected short content unchanged, got %q", got)
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := map[string]string{
		"2026-02-10T08:30:00Z": "2026-02-10",
		"10 Feb 2026":          "2026-02-10",
		"February 10, 2026":    "2026-02-10",
		"not a date":           "",
		"":                     "",
	}
	for in, want := range cases {
		if got := normalizeDate(in); got != want {
			t.Errorf("normalizeDate(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestDateFromURL(t *testing.T) {
	if got := dateFromURL("https://example.com/2026/02/10/story.html"); got != "2026-02-10" {
		t.Errorf("expected 2026-02-10, got %q", got)
	}
	if got := dateFromURL("https://example.com/story.html"); got != "" {
		t.Errorf("expected empty date, got %q", got)
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(config.Source{Name: "X", Adapter: "ftp"}, testClient(), DefaultRunParams())
	if err == nil {
		t.Fatal("expected error for unknown adapter kind")
	}
}
