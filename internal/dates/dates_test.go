package dates_test

import (
	"testing"
	"time"

	"manifold/internal/dates"
)

func TestToZuluAcceptsCommonLayouts(t *testing.T) {
	cases := map[string]string{
		"2024-03-15T10:30:00Z":      "2024-03-15T10:30:00Z",
		"2024-03-15T10:30:00.123Z":  "2024-03-15T10:30:00Z",
		"2024-03-15T10:30:00":       "2024-03-15T10:30:00Z",
		"2024-03-15 10:30:00":       "2024-03-15T10:30:00Z",
		"2024-03-15":                "2024-03-15T00:00:00Z",
		"03/15/2024":                "2024-03-15T00:00:00Z",
		"2024/03/15":                "2024-03-15T00:00:00Z",
		"  2024-03-15T10:30:00Z  ":  "2024-03-15T10:30:00Z",
		"2024-03-15T10:30:00+02:00": "2024-03-15T08:30:00Z",
	}
	for input, want := range cases {
		got, err := dates.ToZulu(input)
		if err != nil {
			t.Fatalf("ToZulu(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ToZulu(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestToZuluRejectsMalformedInput(t *testing.T) {
	for _, input := range []string{"", "   ", "not-a-date", "15/03/2024T"} {
		if _, err := dates.ToZulu(input); err == nil {
			t.Fatalf("ToZulu(%q) expected error", input)
		}
	}
}

func TestSubtractDays(t *testing.T) {
	got, err := dates.SubtractDays("2024-01-01", 15)
	if err != nil {
		t.Fatalf("SubtractDays returned error: %v", err)
	}
	if got != "2023-12-17T00:00:00Z" {
		t.Fatalf("SubtractDays = %q, want 2023-12-17T00:00:00Z", got)
	}
}

func TestCanonicalFormSortsChronologically(t *testing.T) {
	earlier := dates.Format(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	later := dates.Format(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	if !(earlier < later) {
		t.Fatalf("expected %q < %q lexicographically", earlier, later)
	}
}

func TestParseTreatsNaiveValuesAsUTC(t *testing.T) {
	got, err := dates.Parse("2024-06-01 12:00:00")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Hour() != 12 {
		t.Fatalf("expected hour 12, got %d", got.Hour())
	}
}
