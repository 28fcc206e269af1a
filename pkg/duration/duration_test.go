package duration

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2 weeks", 14 * Day},
		{"1 week", Week},
		{"1.5 days", 36 * time.Hour},
		{"30 Minutes", 30 * time.Minute},
		{"1 month", 30 * Day},
		{"1 year", 365 * Day},
		{"250 milliseconds", 250 * time.Millisecond},
		{"168h", Week},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "two weeks", "3 fortnights", "1 2 3", "weekly", "300 years", "600 years", "-600 years"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestParseLargestDuration(t *testing.T) {
	got, err := Parse("290 years")
	if err != nil {
		t.Fatalf("Parse(290 years) failed: %v", err)
	}
	if got != 290*Year {
		t.Errorf("Parse(290 years) = %v, want %v", got, 290*Year)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{14 * Day, "2 weeks"},
		{Day, "1 day"},
		{36 * time.Hour, "1.5 days"},
		{90 * time.Second, "1.5 minutes"},
		{10 * Day, "1.43 weeks"},
		{0, "0 milliseconds"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Format(tt.in); got != tt.want {
				t.Errorf("Format(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if got := FormatIn(Week, "day"); got != "7 days" {
		t.Errorf("FormatIn(week, day) = %q, want \"7 days\"", got)
	}
}
