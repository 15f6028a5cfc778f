package utils

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateRequestID(t *testing.T) {
	if GenerateRequestID() == GenerateRequestID() {
		t.Error("expected different IDs")
	}
	if !strings.HasPrefix(GenerateRequestID(), "req_") {
		t.Error("request ids must carry the req_ prefix")
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal string", "hello", "hello"},
		{"with control chars", "hello\x00world", "helloworld"},
		{"with newline", "hello\nworld", "hello\nworld"},
		{"with whitespace", "  hello  ", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeString(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeString(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"Introduction to Go", 10, "Introdu..."},
		{"abcdef", 3, "abc"},
		{"héllo wörld", 8, "héllo..."},
	}
	for _, tt := range tests {
		if got := TruncateString(tt.input, tt.maxLen); got != tt.expected {
			t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
		}
	}
}

func TestMaskSensitive(t *testing.T) {
	if got := MaskSensitive("abcdefgh", 3); got != "abc*****" {
		t.Errorf("MaskSensitive = %q", got)
	}
	if got := MaskSensitive("ab", 3); got != "**" {
		t.Errorf("MaskSensitive short = %q", got)
	}
}

func TestCapitalize(t *testing.T) {
	if got := Capitalize("pending"); got != "Pending" {
		t.Errorf("Capitalize = %q", got)
	}
	if got := Capitalize(""); got != "" {
		t.Errorf("Capitalize empty = %q", got)
	}
}

func TestFormatClock(t *testing.T) {
	tests := map[float64]string{
		0:      "0:00",
		59.9:   "0:59",
		600:    "10:00",
		3725:   "1:02:05",
		-4:     "0:00",
	}
	for in, want := range tests {
		if got := FormatClock(in); got != want {
			t.Errorf("FormatClock(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(1500 * time.Millisecond); got != "1.50s" {
		t.Errorf("FormatDuration = %q", got)
	}
	if got := FormatDuration(90 * time.Minute); got != "1h30m" {
		t.Errorf("FormatDuration = %q", got)
	}
}
