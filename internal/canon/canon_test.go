package canon

import (
	"testing"
)

func TestTitleCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"toronto", "Toronto"},
		{"TORONTO", "Toronto"},
		{"north york", "North York"},
		{"  richmond   hill ", "Richmond Hill"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := TitleCase(tt.in); got != tt.want {
			t.Errorf("TitleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPostalPrefix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"K2P1A1", "K2P"},
		{"k2p 1a1", "K2P"},
		{" m5v ", "M5V"},
		{"K2", ""},
		// a space inside the first three characters leaves a short
		// prefix; skip instead of compacting to "K21"
		{"K2 1A1", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := PostalPrefix(tt.in); got != tt.want {
			t.Errorf("PostalPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
