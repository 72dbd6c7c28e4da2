package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already normalized", "+15551234567", "+15551234567"},
		{"missing plus", "15551234567", "+15551234567"},
		{"spaces and dashes", "+1 555-123-4567", "+15551234567"},
		{"parentheses", "(855) 76 292 3340", "+855762923340"},
		{"empty", "", ""},
		{"no digits", "+- ()", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSafeKey(t *testing.T) {
	if got := SafeKey("+1 555-123-4567"); got != "15551234567" {
		t.Fatalf("SafeKey() = %q, want %q", got, "15551234567")
	}
	if got := SafeKey(""); got != "" {
		t.Fatalf("SafeKey(empty) = %q, want empty", got)
	}
}
