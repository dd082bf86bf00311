package game

import "testing"

func TestIsCorrect(t *testing.T) {
	// Correct option: index 2, text "Paris".
	tests := []struct {
		name string
		raw  any
		want bool
	}{
		{"json number match", float64(2), true},
		{"json number wrong", float64(3), false},
		{"json number fractional", 2.5, false},
		{"int match", 2, true},
		{"int wrong", 1, false},
		{"int64 match", int64(2), true},
		{"option key match", "option2", true},
		{"option key wrong", "option3", false},
		{"literal text match", "Paris", true},
		{"literal text wrong", "London", false},
		{"option key case sensitive", "Option2", false},
		{"empty string", "", false},
		{"nil", nil, false},
		{"bool", true, false},
		{"slice", []any{2}, false},
		{"zero", float64(0), false},
		{"negative", float64(-2), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCorrect(tt.raw, 2, "Paris"); got != tt.want {
				t.Errorf("IsCorrect(%v, 2, %q) = %v, want %v", tt.raw, "Paris", got, tt.want)
			}
		})
	}
}

func TestIsCorrectTextBeatsIndexCollision(t *testing.T) {
	// A literal answer that happens to spell another option only counts
	// when it spells the correct one.
	if IsCorrect("option1", 2, "option1") != true {
		t.Errorf("literal text equal to correct text should match")
	}
	if IsCorrect("2", 2, "Paris") {
		t.Errorf("numeric string is not a valid encoding")
	}
}
