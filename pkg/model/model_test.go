package model

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "player123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameEmpty},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains dot", "user.name", ErrUsernameInvalidChars},
		{"contains @", "user@name", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidChars},
		{"newline", "user\nname", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestQuestionValidate(t *testing.T) {
	valid := Question{
		Prompt:  "What is the capital of France?",
		Options: [OptionCount]string{"London", "Paris", "Berlin", "Madrid"},
		Correct: 2,
	}

	tests := []struct {
		name    string
		mutate  func(q *Question)
		wantErr error
	}{
		{"valid", func(q *Question) {}, nil},
		{"empty prompt", func(q *Question) { q.Prompt = "" }, ErrQuestionEmptyPrompt},
		{"blank prompt", func(q *Question) { q.Prompt = "   " }, ErrQuestionEmptyPrompt},
		{"empty option", func(q *Question) { q.Options[3] = "" }, ErrQuestionEmptyOption},
		{"correct too low", func(q *Question) { q.Correct = 0 }, ErrQuestionBadCorrect},
		{"correct too high", func(q *Question) { q.Correct = OptionCount + 1 }, ErrQuestionBadCorrect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			if err := q.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestQuestionCorrectText(t *testing.T) {
	q := Question{
		Prompt:  "What is the capital of France?",
		Options: [OptionCount]string{"London", "Paris", "Berlin", "Madrid"},
		Correct: 2,
	}
	if got := q.CorrectText(); got != "Paris" {
		t.Errorf("CorrectText() = %q, want %q", got, "Paris")
	}
}

func TestFallbackQuestion(t *testing.T) {
	q := FallbackQuestion()
	if err := q.Validate(); err != nil {
		t.Fatalf("fallback question invalid: %v", err)
	}
	if q.CorrectText() != "Mars" {
		t.Errorf("fallback correct option = %q, want %q", q.CorrectText(), "Mars")
	}
}
