package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OptionCount is the number of answer options every question carries.
const OptionCount = 4

var ErrQuestionEmptyPrompt = errors.New("question prompt must not be empty")
var ErrQuestionEmptyOption = errors.New("question options must not be empty")
var ErrQuestionBadCorrect = fmt.Errorf("correct option must be between 1 and %d", OptionCount)

// Question is one quiz question: a prompt, four options, and the 1-based
// index of the correct option. Immutable once drawn for a round.
type Question struct {
	ID        int64               `json:"id"`
	Prompt    string              `json:"prompt"`
	Options   [OptionCount]string `json:"options"`
	Correct   int                 `json:"-"` // 1-based, never sent to clients
	CreatedAt time.Time           `json:"created_at"`
}

// CorrectText returns the text of the correct option.
func (q *Question) CorrectText() string {
	return q.Options[q.Correct-1]
}

// Validate checks the question is well-formed before it enters the bank.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return ErrQuestionEmptyPrompt
	}
	for _, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return ErrQuestionEmptyOption
		}
	}
	if q.Correct < 1 || q.Correct > OptionCount {
		return ErrQuestionBadCorrect
	}
	return nil
}

// FallbackQuestion returns the fixed question used when the bank is empty,
// so that a match can always proceed. Drawing it is not an error.
func FallbackQuestion() *Question {
	return &Question{
		Prompt:  "Which planet is known as the Red Planet?",
		Options: [OptionCount]string{"Venus", "Mars", "Jupiter", "Mercury"},
		Correct: 2,
	}
}
