package server

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quizarena/quizarena/pkg/model"
	"github.com/quizarena/quizarena/pkg/store"
)

// QuestionYAML is the on-disk form of one question.
type QuestionYAML struct {
	Prompt  string   `yaml:"prompt"`
	Options []string `yaml:"options"`
	Correct int      `yaml:"correct"` // 1-based option index
}

// QuestionsConfig is the root of a question bank file.
type QuestionsConfig struct {
	Questions []QuestionYAML `yaml:"questions"`
}

// LoadQuestionsFromYAML parses and validates a question bank file.
func LoadQuestionsFromYAML(path string) ([]model.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server: read questions file: %w", err)
	}

	var cfg QuestionsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("server: parse questions file: %w", err)
	}

	questions := make([]model.Question, 0, len(cfg.Questions))
	for i, entry := range cfg.Questions {
		if len(entry.Options) != model.OptionCount {
			return nil, fmt.Errorf("server: question %d: expected %d options, got %d",
				i+1, model.OptionCount, len(entry.Options))
		}
		q := model.Question{
			Prompt:  entry.Prompt,
			Correct: entry.Correct,
		}
		copy(q.Options[:], entry.Options)
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("server: question %d: %w", i+1, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// ImportQuestionsFromYAML loads a question bank file into the store,
// skipping prompts that already exist so repeated imports are safe.
func ImportQuestionsFromYAML(ctx context.Context, st store.DataStore, path string) (imported, skipped int, err error) {
	questions, err := LoadQuestionsFromYAML(path)
	if err != nil {
		return 0, 0, err
	}

	for i := range questions {
		q := &questions[i]
		existing, err := st.GetQuestionByPrompt(ctx, q.Prompt)
		if err != nil {
			return imported, skipped, fmt.Errorf("server: import question %q: %w", q.Prompt, err)
		}
		if existing != nil {
			skipped++
			continue
		}
		if err := st.CreateQuestion(ctx, q); err != nil {
			return imported, skipped, fmt.Errorf("server: import question %q: %w", q.Prompt, err)
		}
		imported++
	}
	return imported, skipped, nil
}

// ExportQuestionsYAML renders the full question bank in the same format
// the importer reads.
func ExportQuestionsYAML(ctx context.Context, st store.DataStore) ([]byte, error) {
	questions, err := st.ListQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("server: export questions: %w", err)
	}

	cfg := QuestionsConfig{Questions: make([]QuestionYAML, 0, len(questions))}
	for _, q := range questions {
		cfg.Questions = append(cfg.Questions, QuestionYAML{
			Prompt:  q.Prompt,
			Options: append([]string(nil), q.Options[:]...),
			Correct: q.Correct,
		})
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("server: marshal questions: %w", err)
	}
	return data, nil
}
