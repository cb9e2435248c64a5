// Package bank imports question banks from JSON or YAML files.
package bank

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/examcoach/internal/model"
	"github.com/pavelanni/examcoach/internal/store"
)

// Parse decodes a question bank. Files ending in .yaml or .yml are read as
// YAML, anything else as JSON. Every question is validated.
func Parse(name string, data []byte) ([]model.Question, error) {
	var items []model.QuestionImport
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	questions := make([]model.Question, 0, len(items))
	for i, it := range items {
		if err := validate.Struct(it); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		q := model.Question{
			ID:                it.ID,
			Text:              it.Text,
			Options:           it.Options,
			CorrectAnswer:     it.CorrectAnswer,
			Explanation:       it.Explanation,
			Subject:           it.Subject,
			Topic:             it.Topic,
			Difficulty:        it.Difficulty,
			PossibleQuestions: it.PossibleQuestions,
		}
		if !q.HasOption(q.CorrectAnswer) {
			return nil, fmt.Errorf("question %d: correct answer %q is not one of its options", i+1, q.CorrectAnswer)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// Result summarizes one imported file.
type Result struct {
	Path     string
	Imported int
	Skipped  bool
}

// Load imports each file into db once. A file whose content changed since it
// was imported is skipped, so exams built from its questions stay intact.
func Load(db *store.Store, paths []string) ([]Result, error) {
	var results []Result
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return results, fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return results, fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("question bank unchanged, skipping", "path", path)
			results = append(results, Result{Path: path, Skipped: true})
			continue
		}
		if storedHash != "" {
			slog.Warn("question bank changed since last import, skipping to keep existing exams intact", "path", path)
			results = append(results, Result{Path: path, Skipped: true})
			continue
		}

		questions, err := Parse(path, data)
		if err != nil {
			return results, fmt.Errorf("parse %s: %w", path, err)
		}
		for _, q := range questions {
			if _, err := db.InsertQuestion(q); err != nil {
				return results, fmt.Errorf("insert question from %s: %w", path, err)
			}
		}
		if err := db.SetImportedFileHash(path, hash); err != nil {
			return results, fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported questions", "path", path, "count", len(questions))
		results = append(results, Result{Path: path, Imported: len(questions)})
	}
	return results, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
