package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/microlearn/internal/model"
	"github.com/pavelanni/microlearn/internal/quiz"
)

var (
	// ErrAlreadyImported means the same file content was imported before.
	ErrAlreadyImported = errors.New("quiz file already imported")
	// ErrImportChanged means a file with this name was imported with
	// different content. Re-importing would duplicate items.
	ErrImportChanged = errors.New("quiz file changed since last import")
)

// ImportQuizItems parses a JSON array of model.QuizItemImport and stores every
// item. name identifies the file for deduplication. The items and the file
// hash are written in one transaction, so a failed import leaves no rows.
func (s *Store) ImportQuizItems(ctx context.Context, name string, data []byte) (int, error) {
	hash := sha256sum(data)
	var count int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stored, err := s.getMetadata(ctx, tx, importHashPrefix+name)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", name, err)
		}
		switch {
		case stored == hash:
			return ErrAlreadyImported
		case stored != "":
			return ErrImportChanged
		}

		topics, items, err := parseQuizItems(name, data)
		if err != nil {
			return err
		}
		for i, it := range items {
			if _, err := s.insertQuizItem(ctx, tx, topics[i], it); err != nil {
				return fmt.Errorf("insert quiz item %d from %s: %w", i+1, name, err)
			}
		}
		if err := s.setMetadata(ctx, tx, importHashPrefix+name, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", name, err)
		}
		count = len(items)
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.Info("imported quiz items", "file", name, "count", count)
	return count, nil
}

// parseQuizItems decodes and validates every item before any is stored.
func parseQuizItems(name string, data []byte) ([]string, []quiz.Item, error) {
	var imports []model.QuizItemImport
	if err := json.Unmarshal(data, &imports); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(imports) == 0 {
		return nil, nil, fmt.Errorf("parse %s: %w", name, quiz.ErrMalformedItems)
	}
	topics := make([]string, len(imports))
	items := make([]quiz.Item, len(imports))
	for i, qi := range imports {
		topics[i] = strings.TrimSpace(qi.Topic)
		if topics[i] == "" {
			return nil, nil, fmt.Errorf("%s item %d: %w: empty topic", name, i+1, quiz.ErrMalformedItems)
		}
		items[i] = quiz.Item{Question: qi.Question, Options: qi.Options, Answer: qi.Answer}
		if err := items[i].Validate(); err != nil {
			return nil, nil, fmt.Errorf("%s item %d: %w: %v", name, i+1, quiz.ErrMalformedItems, err)
		}
	}
	return topics, items, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
