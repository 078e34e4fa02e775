package quiz

import (
	"context"
	"fmt"
	"log/slog"
)

// ItemSource reads imported quiz items for a topic.
type ItemSource interface {
	ListQuizItems(ctx context.Context, topic string) ([]Item, error)
}

// StoredBank issues the items imported for a topic, or the fallback bank's
// items when the topic has none.
type StoredBank struct {
	src      ItemSource
	fallback Bank
}

// NewStoredBank creates a bank reading from src.
func NewStoredBank(src ItemSource, fallback Bank) *StoredBank {
	return &StoredBank{src: src, fallback: fallback}
}

func (b *StoredBank) ItemsFor(ctx context.Context, topic string) ([]Item, error) {
	items, err := b.src.ListQuizItems(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("list quiz items: %w", err)
	}
	if len(items) == 0 {
		slog.Debug("no imported quiz items, using fallback bank", "topic", topic)
		return b.fallback.ItemsFor(ctx, topic)
	}
	if err := ValidateItems(items); err != nil {
		return nil, err
	}
	return items, nil
}
