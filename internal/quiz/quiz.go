// Package quiz supplies multiple-choice quiz items for a topic and scores
// submitted attempts.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// OptionsPerItem is the number of options every item carries.
const OptionsPerItem = 4

var (
	// ErrMalformedItems is returned when a bank cannot produce a valid,
	// non-empty set of items.
	ErrMalformedItems = errors.New("malformed quiz items")

	// ErrAttemptShape is returned when the number of submitted answers does
	// not match the number of issued items.
	ErrAttemptShape = errors.New("answer count does not match quiz")
)

// Item is one multiple-choice question. Options carry their "A. " style
// prefix and Answer repeats the correct option string exactly.
type Item struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// Validate checks the item invariants: a question, exactly four distinct
// options and an answer that is one of them.
func (it Item) Validate() error {
	if strings.TrimSpace(it.Question) == "" {
		return errors.New("empty question")
	}
	if len(it.Options) != OptionsPerItem {
		return fmt.Errorf("want %d options, got %d", OptionsPerItem, len(it.Options))
	}
	seen := make(map[string]bool, len(it.Options))
	for _, o := range it.Options {
		if strings.TrimSpace(o) == "" {
			return errors.New("empty option")
		}
		if seen[o] {
			return fmt.Errorf("duplicate option %q", o)
		}
		seen[o] = true
	}
	if !seen[it.Answer] {
		return fmt.Errorf("answer %q is not one of the options", it.Answer)
	}
	return nil
}

// ValidateItems checks every item and rejects an empty set.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items", ErrMalformedItems)
	}
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("%w: item %d: %v", ErrMalformedItems, i+1, err)
		}
	}
	return nil
}

// Bank supplies the items for one quiz instance.
type Bank interface {
	ItemsFor(ctx context.Context, topic string) ([]Item, error)
}

// Response pairs an issued item with the option the learner submitted.
type Response struct {
	Item      Item
	Submitted string
}

// Attempt is an ordered, scored-once set of responses.
type Attempt []Response

// NewAttempt pairs items with answers by position.
func NewAttempt(items []Item, answers []string) (Attempt, error) {
	if len(items) != len(answers) {
		return nil, fmt.Errorf("%w: %d items, %d answers", ErrAttemptShape, len(items), len(answers))
	}
	a := make(Attempt, len(items))
	for i := range items {
		a[i] = Response{Item: items[i], Submitted: answers[i]}
	}
	return a, nil
}

// Score counts responses whose submitted option equals the correct option.
// Comparison is exact: no case folding or whitespace trimming.
func Score(a Attempt) int {
	score := 0
	for _, r := range a {
		if r.Submitted == r.Item.Answer {
			score++
		}
	}
	return score
}

// Clone returns a deep copy so callers cannot alias a bank's items.
func Clone(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = Item{Question: it.Question, Options: slices.Clone(it.Options), Answer: it.Answer}
	}
	return out
}
