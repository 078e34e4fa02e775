package quiz

import "context"

var recursionItems = []Item{
	{
		Question: "What is the 'base case' in a recursive function?",
		Options: []string{
			"A. An infinite loop condition",
			"B. The condition that stops the recursion",
			"C. The variable that is changed in each call",
			"D. The maximum depth of the recursion",
		},
		Answer: "B. The condition that stops the recursion",
	},
	{
		Question: "What does this Python code return? `def recur(x): if x==0: return 0 else: return x + recur(x-1); recur(3)`",
		Options:  []string{"A. 3", "B. 6", "C. 0", "D. An error"},
		Answer:   "B. 6",
	},
	{
		Question: "Why can deep recursion lead to a 'stack overflow' error?",
		Options: []string{
			"A. Because it uses too many variables",
			"B. Because it creates too many loops",
			"C. Because it consumes too much memory with nested function calls",
			"D. Because the return type is wrong",
		},
		Answer: "C. Because it consumes too much memory with nested function calls",
	},
}

// FixedBank always issues the same items regardless of topic.
type FixedBank struct {
	items []Item
}

// NewFixedBank returns the built-in three-question recursion quiz.
func NewFixedBank() *FixedBank {
	return &FixedBank{items: recursionItems}
}

// NewFixedBankWith returns a bank that issues the given items.
func NewFixedBankWith(items []Item) (*FixedBank, error) {
	if err := ValidateItems(items); err != nil {
		return nil, err
	}
	return &FixedBank{items: Clone(items)}, nil
}

func (b *FixedBank) ItemsFor(_ context.Context, _ string) ([]Item, error) {
	return Clone(b.items), nil
}
