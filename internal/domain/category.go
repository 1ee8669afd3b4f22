package domain

// Category is one selectable ticket type. Value is what the select menu
// carries; Label is what users read.
type Category struct {
	Value       string `yaml:"value"`
	Label       string `yaml:"label"`
	Emoji       string `yaml:"emoji"`
	Description string `yaml:"description"`
}

// MenuLabel is the option label shown in the ticket panel.
func (c Category) MenuLabel() string {
	if c.Emoji == "" {
		return c.Label
	}
	return c.Emoji + " " + c.Label
}

// DefaultCategories is the category set used when no file overrides it.
func DefaultCategories() []Category {
	return []Category{
		{Value: "general_inquiries", Label: "General inquiries", Emoji: "❓", Description: "Questions or general assistance."},
		{Value: "bot_issues", Label: "Bot issues", Emoji: "🤖", Description: "Report an issue with the bot."},
		{Value: "account_issues", Label: "Account issues", Emoji: "🔒", Description: "Help with your account or access."},
	}
}

// CategorySet looks categories up by value while keeping menu order.
type CategorySet struct {
	ordered []Category
	byValue map[string]Category
}

// NewCategorySet indexes categories by value. Later duplicates are ignored.
func NewCategorySet(categories []Category) *CategorySet {
	set := &CategorySet{byValue: make(map[string]Category, len(categories))}
	for _, c := range categories {
		if _, dup := set.byValue[c.Value]; dup {
			continue
		}
		set.byValue[c.Value] = c
		set.ordered = append(set.ordered, c)
	}
	return set
}

// Lookup returns the category with the given menu value.
func (s *CategorySet) Lookup(value string) (Category, bool) {
	c, ok := s.byValue[value]
	return c, ok
}

// All returns categories in menu order.
func (s *CategorySet) All() []Category {
	return append([]Category(nil), s.ordered...)
}
