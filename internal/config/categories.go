package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// categoryFile is the on-disk shape of TICKET_CATEGORIES_FILE.
type categoryFile struct {
	Categories []domain.Category `yaml:"categories"`
}

// Discord limits a string select menu to 25 options.
const maxMenuOptions = 25

// LoadCategories returns the ticket categories. An empty path yields the
// built-in set.
func LoadCategories(path string) ([]domain.Category, error) {
	if strings.TrimSpace(path) == "" {
		return domain.DefaultCategories(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return ParseCategories(data)
}

// ParseCategories decodes and validates a YAML category list.
func ParseCategories(data []byte) ([]domain.Category, error) {
	var file categoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("parse categories: no categories defined")
	}
	if len(file.Categories) > maxMenuOptions {
		return nil, fmt.Errorf("parse categories: %d categories exceeds the menu limit of %d", len(file.Categories), maxMenuOptions)
	}

	seen := make(map[string]struct{}, len(file.Categories))
	for i, c := range file.Categories {
		if strings.TrimSpace(c.Value) == "" || strings.TrimSpace(c.Label) == "" {
			return nil, fmt.Errorf("parse categories: entry %d needs both value and label", i)
		}
		if _, dup := seen[c.Value]; dup {
			return nil, fmt.Errorf("parse categories: duplicate value %q", c.Value)
		}
		seen[c.Value] = struct{}{}
	}
	return file.Categories, nil
}
