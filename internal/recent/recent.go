// Package recent keeps a small on-disk list of recently invited email
// addresses so invitation prompts can offer completions.
package recent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxEmails caps how many addresses are retained.
const MaxEmails = 20

// Emails is a most-recent-first list backed by a JSON file.
type Emails struct {
	path  string
	items []string
}

// Load reads the list at path. A missing file yields an empty list.
func Load(path string) (*Emails, error) {
	e := &Emails{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return e, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read recent emails: %w", err)
	}

	if err := json.Unmarshal(data, &e.items); err != nil {
		return nil, fmt.Errorf("failed to parse recent emails: %w", err)
	}
	if len(e.items) > MaxEmails {
		e.items = e.items[:MaxEmails]
	}
	return e, nil
}

// Add records an address at the front of the list. Addresses compare
// case-insensitively; re-adding a known one promotes it instead of
// duplicating it.
func (e *Emails) Add(email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		return
	}

	kept := make([]string, 0, len(e.items)+1)
	kept = append(kept, email)
	for _, item := range e.items {
		if strings.EqualFold(item, email) {
			continue
		}
		kept = append(kept, item)
	}
	if len(kept) > MaxEmails {
		kept = kept[:MaxEmails]
	}
	e.items = kept
}

// All returns the addresses, most recent first.
func (e *Emails) All() []string {
	out := make([]string, len(e.items))
	copy(out, e.items)
	return out
}

// Matching returns addresses with the given prefix, most recent first.
func (e *Emails) Matching(prefix string) []string {
	var out []string
	for _, item := range e.items {
		if strings.HasPrefix(strings.ToLower(item), strings.ToLower(prefix)) {
			out = append(out, item)
		}
	}
	return out
}

// Save writes the list back to its file, creating parent directories.
func (e *Emails) Save() error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0755); err != nil {
		return fmt.Errorf("failed to create recent emails dir: %w", err)
	}

	data, err := json.MarshalIndent(e.items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal recent emails: %w", err)
	}
	if err := os.WriteFile(e.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write recent emails: %w", err)
	}
	return nil
}
