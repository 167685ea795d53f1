// Package guideline merges hierarchical directive documents into a
// structured instruction bundle. Directories between a source path and
// the repository root each contribute at most one directive file; root
// entries come first and closer-to-source entries are appended after,
// with exact duplicates dropped.
package guideline

import (
	"strings"
)

// CandidateFilenames lists directive filenames in match order. The
// first existing candidate in a directory wins.
var CandidateFilenames = []string{
	"AGENTS.md",
	"GUIDELINES.md",
	".semflow-guidelines.md",
}

// Known section names. Headings outside this list are ignored.
const (
	SectionInstructions = "instructions"
	SectionConventions  = "conventions"
	SectionTesting      = "testing"
	SectionSecurity     = "security"
	SectionArchitecture = "architecture"
	SectionQuality      = "quality"
)

var knownSections = map[string]bool{
	SectionInstructions: true,
	SectionConventions:  true,
	SectionTesting:      true,
	SectionSecurity:     true,
	SectionArchitecture: true,
	SectionQuality:      true,
}

// Category is one named section with its ordered entries.
type Category struct {
	Name    string
	Entries []string
}

// Set is a merged instruction bundle. Category and entry order reflect
// first-seen order during the merge.
type Set struct {
	Categories []Category
}

// Entries returns the entries for a category name, or nil.
func (s *Set) Entries(name string) []string {
	for _, c := range s.Categories {
		if c.Name == name {
			return c.Entries
		}
	}
	return nil
}

// IsEmpty reports whether the set holds no entries at all.
func (s *Set) IsEmpty() bool {
	for _, c := range s.Categories {
		if len(c.Entries) > 0 {
			return false
		}
	}
	return true
}

// add appends an entry to a category, creating the category on first
// use and dropping exact duplicates.
func (s *Set) add(category, entry string) {
	for i := range s.Categories {
		if s.Categories[i].Name != category {
			continue
		}
		for _, existing := range s.Categories[i].Entries {
			if existing == entry {
				return
			}
		}
		s.Categories[i].Entries = append(s.Categories[i].Entries, entry)
		return
	}
	s.Categories = append(s.Categories, Category{Name: category, Entries: []string{entry}})
}

// Merge folds other into s, keeping first-seen order and dropping
// duplicates. Merging the same document twice is a no-op.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for _, c := range other.Categories {
		for _, e := range c.Entries {
			s.add(c.Name, e)
		}
	}
}

func normalizeHeading(h string) string {
	h = strings.TrimSpace(strings.TrimLeft(h, "# "))
	h = strings.ToLower(h)
	return strings.ReplaceAll(h, " ", "_")
}
