package domain

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AutoDomain asks the server to classify the query instead of using a caller domain.
const AutoDomain = "auto"

// CatalogEntry pairs a user-facing domain label with its metadata tag.
// An empty Tag means the label is known but has no indexed documents.
type CatalogEntry struct {
	Label string `yaml:"label"`
	Tag   string `yaml:"tag,omitempty"`
}

// Catalog is the fixed, closed set of domain labels and their metadata tags.
type Catalog struct {
	entries []CatalogEntry
	tags    map[string]string
}

// DefaultCatalog returns the built-in domain set.
// Labels are listed in the order the classifier presents them.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog([]CatalogEntry{
		{Label: "Finance & Budgeting", Tag: "finance"},
		{Label: "Travel & Local Guide", Tag: "travel"},
		{Label: "Home & DIY", Tag: "home_diy"},
		{Label: "Hobbies & Skills"},
		{Label: "Health & Wellness", Tag: "wellness"},
	})
	return c
}

// NewCatalog builds a catalog from entries. Labels must be unique and non-empty.
func NewCatalog(entries []CatalogEntry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, errors.New("catalog has no domains")
	}
	c := &Catalog{
		entries: make([]CatalogEntry, 0, len(entries)),
		tags:    make(map[string]string, len(entries)),
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		label := strings.TrimSpace(e.Label)
		if label == "" {
			return nil, errors.New("catalog entry has empty label")
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("duplicate catalog label %q", label)
		}
		seen[label] = struct{}{}
		tag := strings.TrimSpace(e.Tag)
		c.entries = append(c.entries, CatalogEntry{Label: label, Tag: tag})
		if tag != "" {
			c.tags[label] = tag
		}
	}
	return c, nil
}

// LoadCatalog reads a YAML catalog file of the form:
//
//	domains:
//	  - label: Finance & Budgeting
//	    tag: finance
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var file struct {
		Domains []CatalogEntry `yaml:"domains"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(file.Domains)
}

// Labels returns the domain labels in catalog order.
func (c *Catalog) Labels() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Label
	}
	return out
}

// Entries returns a copy of the catalog entries.
func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Tag returns the metadata tag for label. Matching is exact.
func (c *Catalog) Tag(label string) (string, bool) {
	tag, ok := c.tags[label]
	return tag, ok
}

// IsExplicit reports whether a caller-supplied domain bypasses classification.
func IsExplicit(domain string) bool {
	return domain != "" && domain != AutoDomain
}
