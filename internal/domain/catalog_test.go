package domain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogTags(t *testing.T) {
	c := DefaultCatalog()

	cases := map[string]string{
		"Health & Wellness":    "wellness",
		"Finance & Budgeting":  "finance",
		"Home & DIY":           "home_diy",
		"Travel & Local Guide": "travel",
	}
	for label, want := range cases {
		tag, ok := c.Tag(label)
		assert.True(t, ok, label)
		assert.Equal(t, want, tag, label)
	}

	_, ok := c.Tag("Hobbies & Skills")
	assert.False(t, ok, "hobbies has no indexed documents")

	_, ok = c.Tag("finance & budgeting")
	assert.False(t, ok, "matching is exact")
}

func TestDefaultCatalogLabelOrder(t *testing.T) {
	assert.Equal(t, []string{
		"Finance & Budgeting",
		"Travel & Local Guide",
		"Home & DIY",
		"Hobbies & Skills",
		"Health & Wellness",
	}, DefaultCatalog().Labels())
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]CatalogEntry{{Label: "A", Tag: "a"}, {Label: "A"}})
	require.Error(t, err)

	_, err = NewCatalog(nil)
	require.Error(t, err)

	_, err = NewCatalog([]CatalogEntry{{Label: "  "}})
	require.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.yaml")
	content := "domains:\n  - label: Cooking\n    tag: cooking\n  - label: Gardening\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Cooking", "Gardening"}, c.Labels())
	tag, ok := c.Tag("Cooking")
	assert.True(t, ok)
	assert.Equal(t, "cooking", tag)
	_, ok = c.Tag("Gardening")
	assert.False(t, ok)
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestIsExplicit(t *testing.T) {
	assert.False(t, IsExplicit(""))
	assert.False(t, IsExplicit(AutoDomain))
	assert.True(t, IsExplicit("Home & DIY"))
	assert.True(t, IsExplicit("Unknown"))
}
