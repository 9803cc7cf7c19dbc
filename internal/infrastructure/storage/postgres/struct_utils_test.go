package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/internal/core/entity"
	"pharmapos/internal/core/id"
)

type mockCatalog struct {
	entity.Catalog
	GenericName string `db:"generic_name" json:"genericName"`
	Internal    string `db:"-" json:"-"`
	NoTag       string
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[mockCatalog]()

	expected := []string{
		"id",
		"deletion_mark",
		"version",
		"attributes",
		"code",
		"name",
		"generic_name",
	}
	assert.Equal(t, expected, cols)
}

func TestExtractDBColumns_SkipsIgnoredAndUntagged(t *testing.T) {
	cols := ExtractDBColumns[mockCatalog]()

	assert.NotContains(t, cols, "-")
	assert.NotContains(t, cols, "Internal")
	assert.NotContains(t, cols, "NoTag")
}

func TestStructToMap(t *testing.T) {
	c := mockCatalog{
		Catalog:     entity.NewCatalog("MED-000001", "Paracetamol 500mg"),
		GenericName: "Paracetamol",
		Internal:    "hidden",
		NoTag:       "also hidden",
	}

	m := StructToMap(&c)
	require.NotNil(t, m)

	assert.Equal(t, c.ID, m["id"])
	assert.Equal(t, false, m["deletion_mark"])
	assert.Equal(t, 1, m["version"])
	assert.Equal(t, "MED-000001", m["code"])
	assert.Equal(t, "Paracetamol 500mg", m["name"])
	assert.Equal(t, "Paracetamol", m["generic_name"])

	_, hasInternal := m["-"]
	assert.False(t, hasInternal)
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
	assert.Nil(t, StructToMap("not a struct"))
}

func TestStructToMap_ReusesCachedMetadata(t *testing.T) {
	// Two conversions of the same type must produce identical shapes.
	a := mockCatalog{Catalog: entity.NewCatalog("A", "First")}
	b := mockCatalog{Catalog: entity.NewCatalog("B", "Second")}

	ma := StructToMap(&a)
	mb := StructToMap(&b)

	require.Equal(t, len(ma), len(mb))
	assert.NotEqual(t, ma["id"].(id.ID), mb["id"].(id.ID))
}
