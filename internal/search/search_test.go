package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/logging"
	"github.com/example/storefront/internal/models"
)

func TestBuildQuery(t *testing.T) {
	body := BuildQuery("red shirt", 20, 10)
	assert.Equal(t, 20, body["from"])
	assert.Equal(t, 10, body["size"])

	mm := body["query"].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, "red shirt", mm["query"])
	assert.Equal(t, "AUTO", mm["fuzziness"])
}

func TestToDocument(t *testing.T) {
	p := &models.Product{
		Name:   "Tee",
		Sizes:  pq.StringArray{"S", "M"},
		Price:  decimal.RequireFromString("19.99"),
		Stock:  0,
		Brand:  "Acme",
		Colors: pq.StringArray{"red"},
	}
	p.ID = uuid.New()

	doc := toDocument(p)
	assert.Equal(t, p.ID.String(), doc.ID)
	assert.InDelta(t, 19.99, doc.Price, 0.0001)
	assert.False(t, doc.InStock)
	assert.Equal(t, []string{"S", "M"}, doc.Sizes)
}

func TestNewWithoutURLIsDisabled(t *testing.T) {
	idx, err := New(Config{}, logging.Discard())
	require.NoError(t, err)
	assert.False(t, idx.Enabled())
	total, ids, err := idx.Search(context.Background(), "x", 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, ids)
}
