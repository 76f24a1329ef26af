package handlers_test

import (
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/models"
)

type cartFixture struct {
	env    *testEnv
	user   models.User
	token  string
	shirt  models.Product
	poster models.Product
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	env := newTestEnv(t)
	user := env.createUser(t, "jane@example.com", models.RoleUser)
	return &cartFixture{
		env:   env,
		user:  user,
		token: env.token(t, user),
		shirt: env.createProduct(t, models.Product{
			Name: "Shirt", Sizes: pq.StringArray{"M", "L"}, Colors: pq.StringArray{"red"},
			Price: decimal.NewFromInt(25), Stock: 5,
		}),
		poster: env.createProduct(t, models.Product{
			Name: "Poster", Price: decimal.RequireFromString("9.99"), Stock: 1,
		}),
	}
}

func (f *cartFixture) add(t *testing.T, body map[string]any) response {
	t.Helper()
	return f.env.do(t, http.MethodPost, "/api/cart/add", body, f.token)
}

func (f *cartFixture) lines(t *testing.T) []models.CartItem {
	t.Helper()
	var items []models.CartItem
	require.NoError(t, f.env.db.
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.user_id = ?", f.user.ID).
		Order("cart_items.created_at asc").
		Find(&items).Error)
	return items
}

func TestAddToCartRejectsMoreThanStock(t *testing.T) {
	f := newCartFixture(t)

	res := f.add(t, map[string]any{"productId": f.shirt.ID, "quantity": 6, "size": "M", "color": "red"})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "only 5 items left in stock", res.message())
	assert.Empty(t, f.lines(t))
}

func TestAddToCartIncrementsSameVariant(t *testing.T) {
	f := newCartFixture(t)

	res := f.add(t, map[string]any{"productId": f.shirt.ID, "quantity": 2, "size": "M", "color": "red"})
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	res = f.add(t, map[string]any{"productId": f.shirt.ID, "quantity": 1, "size": "M", "color": "red"})
	require.Equal(t, http.StatusOK, res.Status, res.Body)

	lines := f.lines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)

	// A different size is its own line.
	res = f.add(t, map[string]any{"productId": f.shirt.ID, "quantity": 1, "size": "L", "color": "red"})
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Len(t, f.lines(t), 2)
	assert.EqualValues(t, 4, res.data()["totalItems"])
	assert.Equal(t, "100", res.data()["subtotal"])

	// The increment counts against stock: 3 M + 3 M would exceed 5.
	res = f.add(t, map[string]any{"productId": f.shirt.ID, "quantity": 3, "size": "M", "color": "red"})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, 3, f.lines(t)[0].Quantity)
}

func TestAddToCartValidation(t *testing.T) {
	f := newCartFixture(t)

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"zero quantity", map[string]any{"productId": f.shirt.ID, "quantity": 0, "size": "M", "color": "red"}, http.StatusBadRequest},
		{"unknown size", map[string]any{"productId": f.shirt.ID, "quantity": 1, "size": "XXL", "color": "red"}, http.StatusBadRequest},
		{"unknown color", map[string]any{"productId": f.shirt.ID, "quantity": 1, "size": "M", "color": "green"}, http.StatusBadRequest},
		{"bad product id", map[string]any{"productId": "nope", "quantity": 1}, http.StatusBadRequest},
		{"missing product", map[string]any{"productId": "00000000-0000-0000-0000-000000000001", "quantity": 1}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.add(t, tt.body)
			assert.Equal(t, tt.status, res.Status, res.Body)
		})
	}
	assert.Empty(t, f.lines(t))

	res := f.env.do(t, http.MethodPost, "/api/cart/add", map[string]any{"productId": f.shirt.ID, "quantity": 1}, "")
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestGetCartWithoutCartIsEmpty(t *testing.T) {
	f := newCartFixture(t)

	res := f.env.do(t, http.MethodGet, "/api/cart", nil, f.token)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Empty(t, res.data()["items"])
	assert.Equal(t, "0", res.data()["subtotal"])
	assert.Nil(t, res.data()["id"])
}

func TestUpdateAndRemoveCartItem(t *testing.T) {
	f := newCartFixture(t)
	res := f.add(t, map[string]any{"productId": f.shirt.ID, "quantity": 1, "size": "M", "color": "red"})
	require.Equal(t, http.StatusOK, res.Status)
	itemID := f.lines(t)[0].ID.String()

	res = f.env.do(t, http.MethodPut, "/api/cart/update/"+itemID, map[string]any{"quantity": 4}, f.token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Equal(t, 4, f.lines(t)[0].Quantity)

	res = f.env.do(t, http.MethodPut, "/api/cart/update/"+itemID, map[string]any{"quantity": 9}, f.token)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "only 5 items left in stock", res.message())

	res = f.env.do(t, http.MethodPut, "/api/cart/update/"+itemID, map[string]any{"quantity": 0}, f.token)
	assert.Equal(t, http.StatusBadRequest, res.Status)

	// Another user's token cannot touch the line.
	other := f.env.createUser(t, "other@example.com", models.RoleUser)
	res = f.env.do(t, http.MethodDelete, "/api/cart/remove/"+itemID, nil, f.env.token(t, other))
	assert.Equal(t, http.StatusNotFound, res.Status)

	res = f.env.do(t, http.MethodDelete, "/api/cart/remove/"+itemID, nil, f.token)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Empty(t, f.lines(t))
}

func TestClearCart(t *testing.T) {
	f := newCartFixture(t)
	f.add(t, map[string]any{"productId": f.shirt.ID, "quantity": 1, "size": "M", "color": "red"})
	f.add(t, map[string]any{"productId": f.poster.ID, "quantity": 1})
	require.Len(t, f.lines(t), 2)

	res := f.env.do(t, http.MethodDelete, "/api/cart/clear", nil, f.token)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Empty(t, f.lines(t))
	assert.Empty(t, res.data()["items"])
}

func TestMergeCart(t *testing.T) {
	f := newCartFixture(t)

	body := map[string]any{"items": []map[string]any{
		{"clientId": "g-1", "productId": f.shirt.ID, "quantity": 2, "size": "M", "color": "red"},
		{"clientId": "g-2", "productId": f.poster.ID, "quantity": 3},
		{"clientId": "g-3", "productId": "00000000-0000-0000-0000-000000000001", "quantity": 1},
	}}

	res := f.env.do(t, http.MethodPost, "/api/cart/merge", body, f.token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.EqualValues(t, 1, res.Body["merged"])
	assert.EqualValues(t, 0, res.Body["skipped"])
	rejected := res.Body["rejected"].([]any)
	require.Len(t, rejected, 2)
	assert.Equal(t, "g-2", rejected[0].(map[string]any)["clientId"])
	assert.Equal(t, "only 1 items left in stock", rejected[0].(map[string]any)["reason"])
	assert.Equal(t, "product not found", rejected[1].(map[string]any)["reason"])

	// Replaying the same guest cart does not double the quantity.
	res = f.env.do(t, http.MethodPost, "/api/cart/merge", body, f.token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.EqualValues(t, 0, res.Body["merged"])
	assert.EqualValues(t, 1, res.Body["skipped"])

	lines := f.lines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)

	// Receipts survive clearing the cart.
	res = f.env.do(t, http.MethodDelete, "/api/cart/clear", nil, f.token)
	require.Equal(t, http.StatusOK, res.Status)
	res = f.env.do(t, http.MethodPost, "/api/cart/merge", body, f.token)
	require.Equal(t, http.StatusOK, res.Status)
	assert.EqualValues(t, 1, res.Body["skipped"])
	assert.Empty(t, f.lines(t))
}

func TestMergeCartIncrementsExistingLine(t *testing.T) {
	f := newCartFixture(t)
	res := f.add(t, map[string]any{"productId": f.shirt.ID, "quantity": 2, "size": "M", "color": "red"})
	require.Equal(t, http.StatusOK, res.Status)

	res = f.env.do(t, http.MethodPost, "/api/cart/merge", map[string]any{"items": []map[string]any{
		{"clientId": "g-1", "productId": f.shirt.ID, "quantity": 2, "size": "M", "color": "red"},
	}}, f.token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.EqualValues(t, 1, res.Body["merged"])

	lines := f.lines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, 4, lines[0].Quantity)
}
