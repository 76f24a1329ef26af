package handlers_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/models"
)

func addressBody(name string, isDefault bool) map[string]any {
	return map[string]any{
		"fullName":    name,
		"addressLine": "1 Main St",
		"city":        "Springfield",
		"postalCode":  "12345",
		"country":     "US",
		"phone":       "555-0100",
		"isDefault":   isDefault,
	}
}

func defaultAddresses(t *testing.T, env *testEnv, userID uuid.UUID) []models.Address {
	t.Helper()
	var out []models.Address
	require.NoError(t, env.db.Where("user_id = ? AND is_default = ?", userID, true).Find(&out).Error)
	return out
}

func TestAddressDefaultInvariant(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "jane@example.com", models.RoleUser)
	token := env.token(t, user)

	res := env.do(t, http.MethodPost, "/api/address", addressBody("Home", false), token)
	require.Equal(t, http.StatusCreated, res.Status, res.Body)
	assert.Equal(t, true, res.data()["isDefault"], "first address becomes the default")
	home := res.data()["id"].(string)

	res = env.do(t, http.MethodPost, "/api/address", addressBody("Office", false), token)
	require.Equal(t, http.StatusCreated, res.Status)
	assert.Equal(t, false, res.data()["isDefault"])
	office := res.data()["id"].(string)

	res = env.do(t, http.MethodPost, "/api/address", addressBody("Cabin", true), token)
	require.Equal(t, http.StatusCreated, res.Status)
	cabin := res.data()["id"].(string)

	defaults := defaultAddresses(t, env, user.ID)
	require.Len(t, defaults, 1)
	assert.Equal(t, cabin, defaults[0].ID.String())

	res = env.do(t, http.MethodPut, "/api/address/"+office+"/default", nil, token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	defaults = defaultAddresses(t, env, user.ID)
	require.Len(t, defaults, 1)
	assert.Equal(t, office, defaults[0].ID.String())

	res = env.do(t, http.MethodPut, "/api/address/"+home, map[string]any{"isDefault": true, "city": "Shelbyville"}, token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Equal(t, "Shelbyville", res.data()["city"])
	defaults = defaultAddresses(t, env, user.ID)
	require.Len(t, defaults, 1)
	assert.Equal(t, home, defaults[0].ID.String())

	list := env.do(t, http.MethodGet, "/api/address", nil, token)
	require.Equal(t, http.StatusOK, list.Status)
	require.Len(t, list.list(), 3)
	assert.Equal(t, home, list.list()[0].(map[string]any)["id"], "default is listed first")
}

func TestDeleteDefaultAddressPromotesNewest(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "jane@example.com", models.RoleUser)
	token := env.token(t, user)

	first := env.do(t, http.MethodPost, "/api/address", addressBody("First", false), token).data()["id"].(string)
	env.do(t, http.MethodPost, "/api/address", addressBody("Second", false), token)
	third := env.do(t, http.MethodPost, "/api/address", addressBody("Third", false), token).data()["id"].(string)

	res := env.do(t, http.MethodDelete, "/api/address/"+first, nil, token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)

	defaults := defaultAddresses(t, env, user.ID)
	require.Len(t, defaults, 1)
	assert.Equal(t, third, defaults[0].ID.String())

	res = env.do(t, http.MethodDelete, "/api/address/"+first, nil, token)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestAddressOwnershipAndValidation(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "jane@example.com", models.RoleUser)
	other := env.createUser(t, "other@example.com", models.RoleUser)

	id := env.do(t, http.MethodPost, "/api/address", addressBody("Home", false), env.token(t, owner)).data()["id"].(string)

	otherToken := env.token(t, other)
	res := env.do(t, http.MethodPut, "/api/address/"+id, map[string]any{"city": "Elsewhere"}, otherToken)
	assert.Equal(t, http.StatusNotFound, res.Status)
	res = env.do(t, http.MethodDelete, "/api/address/"+id, nil, otherToken)
	assert.Equal(t, http.StatusNotFound, res.Status)
	res = env.do(t, http.MethodPut, "/api/address/"+id+"/default", nil, otherToken)
	assert.Equal(t, http.StatusNotFound, res.Status)

	res = env.do(t, http.MethodPost, "/api/address", map[string]any{"fullName": "No City"}, otherToken)
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = env.do(t, http.MethodPut, "/api/address/"+id, map[string]any{"city": "  "}, env.token(t, owner))
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = env.do(t, http.MethodPut, "/api/address/not-a-uuid", map[string]any{"city": "X"}, env.token(t, owner))
	assert.Equal(t, http.StatusBadRequest, res.Status)
}
