package handlers_test

import (
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
)

type orderFixture struct {
	env     *testEnv
	user    models.User
	token   string
	admin   string
	product models.Product
	address models.Address
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	env := newTestEnv(t)
	user := env.createUser(t, "jane@example.com", models.RoleUser)
	admin := env.createUser(t, "admin@example.com", models.RoleSuperAdmin)

	f := &orderFixture{
		env:   env,
		user:  user,
		token: env.token(t, user),
		admin: env.token(t, admin),
		product: env.createProduct(t, models.Product{
			Name: "Product A", Category: "shirts",
			Sizes: pq.StringArray{"M"}, Colors: pq.StringArray{"red"},
			Price: decimal.NewFromInt(50), Stock: 5,
		}),
		address: models.Address{
			UserID: user.ID, FullName: "Jane Doe", AddressLine: "1 Main St",
			City: "Springfield", Country: "US", IsDefault: true,
		},
	}
	require.NoError(t, env.db.Create(&f.address).Error)
	seedCoupon(t, env, models.Coupon{Code: "SAVE10", DiscountPercent: 10, IsActive: true, UsageLimit: 100})

	res := env.do(t, http.MethodPost, "/api/cart/add", map[string]any{
		"productId": f.product.ID, "quantity": 2, "size": "M", "color": "red",
	}, f.token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	return f
}

// checkout runs create, capture and finalize and returns the finalize response.
func (f *orderFixture) checkout(t *testing.T) (string, response) {
	t.Helper()
	res := f.env.do(t, http.MethodPost, "/api/order/create-paypal-order", map[string]any{
		"addressId": f.address.ID, "couponCode": "save10",
	}, f.token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	orderID := res.Body["orderId"].(string)

	res = f.env.do(t, http.MethodPost, "/api/order/capture-paypal-order", map[string]any{"orderId": orderID}, f.token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)

	return orderID, f.env.do(t, http.MethodPost, "/api/order/create-final-order", map[string]any{"orderId": orderID}, f.token)
}

func TestCheckoutFlow(t *testing.T) {
	f := newOrderFixture(t)

	res := f.env.do(t, http.MethodPost, "/api/order/create-paypal-order", map[string]any{
		"addressId": f.address.ID, "couponCode": "save10",
	}, f.token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Equal(t, "PAYPAL-1", res.Body["orderId"])
	assert.Equal(t, "100", res.Body["subtotal"])
	assert.Equal(t, "10", res.Body["discount"])
	assert.Equal(t, "90", res.Body["total"])
	assert.Equal(t, "USD", res.Body["currency"])

	res = f.env.do(t, http.MethodPost, "/api/order/create-final-order", map[string]any{"orderId": "PAYPAL-1"}, f.token)
	assert.Equal(t, http.StatusConflict, res.Status, "finalize before capture")

	res = f.env.do(t, http.MethodPost, "/api/order/capture-paypal-order", map[string]any{"orderId": "PAYPAL-1"}, f.token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Equal(t, "CAPTURE-PAYPAL-1", res.Body["paymentId"])
	assert.Equal(t, "COMPLETED", res.Body["status"])

	res = f.env.do(t, http.MethodPost, "/api/order/create-final-order", map[string]any{"orderId": "PAYPAL-1"}, f.token)
	require.Equal(t, http.StatusCreated, res.Status, res.Body)
	order := res.data()
	assert.Equal(t, "90", order["total"])
	assert.Equal(t, models.OrderStatusPending, order["status"])
	assert.Equal(t, "SAVE10", order["couponCode"])
	assert.Len(t, order["items"], 1)

	replay := f.env.do(t, http.MethodPost, "/api/order/create-final-order", map[string]any{"orderId": "PAYPAL-1"}, f.token)
	require.Equal(t, http.StatusOK, replay.Status, replay.Body)
	assert.Equal(t, "order already created", replay.message())
	assert.Equal(t, order["id"], replay.data()["id"])

	var product models.Product
	require.NoError(t, f.env.db.First(&product, "id = ?", f.product.ID).Error)
	assert.Equal(t, 3, product.Stock)
	assert.Equal(t, 2, product.SoldCount)

	var orders int64
	require.NoError(t, f.env.db.Model(&models.Order{}).Count(&orders).Error)
	assert.EqualValues(t, 1, orders)

	cart := f.env.do(t, http.MethodGet, "/api/cart", nil, f.token)
	assert.Empty(t, cart.data()["items"])
}

func TestCheckoutErrors(t *testing.T) {
	t.Run("unknown address", func(t *testing.T) {
		f := newOrderFixture(t)
		res := f.env.do(t, http.MethodPost, "/api/order/create-paypal-order", map[string]any{
			"addressId": "00000000-0000-0000-0000-000000000001",
		}, f.token)
		assert.Equal(t, http.StatusNotFound, res.Status)
	})

	t.Run("empty cart", func(t *testing.T) {
		f := newOrderFixture(t)
		f.env.do(t, http.MethodDelete, "/api/cart/clear", nil, f.token)
		res := f.env.do(t, http.MethodPost, "/api/order/create-paypal-order", map[string]any{
			"addressId": f.address.ID,
		}, f.token)
		assert.Equal(t, http.StatusBadRequest, res.Status)
		assert.Equal(t, "cart is empty", res.message())
	})

	t.Run("unknown coupon", func(t *testing.T) {
		f := newOrderFixture(t)
		res := f.env.do(t, http.MethodPost, "/api/order/create-paypal-order", map[string]any{
			"addressId": f.address.ID, "couponCode": "NOPE",
		}, f.token)
		assert.Equal(t, http.StatusBadRequest, res.Status)
	})

	t.Run("provider credentials rejected", func(t *testing.T) {
		f := newOrderFixture(t)
		f.env.gateway.createErr = services.ErrPaymentAuth
		res := f.env.do(t, http.MethodPost, "/api/order/create-paypal-order", map[string]any{
			"addressId": f.address.ID,
		}, f.token)
		assert.Equal(t, http.StatusBadGateway, res.Status)
		assert.Equal(t, "payment provider unavailable, please try again", res.message())
	})

	t.Run("provider rejects order", func(t *testing.T) {
		f := newOrderFixture(t)
		f.env.gateway.createErr = &services.PaymentError{Status: http.StatusUnprocessableEntity, Name: "UNPROCESSABLE_ENTITY"}
		res := f.env.do(t, http.MethodPost, "/api/order/create-paypal-order", map[string]any{
			"addressId": f.address.ID,
		}, f.token)
		assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
	})

	t.Run("stock sold out between create and finalize", func(t *testing.T) {
		f := newOrderFixture(t)
		res := f.env.do(t, http.MethodPost, "/api/order/create-paypal-order", map[string]any{"addressId": f.address.ID}, f.token)
		require.Equal(t, http.StatusOK, res.Status, res.Body)
		orderID := res.Body["orderId"].(string)
		res = f.env.do(t, http.MethodPost, "/api/order/capture-paypal-order", map[string]any{"orderId": orderID}, f.token)
		require.Equal(t, http.StatusOK, res.Status)

		require.NoError(t, f.env.db.Model(&models.Product{}).Where("id = ?", f.product.ID).Update("stock", 1).Error)

		res = f.env.do(t, http.MethodPost, "/api/order/create-final-order", map[string]any{"orderId": orderID}, f.token)
		assert.Equal(t, http.StatusConflict, res.Status)

		var orders int64
		require.NoError(t, f.env.db.Model(&models.Order{}).Count(&orders).Error)
		assert.Zero(t, orders)
	})

	t.Run("another user's checkout", func(t *testing.T) {
		f := newOrderFixture(t)
		res := f.env.do(t, http.MethodPost, "/api/order/create-paypal-order", map[string]any{"addressId": f.address.ID}, f.token)
		require.Equal(t, http.StatusOK, res.Status)
		other := f.env.createUser(t, "other@example.com", models.RoleUser)
		res = f.env.do(t, http.MethodPost, "/api/order/capture-paypal-order",
			map[string]any{"orderId": res.Body["orderId"]}, f.env.token(t, other))
		assert.Equal(t, http.StatusNotFound, res.Status)
	})

	t.Run("missing order id", func(t *testing.T) {
		f := newOrderFixture(t)
		res := f.env.do(t, http.MethodPost, "/api/order/capture-paypal-order", map[string]any{}, f.token)
		assert.Equal(t, http.StatusBadRequest, res.Status)
	})
}

func TestOrderQueries(t *testing.T) {
	f := newOrderFixture(t)
	_, res := f.checkout(t)
	require.Equal(t, http.StatusCreated, res.Status, res.Body)
	orderID := res.data()["id"].(string)

	mine := f.env.do(t, http.MethodGet, "/api/order/get-order-by-user-id", nil, f.token)
	require.Equal(t, http.StatusOK, mine.Status)
	require.Len(t, mine.list(), 1)
	assert.Equal(t, orderID, mine.list()[0].(map[string]any)["id"])

	single := f.env.do(t, http.MethodGet, "/api/order/get-single-order/"+orderID, nil, f.token)
	require.Equal(t, http.StatusOK, single.Status)
	assert.Len(t, single.data()["items"], 1)

	other := f.env.createUser(t, "other@example.com", models.RoleUser)
	res = f.env.do(t, http.MethodGet, "/api/order/get-single-order/"+orderID, nil, f.env.token(t, other))
	assert.Equal(t, http.StatusNotFound, res.Status)

	res = f.env.do(t, http.MethodGet, "/api/order/get-single-order/"+orderID, nil, f.admin)
	assert.Equal(t, http.StatusOK, res.Status)

	res = f.env.do(t, http.MethodGet, "/api/order/get-order-by-user-id", nil, f.env.token(t, other))
	require.Equal(t, http.StatusOK, res.Status)
	assert.Empty(t, res.list())
}

func TestAdminOrderStatus(t *testing.T) {
	f := newOrderFixture(t)
	_, res := f.checkout(t)
	require.Equal(t, http.StatusCreated, res.Status, res.Body)
	orderID := res.data()["id"].(string)
	path := "/api/order/" + orderID + "/status"

	res = f.env.do(t, http.MethodPut, path, map[string]any{"status": "shipped"}, f.token)
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = f.env.do(t, http.MethodPut, path, map[string]any{"status": "shipped"}, f.admin)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Equal(t, models.OrderStatusShipped, res.data()["status"])

	res = f.env.do(t, http.MethodPut, path, map[string]any{"status": "PROCESSING"}, f.admin)
	assert.Equal(t, http.StatusConflict, res.Status)

	res = f.env.do(t, http.MethodPut, path, map[string]any{"status": "LOST"}, f.admin)
	assert.Equal(t, http.StatusBadRequest, res.Status)

	list := f.env.do(t, http.MethodGet, "/api/order/get-all-orders-for-admin?status=SHIPPED", nil, f.admin)
	require.Equal(t, http.StatusOK, list.Status, list.Body)
	require.Len(t, list.list(), 1)
	assert.Equal(t, "jane@example.com", list.list()[0].(map[string]any)["user"].(map[string]any)["email"])

	list = f.env.do(t, http.MethodGet, "/api/order/get-all-orders-for-admin?status=PENDING", nil, f.admin)
	require.Equal(t, http.StatusOK, list.Status)
	assert.Empty(t, list.list())

	list = f.env.do(t, http.MethodGet, "/api/order/get-all-orders-for-admin", nil, f.token)
	assert.Equal(t, http.StatusForbidden, list.Status)
}

func TestAdminDashboard(t *testing.T) {
	f := newOrderFixture(t)
	_, res := f.checkout(t)
	require.Equal(t, http.StatusCreated, res.Status, res.Body)

	res = f.env.do(t, http.MethodGet, "/api/admin/dashboard", nil, f.admin)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	stats := res.data()
	assert.EqualValues(t, 2, stats["totalUsers"])
	assert.EqualValues(t, 1, stats["totalProducts"])
	assert.EqualValues(t, 1, stats["totalOrders"])
	assert.Equal(t, "90", stats["totalRevenue"])
	assert.EqualValues(t, 1, stats["ordersByStatus"].(map[string]any)[models.OrderStatusPending])
	assert.Len(t, stats["lowStockProducts"], 1)

	res = f.env.do(t, http.MethodGet, "/api/admin/dashboard", nil, f.token)
	assert.Equal(t, http.StatusForbidden, res.Status)
}
