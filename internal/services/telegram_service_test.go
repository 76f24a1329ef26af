package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/logging"
)

func sampleNotification() OrderNotification {
	return OrderNotification{
		OrderID:  "order-1",
		Customer: "Jane <Doe>",
		Email:    "jane@example.com",
		Items: []OrderItemNotification{
			{Name: "Tee & Co", Size: "M", Color: "red", Quantity: 2, Price: decimal.NewFromInt(50)},
			{Name: "Cap", Quantity: 1, Price: decimal.RequireFromString("9.5")},
		},
		Discount:   decimal.NewFromInt(10),
		Total:      decimal.RequireFromString("99.5"),
		Currency:   "USD",
		CouponCode: "SAVE10",
		ShipTo:     "1 Main St, Springfield, US",
	}
}

func TestFormatOrderMessage(t *testing.T) {
	msg := FormatOrderMessage(sampleNotification())

	assert.Contains(t, msg, "<b>Order:</b> order-1")
	assert.Contains(t, msg, "Jane &lt;Doe&gt;")
	assert.Contains(t, msg, "1. <b>Tee &amp; Co</b> (M / red)")
	assert.Contains(t, msg, "2 x 50.00 = 100.00")
	assert.Contains(t, msg, "2. <b>Cap</b>\n")
	assert.Contains(t, msg, "<b>Coupon:</b> SAVE10 (-10.00)")
	assert.Contains(t, msg, "<b>Total:</b> 99.50 USD")
}

func TestNotifyNewOrderPostsToAdminChat(t *testing.T) {
	var (
		mu   sync.Mutex
		got  telegramMessage
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	svc := NewTelegramService("bot-token", "-100", logging.Discard())
	svc.baseURL = srv.URL

	require.NoError(t, svc.NotifyNewOrder(context.Background(), sampleNotification()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/botbot-token/sendMessage", path)
	assert.Equal(t, "-100", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Contains(t, got.Text, "order-1")
}

func TestNotifyNewOrderReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := NewTelegramService("bot-token", "-100", logging.Discard())
	svc.baseURL = srv.URL
	assert.Error(t, svc.NotifyNewOrder(context.Background(), sampleNotification()))
}

func TestNotifyNewOrderWithoutConfigIsNoop(t *testing.T) {
	svc := NewTelegramService("", "", logging.Discard())
	assert.NoError(t, svc.NotifyNewOrder(context.Background(), sampleNotification()))

	svc = NewTelegramService("", "-100", logging.Discard())
	assert.NoError(t, svc.NotifyNewOrder(context.Background(), sampleNotification()))
}
