package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderNotifier tells staff about new orders.
type OrderNotifier interface {
	NotifyNewOrder(ctx context.Context, order OrderNotification) error
}

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string, logger *slog.Logger) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     "https://api.telegram.org",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		s.logger.Debug("telegram bot token not configured")
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// OrderNotification contains order data for Telegram notification.
type OrderNotification struct {
	OrderID    string
	Customer   string
	Email      string
	Items      []OrderItemNotification
	Discount   decimal.Decimal
	Total      decimal.Decimal
	Currency   string
	CouponCode string
	ShipTo     string
}

type OrderItemNotification struct {
	Name     string
	Size     string
	Color    string
	Quantity int
	Price    decimal.Decimal
}

// FormatOrderMessage renders the HTML message sent to the admin chat.
func FormatOrderMessage(order OrderNotification) string {
	var items strings.Builder
	for i, item := range order.Items {
		variant := strings.Trim(strings.Join([]string{item.Size, item.Color}, " / "), " /")
		if variant != "" {
			variant = " (" + html.EscapeString(variant) + ")"
		}
		line := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		fmt.Fprintf(&items, "%d. <b>%s</b>%s\n   %d x %s = %s\n",
			i+1, html.EscapeString(item.Name), variant,
			item.Quantity, item.Price.StringFixed(2), line.StringFixed(2))
	}

	var b strings.Builder
	b.WriteString("<b>New order</b>\n")
	fmt.Fprintf(&b, "<b>Order:</b> %s\n", order.OrderID)
	fmt.Fprintf(&b, "<b>Customer:</b> %s (%s)\n", html.EscapeString(order.Customer), html.EscapeString(order.Email))
	if order.ShipTo != "" {
		fmt.Fprintf(&b, "<b>Ship to:</b> %s\n", html.EscapeString(order.ShipTo))
	}
	b.WriteString("<b>Items:</b>\n")
	b.WriteString(items.String())
	if order.CouponCode != "" {
		fmt.Fprintf(&b, "<b>Coupon:</b> %s (-%s)\n", html.EscapeString(order.CouponCode), order.Discount.StringFixed(2))
	}
	fmt.Fprintf(&b, "<b>Total:</b> %s %s", order.Total.StringFixed(2), order.Currency)
	return b.String()
}

// NotifyNewOrder sends notification about new order to admin chat.
func (s *TelegramService) NotifyNewOrder(ctx context.Context, order OrderNotification) error {
	if s.adminChatID == "" {
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, FormatOrderMessage(order))
}
