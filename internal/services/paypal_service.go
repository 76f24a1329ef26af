package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentGateway is the slice of the payment provider used by checkout.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req PaymentOrderRequest) (*PaymentOrder, error)
	CaptureOrder(ctx context.Context, providerOrderID string) (*PaymentCapture, error)
	RefundCapture(ctx context.Context, paymentID string) error
}

type PaymentItem struct {
	Name       string
	SKU        string
	UnitAmount decimal.Decimal
	Quantity   int
}

type PaymentOrderRequest struct {
	ReferenceID string
	Currency    string
	Items       []PaymentItem
	ItemTotal   decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

type PaymentOrder struct {
	ID     string
	Status string
}

type PaymentCapture struct {
	OrderID    string
	Status     string
	PaymentID  string
	Amount     decimal.Decimal
	PayerEmail string
}

// ErrPaymentAuth means the provider rejected our client credentials.
// Retrying will not help until the configuration is fixed.
var ErrPaymentAuth = errors.New("payment provider authentication failed")

// PaymentError is a non-2xx answer from the provider.
type PaymentError struct {
	Status  int
	Name    string
	Message string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("paypal: status %d: %s: %s", e.Status, e.Name, e.Message)
}

type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// PayPalClient talks to the PayPal Orders v2 API with a cached OAuth token.
type PayPalClient struct {
	cfg        PayPalConfig
	httpClient *http.Client
	logger     *slog.Logger

	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

func NewPayPalClient(cfg PayPalConfig, logger *slog.Logger) *PayPalClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PayPalClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *PayPalClient) accessToken(ctx context.Context, force bool) (string, error) {
	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" {
		p.logger.Error("paypal credentials missing, set PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET")
		return "", ErrPaymentAuth
	}

	if !force {
		p.tokenMu.RLock()
		if p.token != "" && time.Now().Before(p.tokenExpiry) {
			t := p.token
			p.tokenMu.RUnlock()
			return t, nil
		}
		p.tokenMu.RUnlock()
	}

	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	// Double-check after acquiring write lock.
	if !force && p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal auth request build: %w", err)
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal auth request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		p.logger.Error("paypal rejected client credentials, check PAYPAL_CLIENT_ID, PAYPAL_CLIENT_SECRET and that PAYPAL_BASE_URL matches the credential environment",
			"status", resp.StatusCode)
		return "", fmt.Errorf("%w: status %d", ErrPaymentAuth, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("paypal auth failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var tr paypalTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("paypal auth unmarshal: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: empty token", ErrPaymentAuth)
	}

	p.token = tr.AccessToken
	if tr.ExpiresIn > 60 {
		p.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	} else {
		p.tokenExpiry = time.Now().Add(5 * time.Minute)
	}
	return p.token, nil
}

// do sends a JSON request. A 401 refreshes the token once; nothing else is retried.
func (p *PayPalClient) do(ctx context.Context, method, path, requestID string, payload, out any) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("paypal request marshal: %w", err)
		}
	}

	status, body, err := p.send(ctx, method, path, requestID, data, false)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if status, body, err = p.send(ctx, method, path, requestID, data, true); err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		var apiErr struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if status == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrPaymentAuth, apiErr.Message)
		}
		return &PaymentError{Status: status, Name: apiErr.Name, Message: apiErr.Message}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("paypal response unmarshal: %w", err)
		}
	}
	return nil
}

func (p *PayPalClient) send(ctx context.Context, method, path, requestID string, data []byte, forceToken bool) (int, []byte, error) {
	token, err := p.accessToken(ctx, forceToken)
	if err != nil {
		return 0, nil, err
	}

	var bodyReader io.Reader
	if data != nil {
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("paypal request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("paypal request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

type paypalMoney struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalItem struct {
	Name       string      `json:"name"`
	SKU        string      `json:"sku,omitempty"`
	Quantity   string      `json:"quantity"`
	UnitAmount paypalMoney `json:"unit_amount"`
}

type paypalBreakdown struct {
	ItemTotal paypalMoney  `json:"item_total"`
	Discount  *paypalMoney `json:"discount,omitempty"`
}

type paypalAmount struct {
	paypalMoney
	Breakdown paypalBreakdown `json:"breakdown"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id,omitempty"`
	Amount      paypalAmount `json:"amount"`
	Items       []paypalItem `json:"items"`
}

type paypalCreateOrder struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

func money(currency string, v decimal.Decimal) paypalMoney {
	return paypalMoney{CurrencyCode: currency, Value: v.StringFixed(2)}
}

// BuildPayPalOrder renders the Orders v2 create payload.
func BuildPayPalOrder(req PaymentOrderRequest) paypalCreateOrder {
	items := make([]paypalItem, 0, len(req.Items))
	for _, it := range req.Items {
		name := truncate(it.Name, 127)
		items = append(items, paypalItem{
			Name:       name,
			SKU:        it.SKU,
			Quantity:   strconv.Itoa(it.Quantity),
			UnitAmount: money(req.Currency, it.UnitAmount),
		})
	}

	amount := paypalAmount{
		paypalMoney: money(req.Currency, req.Total),
		Breakdown:   paypalBreakdown{ItemTotal: money(req.Currency, req.ItemTotal)},
	}
	if req.Discount.IsPositive() {
		d := money(req.Currency, req.Discount)
		amount.Breakdown.Discount = &d
	}

	return paypalCreateOrder{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: req.ReferenceID,
			Amount:      amount,
			Items:       items,
		}},
	}
}

func (p *PayPalClient) CreateOrder(ctx context.Context, req PaymentOrderRequest) (*PaymentOrder, error) {
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", req.ReferenceID, BuildPayPalOrder(req), &out); err != nil {
		return nil, err
	}
	p.logger.Info("paypal order created", "provider_order_id", out.ID, "total", req.Total.StringFixed(2))
	return &PaymentOrder{ID: out.ID, Status: out.Status}, nil
}

func (p *PayPalClient) CaptureOrder(ctx context.Context, providerOrderID string) (*PaymentCapture, error) {
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Payer  struct {
			EmailAddress string `json:"email_address"`
		} `json:"payer"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string      `json:"id"`
					Status string      `json:"status"`
					Amount paypalMoney `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}

	path := "/v2/checkout/orders/" + url.PathEscape(providerOrderID) + "/capture"
	if err := p.do(ctx, http.MethodPost, path, "capture-"+providerOrderID, nil, &out); err != nil {
		return nil, err
	}

	capture := &PaymentCapture{OrderID: out.ID, Status: out.Status, PayerEmail: out.Payer.EmailAddress}
	for _, pu := range out.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			capture.PaymentID = c.ID
			capture.Amount, _ = decimal.NewFromString(c.Amount.Value)
			if c.Status != "" {
				capture.Status = c.Status
			}
		}
	}

	// PENDING means PayPal holds the funds under review; the capture id is
	// final and the order proceeds.
	if capture.PaymentID == "" || (capture.Status != "COMPLETED" && capture.Status != "PENDING") {
		return nil, &PaymentError{
			Status:  http.StatusUnprocessableEntity,
			Name:    "CAPTURE_NOT_COMPLETED",
			Message: "capture status " + capture.Status,
		}
	}
	p.logger.Info("paypal order captured", "provider_order_id", out.ID, "payment_id", capture.PaymentID, "status", capture.Status)
	return capture, nil
}

func (p *PayPalClient) RefundCapture(ctx context.Context, paymentID string) error {
	path := "/v2/payments/captures/" + url.PathEscape(paymentID) + "/refund"
	if err := p.do(ctx, http.MethodPost, path, "refund-"+paymentID, struct{}{}, nil); err != nil {
		return err
	}
	p.logger.Warn("paypal capture refunded", "payment_id", paymentID)
	return nil
}
