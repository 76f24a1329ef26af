package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/database/dbtest"
	"github.com/example/storefront/internal/events"
	"github.com/example/storefront/internal/logging"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/routes"
	"github.com/example/storefront/internal/search"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/storage"
	"github.com/example/storefront/internal/utils"
)

const testPassword = "secret123"

type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	createErr error
}

func (g *fakeGateway) CreateOrder(_ context.Context, _ services.PaymentOrderRequest) (*services.PaymentOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	return &services.PaymentOrder{ID: fmt.Sprintf("PAYPAL-%d", g.seq), Status: "CREATED"}, nil
}

func (g *fakeGateway) CaptureOrder(_ context.Context, id string) (*services.PaymentCapture, error) {
	return &services.PaymentCapture{OrderID: id, Status: "COMPLETED", PaymentID: "CAPTURE-" + id}, nil
}

func (g *fakeGateway) RefundCapture(context.Context, string) error { return nil }

type memStore struct {
	mu      sync.Mutex
	uploads []string
}

func (m *memStore) Upload(_ context.Context, folder, filename, _ string, r io.Reader, _ int64) (string, error) {
	name, err := storage.ObjectName(folder, filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, name)
	return "https://cdn.test/" + name, nil
}

type testEnv struct {
	db      *gorm.DB
	app     *fiber.App
	cfg     *config.Config
	gateway *fakeGateway
	store   *memStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := dbtest.Open(t)
	cfg := &config.Config{
		AppEnv:          "test",
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	env := &testEnv{db: db, cfg: cfg, gateway: &fakeGateway{}, store: &memStore{}}

	checkout := services.NewCheckoutService(db, env.gateway, events.NopPublisher{}, nil, "USD", logging.Discard())

	env.app = fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(cfg)})
	env.app.Use(middleware.RequestLogger(logging.Discard()))
	routes.Register(env.app, routes.Deps{
		DB:        db,
		Config:    cfg,
		Checkout:  checkout,
		Store:     env.store,
		Index:     search.Disabled{},
		Publisher: events.NopPublisher{},
	})
	return env
}

func (e *testEnv) createUser(t *testing.T, email, role string) models.User {
	t.Helper()
	hash, err := utils.HashPassword(testPassword)
	require.NoError(t, err)
	user := models.User{Name: "Test User", Email: email, PasswordHash: hash, Role: role}
	require.NoError(t, e.db.Create(&user).Error)
	return user
}

func (e *testEnv) token(t *testing.T, user models.User) string {
	t.Helper()
	token, err := utils.GenerateAccessToken(e.cfg.JWTSecret, user.ID, user.Email, user.Role, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) createProduct(t *testing.T, p models.Product) models.Product {
	t.Helper()
	if p.Name == "" {
		p.Name = "Product"
	}
	if p.Price.IsZero() {
		p.Price = decimal.NewFromInt(50)
	}
	if p.Sizes == nil {
		p.Sizes = pq.StringArray{}
	}
	if p.Colors == nil {
		p.Colors = pq.StringArray{}
	}
	require.NoError(t, e.db.Create(&p).Error)
	return p
}

type response struct {
	Status  int
	Body    map[string]any
	Cookies []*http.Cookie
}

func (r response) message() string {
	msg, _ := r.Body["message"].(string)
	return msg
}

func (r response) data() map[string]any {
	d, _ := r.Body["data"].(map[string]any)
	return d
}

func (r response) list() []any {
	d, _ := r.Body["data"].([]any)
	return d
}

func (r response) cookie(name string) *http.Cookie {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (e *testEnv) send(t *testing.T, req *http.Request) response {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := response{Status: resp.StatusCode, Cookies: resp.Cookies()}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.Body), string(raw))
	}
	return out
}

// do sends a JSON request; token may be empty.
func (e *testEnv) do(t *testing.T, method, path string, body any, token string, cookies ...*http.Cookie) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return e.send(t, req)
}

// multipartRequest builds a form with fields and files keyed by form name.
func multipartRequest(t *testing.T, method, path string, fields map[string]string, files map[string][]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for field, names := range files {
		for _, name := range names {
			part, err := w.CreateFormFile(field, name)
			require.NoError(t, err)
			_, err = part.Write([]byte("fake image bytes"))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}
