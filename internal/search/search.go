package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
)

// ProductIndex keeps a searchable copy of the catalog.
type ProductIndex interface {
	Enabled() bool
	IndexProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	// Search returns matching product ids in relevance order.
	Search(ctx context.Context, query string, from, size int) (int64, []uuid.UUID, error)
}

// Disabled is used when Elasticsearch is not configured; callers fall back to SQL.
type Disabled struct{}

func (Disabled) Enabled() bool                                      { return false }
func (Disabled) IndexProduct(context.Context, *models.Product) error { return nil }
func (Disabled) DeleteProduct(context.Context, uuid.UUID) error      { return nil }
func (Disabled) Search(context.Context, string, int, int) (int64, []uuid.UUID, error) {
	return 0, nil, nil
}

type Config struct {
	URL      string
	Username string
	Password string
	Index    string
}

// ElasticIndex is the Elasticsearch backed ProductIndex.
type ElasticIndex struct {
	es    *elasticsearch.Client
	index string
}

// New connects to Elasticsearch when a URL is configured.
func New(cfg Config, logger *slog.Logger) (ProductIndex, error) {
	if cfg.URL == "" {
		logger.Info("elasticsearch not configured, search uses the database")
		return Disabled{}, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch info: %s: %s", res.Status(), body)
	}

	logger.Info("connected to elasticsearch", "url", cfg.URL, "index", cfg.Index)
	return &ElasticIndex{es: client, index: cfg.Index}, nil
}

func (e *ElasticIndex) Enabled() bool { return true }

type productDocument struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Gender      string   `json:"gender"`
	Sizes       []string `json:"sizes"`
	Colors      []string `json:"colors"`
	Price       float64  `json:"price"`
	InStock     bool     `json:"inStock"`
}

func toDocument(p *models.Product) productDocument {
	price, _ := p.Price.Float64()
	return productDocument{
		ID:          p.ID.String(),
		Name:        p.Name,
		Brand:       p.Brand,
		Category:    p.Category,
		Description: p.Description,
		Gender:      p.Gender,
		Sizes:       p.Sizes,
		Colors:      p.Colors,
		Price:       price,
		InStock:     p.Stock > 0,
	}
}

func (e *ElasticIndex) IndexProduct(ctx context.Context, p *models.Product) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(toDocument(p)); err != nil {
		return err
	}

	res, err := e.es.Index(e.index, &buf,
		e.es.Index.WithContext(ctx),
		e.es.Index.WithDocumentID(p.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("index product %s: %w", p.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index product %s: %s", p.ID, res.Status())
	}
	return nil
}

func (e *ElasticIndex) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	res, err := e.es.Delete(e.index, id.String(), e.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete product %s: %s", id, res.Status())
	}
	return nil
}

// BuildQuery renders the multi_match request body.
func BuildQuery(query string, from, size int) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"name^3", "brand^2", "category", "description"},
				"fuzziness": "AUTO",
			},
		},
		"_source": []string{"id"},
		"from":    from,
		"size":    size,
	}
}

func (e *ElasticIndex) Search(ctx context.Context, query string, from, size int) (int64, []uuid.UUID, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(BuildQuery(query, from, size)); err != nil {
		return 0, nil, err
	}

	res, err := e.es.Search(
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(e.index),
		e.es.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, fmt.Errorf("search: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, err
	}

	ids := make([]uuid.UUID, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		if id, err := uuid.Parse(hit.ID); err == nil {
			ids = append(ids, id)
		}
	}
	return r.Hits.Total.Value, ids, nil
}
