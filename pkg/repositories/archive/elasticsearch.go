package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/fadedpez/royalcharge/pkg/entities"
)

// ElasticsearchConfig holds configuration options for the Elasticsearch repository
type ElasticsearchConfig struct {
	URL         string
	Username    string
	Password    string
	IndexPrefix string
	BatchSize   int               // Documents per bulk request during a reindex
	Transport   http.RoundTripper // Optional, replaces the default HTTP transport
}

// DefaultElasticsearchConfig returns a default configuration for Elasticsearch
func DefaultElasticsearchConfig() *ElasticsearchConfig {
	return &ElasticsearchConfig{
		URL:         "http://localhost:9200",
		IndexPrefix: "royalcharge",
		BatchSize:   500,
	}
}

const orderMapping = `{
	"mappings": {
		"properties": {
			"order_id": { "type": "keyword" },
			"user_id": { "type": "keyword" },
			"type": { "type": "keyword" },
			"product_name": { "type": "text", "fields": { "raw": { "type": "keyword" } } },
			"price_usd": { "type": "scaled_float", "scaling_factor": 100 },
			"price_egp": { "type": "scaled_float", "scaling_factor": 100 },
			"coins_amount": { "type": "long" },
			"player_id": { "type": "keyword" },
			"status": { "type": "keyword" },
			"admin_reply": { "type": "text" },
			"finalized_by": { "type": "keyword" },
			"finalized_at": { "type": "date" },
			"date": { "type": "date" },
			"event": { "type": "keyword" },
			"indexed_at": { "type": "date" }
		}
	}
}`

// ElasticsearchRepository implements Repository on a single orders index.
// Documents are keyed by order id so every write is an upsert.
type ElasticsearchRepository struct {
	client *elasticsearch.Client
	config *ElasticsearchConfig
	index  string
}

// NewElasticsearchRepository creates the client and ensures the index exists
func NewElasticsearchRepository(ctx context.Context, config *ElasticsearchConfig) (*ElasticsearchRepository, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{config.URL},
		Transport: config.Transport,
	}
	if config.Username != "" && config.Password != "" {
		cfg.Username = config.Username
		cfg.Password = config.Password
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	if config.IndexPrefix == "" {
		config.IndexPrefix = "royalcharge"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}

	repo := &ElasticsearchRepository{
		client: client,
		config: config,
		index:  config.IndexPrefix + "_orders",
	}

	if err := repo.initIndex(ctx); err != nil {
		return nil, fmt.Errorf("error initializing index: %w", err)
	}
	return repo, nil
}

// initIndex creates the orders index with its mapping if it doesn't exist
func (r *ElasticsearchRepository) initIndex(ctx context.Context) error {
	res, err := r.client.Indices.Exists([]string{r.index}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error checking if order index exists: %w", err)
	}
	res.Body.Close()

	if res.StatusCode != http.StatusNotFound {
		return nil
	}

	req := esapi.IndicesCreateRequest{
		Index: r.index,
		Body:  strings.NewReader(orderMapping),
	}
	created, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("error creating order index: %w", err)
	}
	defer created.Body.Close()

	if created.IsError() {
		return fmt.Errorf("error creating order index: %s", created.String())
	}
	return nil
}

// IndexOrder upserts the document for one order
func (r *ElasticsearchRepository) IndexOrder(ctx context.Context, order *entities.Order, event Event) error {
	jsonData, err := json.Marshal(NewOrderDocument(order, event))
	if err != nil {
		return fmt.Errorf("error marshaling order document: %w", err)
	}

	res, err := r.client.Index(
		r.index,
		bytes.NewReader(jsonData),
		r.client.Index.WithContext(ctx),
		r.client.Index.WithDocumentID(order.ID),
	)
	if err != nil {
		return fmt.Errorf("error indexing order: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing order: %s", res.String())
	}
	return nil
}

// Reindex upserts every order through the bulk API, BatchSize documents per request
func (r *ElasticsearchRepository) Reindex(ctx context.Context, orders []*entities.Order) (int, error) {
	written := 0
	for start := 0; start < len(orders); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(orders) {
			end = len(orders)
		}

		n, err := r.bulkIndex(ctx, orders[start:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (r *ElasticsearchRepository) bulkIndex(ctx context.Context, batch []*entities.Order) (int, error) {
	var body bytes.Buffer
	for _, order := range batch {
		meta := map[string]any{"index": map[string]any{"_index": r.index, "_id": order.ID}}
		if err := json.NewEncoder(&body).Encode(meta); err != nil {
			return 0, fmt.Errorf("error encoding bulk metadata: %w", err)
		}
		if err := json.NewEncoder(&body).Encode(NewOrderDocument(order, EventReindexed)); err != nil {
			return 0, fmt.Errorf("error encoding order document: %w", err)
		}
	}

	res, err := r.client.Bulk(&body, r.client.Bulk.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("error running bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("error running bulk index: %s", res.String())
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("error parsing bulk response: %w", err)
	}

	failed := 0
	for _, item := range result.Items {
		for _, action := range item {
			if action.Status >= 300 {
				failed++
			}
		}
	}
	if result.Errors || failed > 0 {
		return len(batch) - failed, fmt.Errorf("bulk index rejected %d of %d documents", failed, len(batch))
	}
	return len(batch), nil
}

// Search returns matching documents, newest first
func (r *ElasticsearchRepository) Search(ctx context.Context, q Query) ([]*OrderDocument, error) {
	filters := make([]map[string]any, 0, 3)
	if q.UserID != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"user_id": q.UserID}})
	}
	if q.Status != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"status": q.Status}})
	}
	if q.Type != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"type": q.Type}})
	}

	query := map[string]any{
		"query": map[string]any{"bool": map[string]any{"filter": filters}},
		"sort": []map[string]any{
			{"date": map[string]any{"order": "desc"}},
			{"order_id": map[string]any{"order": "desc"}},
		},
	}
	jsonQuery, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("error encoding search query: %w", err)
	}

	size := q.Size
	if size <= 0 {
		size = 100
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(bytes.NewReader(jsonQuery)),
		r.client.Search.WithSize(size),
	)
	if err != nil {
		return nil, fmt.Errorf("error searching orders: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching orders: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source OrderDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error parsing search results: %w", err)
	}

	docs := make([]*OrderDocument, 0, len(result.Hits.Hits))
	for i := range result.Hits.Hits {
		docs = append(docs, &result.Hits.Hits[i].Source)
	}
	return docs, nil
}

// Clear drops every document from the orders index
func (r *ElasticsearchRepository) Clear(ctx context.Context) error {
	res, err := r.client.DeleteByQuery(
		[]string{r.index},
		strings.NewReader(`{"query":{"match_all":{}}}`),
		r.client.DeleteByQuery.WithContext(ctx),
		r.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("error clearing order index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error clearing order index: %s", res.String())
	}
	return nil
}

// Close implements Repository
func (r *ElasticsearchRepository) Close() error {
	return nil
}

// Index returns the name of the orders index
func (r *ElasticsearchRepository) Index() string {
	return r.index
}
