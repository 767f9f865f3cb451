package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const offeringsIndex = "offerings"

// indexedOffering is the search-index projection of a document. Price values
// become floats here and only here.
type indexedOffering struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	LifecycleStatus string         `json:"lifecycle_status"`
	Channels        []string       `json:"channels"`
	Specifications  []SpecView     `json:"specifications"`
	Pricing         []indexedPrice `json:"pricing"`
}

type indexedPrice struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Unit     string  `json:"unit,omitempty"`
}

// ElasticIndex backs SearchIndex with Elasticsearch.
type ElasticIndex struct {
	client *elasticsearch.Client
}

// NewElasticIndex creates a client for the given addresses.
func NewElasticIndex(addresses []string) (*ElasticIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &ElasticIndex{client: client}, nil
}

// Ping reports whether the cluster answers.
func (e *ElasticIndex) Ping(ctx context.Context) error {
	resp, err := (esapi.PingRequest{}).Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", resp.Status())
	}
	return nil
}

// Index upserts an offering into the search index, converting price decimals
// to floats at this boundary.
func (e *ElasticIndex) Index(ctx context.Context, doc Document) error {
	indexed := indexedOffering{
		ID:              doc.ID,
		Name:            doc.Name,
		Description:     doc.Description,
		LifecycleStatus: doc.LifecycleStatus,
		Channels:        doc.Channels,
		Specifications:  doc.Specifications,
		Pricing:         make([]indexedPrice, 0, len(doc.Pricing)),
	}
	for _, p := range doc.Pricing {
		value, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			return fmt.Errorf("price %s has non-numeric value %q: %w", p.ID, p.Value, err)
		}
		indexed.Pricing = append(indexed.Pricing, indexedPrice{
			ID: p.ID, Name: p.Name, Value: value, Currency: p.Currency, Unit: p.Unit,
		})
	}

	body, err := json.Marshal(indexed)
	if err != nil {
		return fmt.Errorf("marshal indexed offering: %w", err)
	}
	res, err := esapi.IndexRequest{
		Index:      offeringsIndex,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("index offering %s: %w", doc.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index offering %s: %s", doc.ID, res.String())
	}
	return nil
}

// Delete removes an offering from the index; 404 is a no-op.
func (e *ElasticIndex) Delete(ctx context.Context, id string) error {
	res, err := esapi.DeleteRequest{Index: offeringsIndex, DocumentID: id}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("delete indexed offering %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete indexed offering %s: %s", id, res.String())
	}
	return nil
}

// Search runs the store query against the index and returns documents in
// their authoritative (string-valued) shape.
func (e *ElasticIndex) Search(ctx context.Context, q Query) ([]Document, error) {
	var must []map[string]interface{}
	if q.Text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"name", "description", "specifications.name"},
			},
		})
	}
	if q.Channel != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"channels": q.Channel},
		})
	}
	if q.CharacteristicID != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"specifications.characteristics.id": q.CharacteristicID},
		})
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		rangeBody := map[string]interface{}{}
		if q.MinPrice != nil {
			rangeBody["gte"] = *q.MinPrice
		}
		if q.MaxPrice != nil {
			rangeBody["lte"] = *q.MaxPrice
		}
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{"pricing.value": rangeBody},
		})
	}
	if len(must) == 0 {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal search query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(offeringsIndex),
		e.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search offerings: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search offerings: %s", res.String())
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	var parsed struct {
		Hits struct {
			Hits []struct {
				Source indexedOffering `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]Document, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		src := hit.Source
		doc := Document{
			ID:              src.ID,
			Name:            src.Name,
			Description:     src.Description,
			LifecycleStatus: src.LifecycleStatus,
			Channels:        src.Channels,
			Specifications:  src.Specifications,
			Pricing:         make([]PriceView, 0, len(src.Pricing)),
		}
		for _, p := range src.Pricing {
			doc.Pricing = append(doc.Pricing, PriceView{
				ID: p.ID, Name: p.Name,
				Value:    strconv.FormatFloat(p.Value, 'f', -1, 64),
				Currency: p.Currency, Unit: p.Unit,
			})
		}
		out = append(out, doc)
	}
	return out, nil
}
