package archive

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"
	"github.com/truthlayer-systems/truthfeed/internal/models"
)

// ColdStore receives pruned events. Cold storage is write-only from the
// engine's point of view; reads go through the store's own query surface.
type ColdStore interface {
	Store(ctx context.Context, events []*models.Event) error
}

// OpenSearchConfig holds cold-storage connection settings.
type OpenSearchConfig struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
}

// DefaultOpenSearchConfig returns sensible defaults for local development.
func DefaultOpenSearchConfig() OpenSearchConfig {
	return OpenSearchConfig{
		URL:           "https://localhost:9200",
		Username:      "admin",
		Password:      "admin",
		TLSSkipVerify: true,
		IndexPrefix:   "truthfeed-archive",
	}
}

// OpenSearchStore indexes archived events into OpenSearch.
type OpenSearchStore struct {
	client *opensearch.Client
	config OpenSearchConfig
}

// NewOpenSearchStore creates a cold-storage client.
func NewOpenSearchStore(cfg OpenSearchConfig) (*OpenSearchStore, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	return &OpenSearchStore{client: client, config: cfg}, nil
}

// Initialize verifies connectivity and installs the archive index template.
func (s *OpenSearchStore) Initialize(ctx context.Context) error {
	info, err := s.client.Info()
	if err != nil {
		return fmt.Errorf("connect to opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	template := map[string]interface{}{
		"index_patterns": []string{s.config.IndexPrefix + "-*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   1,
				"number_of_replicas": 0,
				"codec":              "best_compression",
			},
			"mappings": map[string]interface{}{
				"dynamic": true,
				"properties": map[string]interface{}{
					"id":                  map[string]interface{}{"type": "keyword"},
					"feed_id":             map[string]interface{}{"type": "keyword"},
					"feed_type":           map[string]interface{}{"type": "keyword"},
					"subject_id":          map[string]interface{}{"type": "keyword"},
					"event_type":          map[string]interface{}{"type": "keyword"},
					"confidence_score":    map[string]interface{}{"type": "float"},
					"sequence_number":     map[string]interface{}{"type": "long"},
					"previous_event_hash": map[string]interface{}{"type": "keyword"},
					"integrity_proof":     map[string]interface{}{"type": "keyword"},
					"anchor_status":       map[string]interface{}{"type": "keyword"},
					"anchor_reference":    map[string]interface{}{"type": "keyword"},
					"created_at":          map[string]interface{}{"type": "date"},
					"payload":             map[string]interface{}{"type": "object"},
				},
			},
		},
		"priority": 100,
	}

	body, err := json.Marshal(template)
	if err != nil {
		return err
	}

	res, err := s.client.Indices.PutIndexTemplate(
		s.config.IndexPrefix+"-template",
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("create index template: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("create index template: %s - %s", res.Status(), string(raw))
	}
	return nil
}

// Store bulk-indexes events into the feed-type index. Any failed document
// fails the whole batch so the hot copy is never deleted without a cold copy.
func (s *OpenSearchStore) Store(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}

	var failures []string
	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client:     s.client,
		Index:      s.indexFor(events[0].FeedType),
		NumWorkers: 1,
	})
	if err != nil {
		return fmt.Errorf("create bulk indexer: %w", err)
	}

	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: ev.ID,
			Body:       bytes.NewReader(data),
			OnFailure: func(_ context.Context, _ opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					failures = append(failures, err.Error())
				} else {
					failures = append(failures, fmt.Sprintf("%s: %s", res.Error.Type, res.Error.Reason))
				}
			},
		})
		if err != nil {
			return fmt.Errorf("add event %s to bulk indexer: %w", ev.ID, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("flush bulk indexer: %w", err)
	}
	if len(failures) > 0 {
		return fmt.Errorf("cold storage rejected %d events: %s", len(failures), failures[0])
	}
	return nil
}

func (s *OpenSearchStore) indexFor(feedType string) string {
	return s.config.IndexPrefix + "-" + feedType
}
