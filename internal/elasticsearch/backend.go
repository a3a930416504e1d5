// Package elasticsearch is the remote index backend. It derives an index
// mapping from the field mapping table and the norm policy, writes one
// document per status, and force-merges the index to a single segment on
// Consolidate.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/document"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/mapping"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/errors"
)

// Backend writes statuses into one Elasticsearch index.
type Backend struct {
	es     *elasticsearch.Client
	cfg    config.ElasticsearchConfig
	log    *slog.Logger
	mu     sync.Mutex
	ready  bool
	closed bool
}

// ParseLocation splits an index location such as http://es:9200/statuses
// into the cluster address and the index name. It reports false for
// anything that is not an http(s) URL.
func ParseLocation(raw string) (addr, index string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", false
	}
	index = strings.Trim(u.Path, "/")
	u.Path = ""
	u.RawQuery = ""
	return u.String(), index, true
}

// New creates a client for cfg.Addr. It does not contact the cluster.
func New(cfg config.ElasticsearchConfig, logger *slog.Logger) (*Backend, error) {
	if cfg.Index == "" {
		return nil, apperrors.New(apperrors.ErrConfig, apperrors.ExitUsage, "elasticsearch index name is empty")
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Addr},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Backend{es: es, cfg: cfg, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (b *Backend) Ping(ctx context.Context) error {
	res, err := b.es.Ping(b.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

// Mapping renders the index body for the given analyzer and policy. Norms on
// the analyzed field are dropped when the policy ignores field length; the
// only length-sensitive policy the cluster can honour is similarity.Default.
func Mapping(cfg config.ElasticsearchConfig, a analysis.Analyzer, p similarity.Policy) (map[string]any, error) {
	properties := make(map[string]any, document.NumFields)
	for _, field := range document.AllFields() {
		rule := mapping.RuleFor(field)
		prop := map[string]any{"store": rule.Stored}
		switch rule.Treatment {
		case document.NotAnalyzedNoNorms:
			prop["type"] = "keyword"
			prop["norms"] = false
		case document.NotIndexed:
			prop["type"] = "keyword"
			prop["index"] = false
			prop["doc_values"] = false
		case document.Analyzed:
			prop["type"] = "text"
			prop["analyzer"] = a.Name()
			switch {
			case similarity.LengthInvariant(p, field):
				prop["norms"] = false
			case isDefault(p):
				prop["norms"] = true
			default:
				return nil, apperrors.Newf(apperrors.ErrConfig, apperrors.ExitUsage,
					"norm policy %T cannot be expressed as an elasticsearch mapping", p)
			}
		}
		properties[field.String()] = prop
	}
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   cfg.Shards,
			"number_of_replicas": cfg.Replicas,
		},
		"mappings": map[string]any{
			"dynamic":    "strict",
			"properties": properties,
		},
	}, nil
}

func isDefault(p similarity.Policy) bool {
	_, ok := p.(similarity.Default)
	return ok
}

// Configure creates the index with a mapping derived from a and p. An index
// that already exists is reused only if its mapping matches; otherwise
// Configure fails with ErrConfig rather than write into it.
func (b *Backend) Configure(a analysis.Analyzer, p similarity.Policy) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return apperrors.ErrClosed
	}
	if b.ready {
		return apperrors.ErrAlreadyConfigured
	}
	if a == nil {
		a = analysis.Simple{}
	}
	if p == nil {
		p = similarity.Default{}
	}
	body, err := Mapping(b.cfg, a, p)
	if err != nil {
		return err
	}
	ctx := context.Background()

	exists, err := b.indexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		mappings, _ := body["mappings"].(map[string]any)
		want, _ := mappings["properties"].(map[string]any)
		if err := b.checkMapping(ctx, want); err != nil {
			return err
		}
		b.log.Info("reusing existing index", slog.String("index", b.cfg.Index))
	} else {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal mapping: %w", err)
		}
		req := esapi.IndicesCreateRequest{
			Index: b.cfg.Index,
			Body:  bytes.NewReader(payload),
		}
		res, err := req.Do(ctx, b.es)
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(data)))
		}
		b.log.Info("index created",
			slog.String("index", b.cfg.Index),
			slog.String("analyzer", a.Name()),
		)
	}
	b.ready = true
	return nil
}

func (b *Backend) indexExists(ctx context.Context) (bool, error) {
	req := esapi.IndicesExistsRequest{Index: []string{b.cfg.Index}}
	res, err := req.Do(ctx, b.es)
	if err != nil {
		return false, fmt.Errorf("check index: %w", err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("check index failed: %s", res.Status())
	}
}

type indexMapping struct {
	Mappings struct {
		Properties map[string]map[string]any `json:"properties"`
	} `json:"mappings"`
}

// checkMapping compares the live mapping of the index with want, field by
// field.
func (b *Backend) checkMapping(ctx context.Context, want map[string]any) error {
	req := esapi.IndicesGetMappingRequest{Index: []string{b.cfg.Index}}
	res, err := req.Do(ctx, b.es)
	if err != nil {
		return fmt.Errorf("get mapping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("get mapping failed: %s", strings.TrimSpace(string(data)))
	}
	var byIndex map[string]indexMapping
	if err := json.NewDecoder(res.Body).Decode(&byIndex); err != nil {
		return fmt.Errorf("decode mapping: %w", err)
	}
	got, ok := byIndex[b.cfg.Index]
	if !ok && len(byIndex) == 1 {
		// The name was an alias; the response is keyed by the concrete index.
		for _, m := range byIndex {
			got = m
		}
	}
	if diff := mappingDiff(want, got.Mappings.Properties); diff != "" {
		return apperrors.Newf(apperrors.ErrConfig, apperrors.ExitUsage,
			"existing index %s has an incompatible mapping: %s", b.cfg.Index, diff)
	}
	return nil
}

var mappingParams = []string{"type", "analyzer", "norms", "index", "store", "doc_values"}

// mappingDiff describes the first difference between the wanted and the live
// field properties, or returns "" when they agree. The cluster leaves out
// parameters that are at their default, so both sides are compared with
// defaults filled in.
func mappingDiff(want map[string]any, got map[string]map[string]any) string {
	for _, field := range document.AllFields() {
		name := field.String()
		w, _ := want[name].(map[string]any)
		g, ok := got[name]
		if !ok {
			return fmt.Sprintf("field %s is missing", name)
		}
		for _, param := range mappingParams {
			if wv, gv := withDefault(w, param), withDefault(g, param); wv != gv {
				return fmt.Sprintf("field %s has %s=%v, want %v", name, param, gv, wv)
			}
		}
	}
	for name := range got {
		if _, ok := want[name]; !ok {
			return fmt.Sprintf("unexpected field %s", name)
		}
	}
	return ""
}

func withDefault(prop map[string]any, param string) any {
	if v, ok := prop[param]; ok {
		return v
	}
	text := prop["type"] == "text"
	switch param {
	case "analyzer":
		if text {
			return "standard"
		}
		return nil
	case "norms":
		return text
	case "index":
		return true
	case "store":
		return false
	case "doc_values":
		return !text
	}
	return nil
}

// Submit writes doc under its id field. Documents without an id get a
// random one.
func (b *Backend) Submit(ctx context.Context, doc document.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	closed, ready := b.closed, b.ready
	b.mu.Unlock()
	if closed {
		return apperrors.ErrClosed
	}
	if !ready {
		return apperrors.ErrNotConfigured
	}

	source := make(map[string]string, len(doc.Fields))
	for _, f := range doc.Fields {
		source[f.Name.String()] = f.Value
	}
	payload, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}
	id := source[document.ID.String()]
	if id == "" {
		id = uuid.NewString()
	}

	req := esapi.IndexRequest{
		Index:      b.cfg.Index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, b.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

// Consolidate refreshes the index and force-merges it down to one segment.
// Merging an already merged index is a no-op on the cluster side.
func (b *Backend) Consolidate(ctx context.Context) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return apperrors.ErrClosed
	}
	if err := b.refresh(ctx); err != nil {
		return err
	}
	one := 1
	req := esapi.IndicesForcemergeRequest{
		Index:          []string{b.cfg.Index},
		MaxNumSegments: &one,
	}
	res, err := req.Do(ctx, b.es)
	if err != nil {
		return fmt.Errorf("forcemerge: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("forcemerge failed: %s", strings.TrimSpace(string(data)))
	}
	b.log.Info("index force-merged", slog.String("index", b.cfg.Index))
	return nil
}

func (b *Backend) refresh(ctx context.Context) error {
	req := esapi.IndicesRefreshRequest{Index: []string{b.cfg.Index}}
	res, err := req.Do(ctx, b.es)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("refresh failed: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// Close marks the backend closed. The HTTP transport holds no per-build
// resources.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return apperrors.ErrClosed
	}
	b.closed = true
	return nil
}
