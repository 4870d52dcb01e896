package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ragnar-ai/ragnar/internal/rag"
)

// StorePinger probes a vector store by asking for its chunk count. A store
// that cannot be counted — or one with zero chunks — is not ready to serve
// retrieval requests.
type StorePinger struct {
	// store is the vector store to probe.
	store rag.VectorStore
	// name identifies the store in readiness responses (e.g. "index").
	name string
}

// NewStorePinger constructs a StorePinger for the given store and label.
func NewStorePinger(store rag.VectorStore, name string) *StorePinger {
	return &StorePinger{store: store, name: name}
}

// Name returns the store label used in readiness responses.
func (p *StorePinger) Name() string { return p.name }

// Ping counts the stored chunks. Returns an error when the store is
// unreachable or empty.
func (p *StorePinger) Ping(ctx context.Context) error {
	n, err := p.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store is empty — run `ragnar index` first")
	}
	return nil
}

// OllamaPinger probes a local Ollama instance with a zero-cost HTTP request
// to its version endpoint. No model is invoked and no tokens are consumed.
type OllamaPinger struct {
	// host is the Ollama base URL.
	host string
	// client is the HTTP client used for the probe.
	client *http.Client
}

// NewOllamaPinger constructs an OllamaPinger for the given base URL.
func NewOllamaPinger(host string) *OllamaPinger {
	return &OllamaPinger{host: host, client: &http.Client{}}
}

// Name returns the backend label used in readiness responses.
func (p *OllamaPinger) Name() string { return "ollama" }

// Ping issues a GET to the Ollama version endpoint.
func (p *OllamaPinger) Ping(ctx context.Context) error {
	u, err := url.JoinPath(p.host, "/api/version")
	if err != nil {
		return fmt.Errorf("bad host: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
