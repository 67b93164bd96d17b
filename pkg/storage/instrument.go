package storage

import (
	"context"
	"io"

	"github.com/cratehub/crate/pkg/observability"
)

// instrumentedBackend decorates a Backend with operation and error counters.
type instrumentedBackend struct {
	backend Backend
	metrics *observability.Metrics
}

// NewInstrumentedBackend wraps backend so every operation is counted in
// metrics. URLForKey is pure and stays uncounted.
func NewInstrumentedBackend(backend Backend, metrics *observability.Metrics) Backend {
	if metrics == nil {
		return backend
	}
	return &instrumentedBackend{backend: backend, metrics: metrics}
}

func (b *instrumentedBackend) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := b.backend.Exists(ctx, key)
	b.count("exists", err)
	return exists, err
}

func (b *instrumentedBackend) Upload(ctx context.Context, key string, content io.Reader) error {
	err := b.backend.Upload(ctx, key, content)
	b.count("upload", err)
	return err
}

func (b *instrumentedBackend) ListPrefix(ctx context.Context, prefix string) ([]Object, error) {
	objects, err := b.backend.ListPrefix(ctx, prefix)
	b.count("list_prefix", err)
	return objects, err
}

func (b *instrumentedBackend) URLForKey(key string) string {
	return b.backend.URLForKey(key)
}

func (b *instrumentedBackend) count(operation string, err error) {
	b.metrics.StorageOperationsTotal.WithLabelValues(operation).Inc()
	if err != nil {
		b.metrics.StorageErrorsTotal.WithLabelValues(operation).Inc()
	}
}
