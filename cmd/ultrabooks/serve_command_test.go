package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/internal/health"
	"github.com/ultrabooks/ultrabooks/internal/pipeline"
	"github.com/ultrabooks/ultrabooks/internal/storage"
)

func TestRegisterHealthChecks(t *testing.T) {
	adapter, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalAdapter() error = %v", err)
	}

	t.Run("Storage only", func(t *testing.T) {
		h := health.NewHandler("test", zap.NewNop())
		registerHealthChecks(h, adapter, nil, 1)

		resp := h.RunChecks(context.Background())
		if resp.Status != health.StatusHealthy {
			t.Errorf("Status = %s, want healthy", resp.Status)
		}
		if _, ok := resp.Checks["thumbnails"]; ok {
			t.Error("thumbnails check registered without a pool")
		}
	})

	t.Run("Full thumbnail queue", func(t *testing.T) {
		thumbnailer := pipeline.NewThumbnailer(book.NewRepository(adapter), 64, 0)
		pool := pipeline.NewPool(thumbnailer, 1, 1, zap.NewNop())
		if err := pool.Enqueue("b1", "image/png"); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}

		h := health.NewHandler("test", zap.NewNop())
		registerHealthChecks(h, adapter, pool, 1)

		resp := h.RunChecks(context.Background())
		if resp.Status != health.StatusDegraded {
			t.Errorf("Status = %s, want degraded", resp.Status)
		}
		if resp.Checks["thumbnails"].Status != health.StatusDegraded {
			t.Errorf("thumbnails check = %+v", resp.Checks["thumbnails"])
		}
	})
}
