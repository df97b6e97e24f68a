package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/sciencelab-batchserver/internal/data/db"
	"github.com/yungbote/sciencelab-batchserver/internal/data/repos/testutil"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
	"github.com/yungbote/sciencelab-batchserver/internal/services"
)

func TestAppServesBatchOverSQLite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stubProviders(t)

	cfg := defaultConfig()
	cfg.Database.Driver = db.DriverSQLite
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "batchserver.db")
	cfg.Batch.TempDir = t.TempDir()
	cfg.Batch.MaxInputsPerClient = 5

	ctx := context.Background()
	a, err := NewWithConfig(ctx, logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer a.Close()
	if a.Clients.Stream != nil {
		t.Fatalf("stream publisher should be disabled without REDIS_ADDR")
	}

	testutil.SeedInputs(t, ctx, a.DB, 3)

	rec := httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthcheck: want=200 got=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	target := "/batch/new?batchSize=2&email=ada@example.com&fullName=Ada&teamName=T&companyName=C&location=L&countryCode=GB"
	a.Server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("new batch: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp services.BatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(resp.Inputs) != 2 || len(resp.Outputs) != 2 {
		t.Fatalf("batch size: want=2 got inputs=%d outputs=%d", len(resp.Inputs), len(resp.Outputs))
	}
	if want := "gcs/inputs/input1.txt"; resp.Inputs[0].StorageURI != want {
		t.Fatalf("storage uri: want=%s got=%s", want, resp.Inputs[0].StorageURI)
	}

	counts, err := a.sampleInputPool(ctx)
	if err != nil {
		t.Fatalf("sampleInputPool: %v", err)
	}
	if counts["ready"] != 1 || counts["assigned"] != 2 || counts["processed"] != 0 {
		t.Fatalf("pool counts: got %v", counts)
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	a.Start(ctx)
	_ = a.Shutdown(shutdownCtx)
}
