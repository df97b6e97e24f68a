package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	httpH "github.com/yungbote/sciencelab-batchserver/internal/http/handlers"
	"github.com/yungbote/sciencelab-batchserver/internal/observability"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
	"github.com/yungbote/sciencelab-batchserver/internal/services"
)

type stubBatches struct{ calls int }

func (s *stubBatches) NewBatch(context.Context, services.NewBatchRequest) (*services.BatchResponse, error) {
	s.calls++
	return &services.BatchResponse{BatchID: uuid.New()}, nil
}

func (s *stubBatches) UploadOutput(context.Context, int64, string, io.Reader) (*services.UploadResult, error) {
	s.calls++
	return &services.UploadResult{OutputID: 1}, nil
}

func (s *stubBatches) Cancel(_ context.Context, _ string, ids []int64) (int, error) {
	s.calls++
	return len(ids), nil
}

func newTestRouter(stub *stubBatches) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	return NewRouter(RouterConfig{
		Log:              log,
		Metrics:          observability.NewMetrics(),
		MinClientVersion: "GABClient/1.2.0",
		BatchHandler:     httpH.NewBatchHandler(log, stub),
		HealthHandler:    httpH.NewHealthHandler(nil),
	})
}

func TestRouterRoutes(t *testing.T) {
	stub := &stubBatches{}
	r := newTestRouter(stub)
	newQuery := "?batchSize=1&email=a@example.com&fullName=A&teamName=T&companyName=C&location=L&countryCode=ES"

	cases := []struct {
		method string
		target string
		body   string
		ua     string
		want   int
	}{
		{http.MethodGet, "/healthcheck", "", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", "", http.StatusOK},
		{http.MethodGet, "/batch/new" + newQuery, "", "GABClient/1.2.0", http.StatusOK},
		{http.MethodGet, "/api/Batch/GetNewBatch" + newQuery, "", "GABClient/2.0.0", http.StatusOK},
		{http.MethodGet, "/batch/new" + newQuery, "", "GABClient/1.0.0", http.StatusBadRequest},
		{http.MethodGet, "/api/Batch/GetNewBatch" + newQuery, "", "", http.StatusBadRequest},
		{http.MethodPost, "/batch/output?inputId=1&email=a@example.com", `{"lc":"x"}`, "", http.StatusOK},
		{http.MethodPost, "/api/Batch/UploadOutput?inputId=1&email=a@example.com", `{"lc":"x"}`, "", http.StatusOK},
		{http.MethodPost, "/batch/cancel?email=a@example.com", `[1]`, "", http.StatusOK},
		{http.MethodPost, "/api/Batch/CancelInputs?email=a@example.com", `[1]`, "", http.StatusOK},
	}
	for _, tc := range cases {
		var body io.Reader
		if tc.body != "" {
			body = strings.NewReader(tc.body)
		}
		req := httptest.NewRequest(tc.method, tc.target, body)
		if tc.ua != "" {
			req.Header.Set("User-Agent", tc.ua)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s %s (%s): want=%d got=%d body=%s", tc.method, tc.target, tc.ua, tc.want, rec.Code, rec.Body.String())
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s %s: missing request id header", tc.method, tc.target)
		}
	}
	if stub.calls != 6 {
		t.Fatalf("service calls: want=6 got=%d", stub.calls)
	}
}

func TestRouterRecoversPanics(t *testing.T) {
	r := newTestRouter(&stubBatches{})
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want=500 got=%d", rec.Code)
	}
}
