package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/brokerbot/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func adminRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	logger := zerolog.New(buf).Level(zerolog.DebugLevel)
	r.Use(AdminAccessLog(logger, "bot-abc123"), AdminMetrics())
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/status", func(c *gin.Context) { c.String(http.StatusOK, "{}") })
	return r
}

func serve(r http.Handler, path string) int {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestAdminAccessLogLevels(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	r := adminRouter(&buf)

	serve(r, "/health")
	if buf.Len() != 0 {
		t.Fatalf("health poll should log at trace only: %s", buf.String())
	}

	serve(r, "/status")
	out := buf.String()
	if !strings.Contains(out, `"level":"debug"`) || !strings.Contains(out, `"bot":"bot-abc123"`) || !strings.Contains(out, `"route":"/status"`) {
		t.Fatalf("unexpected status line: %s", out)
	}

	buf.Reset()
	if code := serve(r, "/nope/123"); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	out = buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, `"route":"unmatched"`) {
		t.Fatalf("unexpected unmatched line: %s", out)
	}
}

func TestAdminMetricsBoundsRouteLabels(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	var buf bytes.Buffer
	r := adminRouter(&buf)

	unmatched := httpRequests.WithLabelValues(http.MethodGet, UnmatchedRoute, "404")
	before := testutil.ToFloat64(unmatched)
	serve(r, "/a")
	serve(r, "/b/c")
	if got := testutil.ToFloat64(unmatched); got != before+2 {
		t.Fatalf("unmatched counter before=%v after=%v", before, got)
	}
	if n := testutil.CollectAndCount(httpRequests, "brokerbot_http_requests_total"); n == 0 {
		t.Fatalf("expected http request series")
	}
	status := httpRequests.WithLabelValues(http.MethodGet, "/status", "200")
	before = testutil.ToFloat64(status)
	serve(r, "/status")
	if got := testutil.ToFloat64(status); got != before+1 {
		t.Fatalf("status counter before=%v after=%v", before, got)
	}
}
