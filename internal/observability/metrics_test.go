package observability

import (
	"testing"
	"time"

	"github.com/danmuck/brokerbot/internal/logging"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
	RecordExchange("publish", OutcomeOK, 3*time.Millisecond)
	RecordReplyStatus("login", "")
	RecordCycle()
	RecordChannelCreated()
	RecordPublish(OutcomeTransportError)
	RecordProbeDelivery(true)

	logging.Logf("observability/metrics: registration idempotent and recording paths executed")
}

func TestClockGaugeTracksValue(t *testing.T) {
	SetClock(41)
	if got := testutil.ToFloat64(logicalClock); got != 41 {
		t.Fatalf("clock gauge got=%v", got)
	}
	before := testutil.ToFloat64(exchanges.WithLabelValues("channels", OutcomeDecodeError))
	RecordExchange("channels", OutcomeDecodeError, time.Millisecond)
	after := testutil.ToFloat64(exchanges.WithLabelValues("channels", OutcomeDecodeError))
	if after != before+1 {
		t.Fatalf("exchange counter before=%v after=%v", before, after)
	}
}
