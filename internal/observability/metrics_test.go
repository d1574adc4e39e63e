package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"scenecast/internal/render"
)

func TestMetricsFollowJob(t *testing.T) {
	m := New()

	m.StageEntered(render.StagePreparing)
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("in flight = %v", got)
	}
	m.StageFinished(render.StagePreparing, time.Millisecond, nil)
	m.StageEntered(render.StageCapturing)
	for range 3 {
		m.FrameCaptured()
	}
	m.StageFinished(render.StageCapturing, time.Second, nil)
	m.JobFinished(render.StageComplete, nil)

	if got := testutil.ToFloat64(m.frames); got != 3 {
		t.Errorf("frames = %v", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Errorf("in flight = %v", got)
	}
	if got := testutil.ToFloat64(m.jobs.WithLabelValues("success", "complete", "")); got != 1 {
		t.Errorf("successful jobs = %v", got)
	}
	if n := testutil.CollectAndCount(m.stageDuration); n != 2 {
		t.Errorf("stage series = %d", n)
	}
}

func TestMetricsFailure(t *testing.T) {
	m := New()
	// Rejected before a workspace was taken.
	m.JobFinished(render.StageCreated, errors.New("bad request"))
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Errorf("in flight = %v", got)
	}

	m.StageEntered(render.StagePreparing)
	m.JobFinished(render.StageCapturing, &render.CaptureError{Frame: 4, Err: errors.New("boom")})
	if got := testutil.ToFloat64(m.jobs.WithLabelValues("failure", "capturing", "CAPTURE_FAILED")); got != 1 {
		t.Errorf("capture failures = %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.FrameCaptured()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "scenecast_frames_captured_total 1") {
		t.Errorf("exposition misses frame counter:\n%s", body)
	}
}

func TestObserveHTTP(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/renders/{renderId}", 200, 5*time.Millisecond)
	m.ObserveHTTP("GET", "/renders/{renderId}", 404, time.Millisecond)
	m.ObserveHTTP("GET", "/renders/{renderId}", 200, time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/renders/{renderId}", "200")); got != 2 {
		t.Errorf("200 requests = %v", got)
	}
	if n := testutil.CollectAndCount(m.httpRequests); n != 2 {
		t.Errorf("request series = %d, want 2", n)
	}
}
