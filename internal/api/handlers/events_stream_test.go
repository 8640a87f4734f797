package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/automakerhq/automaker/internal/events"
)

// frameRecorder wraps a ResponseRecorder so the test can wait for writes
// made from the handler goroutine without racing on the body buffer.
type frameRecorder struct {
	*httptest.ResponseRecorder
	mu     sync.Mutex
	frames chan struct{}
}

func newFrameRecorder() *frameRecorder {
	return &frameRecorder{
		ResponseRecorder: httptest.NewRecorder(),
		frames:           make(chan struct{}, 100),
	}
}

func (r *frameRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.ResponseRecorder.Write(p)
	select {
	case r.frames <- struct{}{}:
	default:
	}
	return n, err
}

func (r *frameRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Body.String()
}

func (r *frameRecorder) awaitFrame(t *testing.T) {
	t.Helper()
	select {
	case <-r.frames:
	case <-time.After(5 * time.Second):
		t.Fatal("no SSE frame was written")
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	broker := events.NewBroker(nil)
	h := NewEventStreamHandler(broker, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/deployment/events", nil).WithContext(ctx)
	rec := newFrameRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Stream(rec, req)
	}()

	// Wait for the handler to subscribe, then publish through the broker
	// like the orchestrator would.
	waitSubscribers(t, broker, 1)
	broker.Publish(events.New(events.TypeDeploymentStarted, "deploy-1", &events.Data{
		Status: "building",
	}))

	rec.awaitFrame(t)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after client disconnect")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", ct)
	}
	body := rec.body()
	if !strings.Contains(body, "event: deployment_started\n") {
		t.Errorf("expected SSE event frame, got %q", body)
	}
	if !strings.Contains(body, `"deploymentId":"deploy-1"`) {
		t.Errorf("expected event payload, got %q", body)
	}

	if broker.SubscriberCount() != 0 {
		t.Errorf("expected subscriber removed on close, got %d", broker.SubscriberCount())
	}
}

func TestStreamFiltersByDeploymentID(t *testing.T) {
	broker := events.NewBroker(nil)
	h := NewEventStreamHandler(broker, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/deployment/events?deployment_id=deploy-2", nil).WithContext(ctx)
	rec := newFrameRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Stream(rec, req)
	}()

	waitSubscribers(t, broker, 1)
	broker.Publish(events.New(events.TypeDeploymentStarted, "deploy-1", nil))
	broker.Publish(events.New(events.TypeDeploymentStarted, "deploy-2", nil))

	rec.awaitFrame(t)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after client disconnect")
	}

	body := rec.body()
	if !strings.Contains(body, "deploy-2") {
		t.Errorf("expected matching event delivered, got %q", body)
	}
	if strings.Contains(body, "deploy-1") {
		t.Errorf("expected events for other deployments to be filtered, got %q", body)
	}
}

func waitSubscribers(t *testing.T, broker *events.Broker, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if broker.SubscriberCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never reached %d subscribers", n)
}
