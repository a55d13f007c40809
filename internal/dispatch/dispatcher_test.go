package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/worksim/internal/domain"
	"github.com/hochfrequenz/worksim/internal/protocol"
	"github.com/hochfrequenz/worksim/internal/retry"
)

// stubExecutor is an in-process executor endpoint. respond decides what to
// answer for each action; returning nil suppresses the response.
type stubExecutor struct {
	server  *httptest.Server
	hellos  atomic.Int64
	respond func(action protocol.ActionMessage) *protocol.ResultMessage
}

func newStubExecutor(t *testing.T, respond func(protocol.ActionMessage) *protocol.ResultMessage) *stubExecutor {
	t.Helper()
	stub := &stubExecutor{respond: respond}
	upgrader := websocket.Upgrader{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env protocol.EnvelopeRaw
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			switch env.Type {
			case protocol.TypeHello:
				stub.hellos.Add(1)
			case protocol.TypeAction:
				var action protocol.ActionMessage
				if err := json.Unmarshal(env.Payload, &action); err != nil {
					continue
				}
				res := stub.respond(action)
				if res == nil {
					continue
				}
				out, err := protocol.MarshalEnvelope(protocol.TypeResult, res)
				if err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *stubExecutor) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func echoSuccess(action protocol.ActionMessage) *protocol.ResultMessage {
	return &protocol.ResultMessage{
		ID:         action.ID,
		Success:    true,
		DurationMs: 12,
		Metadata:   map[string]string{"kind": action.Kind},
	}
}

func testDispatcher(t *testing.T, stub *stubExecutor) *Dispatcher {
	t.Helper()
	d, err := New(Config{
		URL:             stub.url(),
		WorkerID:        "test-worker",
		DialTimeout:     2 * time.Second,
		ResponseTimeout: 2 * time.Second,
		Reconnect:       retry.Policy{MaxAttempts: 2, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func testRequest(id string) domain.ActionRequest {
	return domain.ActionRequest{
		ID:          id,
		Kind:        domain.KindEmailCheck,
		Target:      "webmail",
		DurationMin: 5,
		Source:      domain.SourceFallback,
	}
}

func TestSendRoundTrip(t *testing.T) {
	stub := newStubExecutor(t, echoSuccess)
	d := testDispatcher(t, stub)

	res := d.Send(context.Background(), testRequest("rt-1"))
	if !res.Success {
		t.Fatalf("Send failed: %s", res.Error)
	}
	if res.RequestID != "rt-1" {
		t.Errorf("RequestID = %q, want %q", res.RequestID, "rt-1")
	}
	if res.Metadata["kind"] != string(domain.KindEmailCheck) {
		t.Errorf("Metadata[kind] = %q, want %q", res.Metadata["kind"], domain.KindEmailCheck)
	}
	if got := stub.hellos.Load(); got != 1 {
		t.Errorf("hello count = %d, want 1", got)
	}
}

func TestSendDialsOnDemand(t *testing.T) {
	stub := newStubExecutor(t, echoSuccess)
	d := testDispatcher(t, stub)

	// No Connect call; the first Send must establish the connection.
	res := d.Send(context.Background(), testRequest("lazy-1"))
	if !res.Success {
		t.Fatalf("Send without Connect failed: %s", res.Error)
	}
}

func TestSendReconnectsAfterClose(t *testing.T) {
	stub := newStubExecutor(t, echoSuccess)
	d := testDispatcher(t, stub)

	if res := d.Send(context.Background(), testRequest("rc-1")); !res.Success {
		t.Fatalf("first Send failed: %s", res.Error)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if res := d.Send(context.Background(), testRequest("rc-2")); !res.Success {
		t.Fatalf("Send after Close failed: %s", res.Error)
	}
	if got := stub.hellos.Load(); got != 2 {
		t.Errorf("hello count = %d, want 2 (one per connection)", got)
	}
}

func TestSendRejectsMismatchedResultID(t *testing.T) {
	stub := newStubExecutor(t, func(action protocol.ActionMessage) *protocol.ResultMessage {
		res := echoSuccess(action)
		res.ID = "someone-else"
		return res
	})
	d := testDispatcher(t, stub)

	res := d.Send(context.Background(), testRequest("mm-1"))
	if res.Success {
		t.Fatal("mismatched result id should fail the request")
	}
	if res.RequestID != "mm-1" {
		t.Errorf("RequestID = %q, want %q", res.RequestID, "mm-1")
	}
	if !strings.Contains(res.Error, "does not match") {
		t.Errorf("error = %q, want id mismatch detail", res.Error)
	}
}

func TestSendTimesOutWithoutResponse(t *testing.T) {
	stub := newStubExecutor(t, func(protocol.ActionMessage) *protocol.ResultMessage {
		return nil // swallow the action
	})
	d, err := New(Config{
		URL:             stub.url(),
		WorkerID:        "test-worker",
		ResponseTimeout: 200 * time.Millisecond,
		Reconnect:       retry.Policy{MaxAttempts: 1, BaseDelay: 10 * time.Millisecond, MaxDelay: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	res := d.Send(context.Background(), testRequest("to-1"))
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(res.Error, "no response within") {
		t.Errorf("error = %q, want response timeout detail", res.Error)
	}
}

func TestSendTimeoutSkipsShellFallback(t *testing.T) {
	var delivered atomic.Int64
	stub := newStubExecutor(t, func(protocol.ActionMessage) *protocol.ResultMessage {
		delivered.Add(1)
		return nil // accept the action, never answer
	})
	d, err := New(Config{
		URL:             stub.url(),
		WorkerID:        "test-worker",
		ResponseTimeout: 200 * time.Millisecond,
		Reconnect:       retry.Policy{MaxAttempts: 1, BaseDelay: 10 * time.Millisecond, MaxDelay: 10 * time.Millisecond},
		Shell:           &ShellConfig{Host: "127.0.0.1", Port: 1, Timeout: time.Second},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	// The executor received the action and may still be running it, so
	// an unanswered request must fail without a second delivery attempt.
	res := d.Send(context.Background(), testRequest("once-1"))
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(res.Error, "no response within") {
		t.Errorf("error = %q, want response timeout detail", res.Error)
	}
	if strings.Contains(res.Error, "shell") {
		t.Errorf("shell fallback attempted for a delivered request: %s", res.Error)
	}
	if got := delivered.Load(); got != 1 {
		t.Errorf("deliveries = %d, want exactly 1", got)
	}
}

func TestSendAnswersPingWhileAwaitingResult(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var pendingID string
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env protocol.EnvelopeRaw
			if json.Unmarshal(data, &env) != nil {
				continue
			}
			switch env.Type {
			case protocol.TypeAction:
				var action protocol.ActionMessage
				if json.Unmarshal(env.Payload, &action) != nil {
					continue
				}
				// Ping mid-action; the result only follows the pong.
				pendingID = action.ID
				ping, _ := protocol.MarshalEnvelope(protocol.TypePing, nil)
				conn.WriteMessage(websocket.TextMessage, ping)
			case protocol.TypePong:
				out, _ := protocol.MarshalEnvelope(protocol.TypeResult, &protocol.ResultMessage{ID: pendingID, Success: true})
				conn.WriteMessage(websocket.TextMessage, out)
			}
		}
	}))
	defer srv.Close()

	d, err := New(Config{
		URL:             "ws" + strings.TrimPrefix(srv.URL, "http"),
		WorkerID:        "test-worker",
		ResponseTimeout: 2 * time.Second,
		Reconnect:       retry.Policy{MaxAttempts: 1, BaseDelay: 10 * time.Millisecond, MaxDelay: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	res := d.Send(context.Background(), testRequest("ping-1"))
	if !res.Success {
		t.Fatalf("Send failed: %s", res.Error)
	}
	if res.RequestID != "ping-1" {
		t.Errorf("RequestID = %q, want %q", res.RequestID, "ping-1")
	}
}

func TestSendFailsWhenExecutorUnreachable(t *testing.T) {
	d, err := New(Config{
		URL:             "ws://127.0.0.1:1/ws",
		WorkerID:        "test-worker",
		DialTimeout:     200 * time.Millisecond,
		ResponseTimeout: time.Second,
		Reconnect:       retry.Policy{MaxAttempts: 2, BaseDelay: 10 * time.Millisecond, MaxDelay: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	res := d.Send(context.Background(), testRequest("down-1"))
	if res.Success {
		t.Fatal("expected failure with no executor listening")
	}
	if res.RequestID != "down-1" {
		t.Errorf("RequestID = %q, want %q", res.RequestID, "down-1")
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("empty config should be rejected")
	}
	if _, err := New(Config{WorkerID: "w1"}); err == nil {
		t.Error("config without url should be rejected")
	}
	if _, err := New(Config{URL: "ws://localhost:9090/ws", WorkerID: "w1"}); err != nil {
		t.Errorf("minimal config rejected: %v", err)
	}
}

func TestLoopbackSend(t *testing.T) {
	res := Loopback{}.Send(context.Background(), testRequest("dry-1"))
	if !res.Success {
		t.Fatalf("loopback failed: %s", res.Error)
	}
	if res.RequestID != "dry-1" {
		t.Errorf("RequestID = %q, want %q", res.RequestID, "dry-1")
	}
	if res.Metadata["dry_run"] != "true" {
		t.Errorf("Metadata[dry_run] = %q, want true", res.Metadata["dry_run"])
	}
}
