// Package dispatch delivers action requests to the remote executor and
// reconciles their results. The primary transport is a persistent WebSocket
// connection with exactly one request in flight at a time; a remote-shell
// channel serves as per-request fallback when the primary is exhausted.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/worksim/internal/domain"
	"github.com/hochfrequenz/worksim/internal/protocol"
	"github.com/hochfrequenz/worksim/internal/retry"
)

// writeWait is time allowed to write a message to the executor.
const writeWait = 10 * time.Second

// errNoResponse marks a request the executor accepted but never answered.
// The action may still be running remotely, so this failure class must not
// trigger a second delivery attempt on any channel.
var errNoResponse = errors.New("executor accepted the request but sent no result")

// Config configures the dispatcher.
type Config struct {
	URL             string // ws://host:port/ws
	WorkerID        string
	DialTimeout     time.Duration
	ResponseTimeout time.Duration // bound on waiting for an action result
	Reconnect       retry.Policy
	Shell           *ShellConfig // nil disables the secondary transport
}

// Validate checks the config is usable.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("executor url is required")
	}
	if c.WorkerID == "" {
		return fmt.Errorf("worker id is required")
	}
	return nil
}

// Dispatcher owns the connection to one executor. Send never surfaces
// transport errors to the caller: ordinary network flakiness degrades into
// failed ActionResults, not exceptions.
type Dispatcher struct {
	cfg   Config
	shell *ShellRunner

	mu   sync.Mutex // serializes Send and guards conn
	conn *websocket.Conn
}

// New creates a dispatcher. Call Connect before the first Send to surface
// startup connectivity problems early; Send will also dial on demand.
func New(cfg Config) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = 2 * time.Minute
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect = retry.Default()
	}

	d := &Dispatcher{cfg: cfg}
	if cfg.Shell != nil {
		d.shell = NewShellRunner(*cfg.Shell)
	}
	return d, nil
}

// Connect establishes the primary connection.
func (d *Dispatcher) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialLocked(ctx)
}

// Close tears down the primary connection.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropLocked()
	return nil
}

// Send delivers one request and blocks until a result is available. The
// returned result always carries the request's id; on transport or protocol
// failure it is a failed result with the error detail populated.
func (d *Dispatcher) Send(ctx context.Context, req domain.ActionRequest) domain.ActionResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.sendPrimaryLocked(ctx, req)
	if err == nil {
		return res
	}
	log.Printf("primary dispatch of %s failed: %v", req.ID, err)

	// The request was delivered; re-sending it over the shell would risk
	// executing the action twice. Only undelivered requests fall back.
	if errors.Is(err, errNoResponse) {
		return domain.FailedResult(req.ID, err.Error())
	}

	if d.shell != nil {
		res, shellErr := d.shell.Run(ctx, req)
		if shellErr == nil {
			return res
		}
		log.Printf("shell fallback for %s failed: %v", req.ID, shellErr)
		return domain.FailedResult(req.ID, fmt.Sprintf("primary: %v; shell fallback: %v", err, shellErr))
	}

	return domain.FailedResult(req.ID, err.Error())
}

// sendPrimaryLocked runs one request/response cycle over the WebSocket
// connection, dialing or redialing as needed.
func (d *Dispatcher) sendPrimaryLocked(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	if d.conn == nil {
		if err := d.redialLocked(ctx); err != nil {
			return domain.ActionResult{}, fmt.Errorf("connect: %w", err)
		}
	}

	if err := d.writeActionLocked(req); err != nil {
		// A long-idle connection may have dropped; one redial cycle
		// before giving the request up to the fallback path.
		log.Printf("write on stale connection failed: %v, redialing", err)
		d.dropLocked()
		if err := d.redialLocked(ctx); err != nil {
			return domain.ActionResult{}, fmt.Errorf("reconnect: %w", err)
		}
		if err := d.writeActionLocked(req); err != nil {
			d.dropLocked()
			return domain.ActionResult{}, fmt.Errorf("write: %w", err)
		}
	}

	return d.awaitResultLocked(req)
}

func (d *Dispatcher) writeActionLocked(req domain.ActionRequest) error {
	data, err := protocol.MarshalEnvelope(protocol.TypeAction, protocol.FromRequest(req))
	if err != nil {
		return err
	}
	d.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return d.conn.WriteMessage(websocket.TextMessage, data)
}

// awaitResultLocked waits for the result frame matching req. A timeout or a
// mismatched id closes the connection so the next request starts clean.
func (d *Dispatcher) awaitResultLocked(req domain.ActionRequest) (domain.ActionResult, error) {
	deadline := time.Now().Add(d.cfg.ResponseTimeout)
	d.conn.SetReadDeadline(deadline)

	for {
		_, message, err := d.conn.ReadMessage()
		if err != nil {
			d.dropLocked()
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return domain.ActionResult{}, fmt.Errorf("no response within %v: %w", d.cfg.ResponseTimeout, errNoResponse)
			}
			return domain.ActionResult{}, fmt.Errorf("read: %w", err)
		}

		var env protocol.EnvelopeRaw
		if err := json.Unmarshal(message, &env); err != nil {
			d.dropLocked()
			return domain.ActionResult{}, fmt.Errorf("unparsable response: %w", err)
		}

		switch env.Type {
		case protocol.TypeResult:
			var res protocol.ResultMessage
			if err := json.Unmarshal(env.Payload, &res); err != nil {
				d.dropLocked()
				return domain.ActionResult{}, fmt.Errorf("invalid result payload: %w", err)
			}
			if res.ID != req.ID {
				d.dropLocked()
				return domain.ActionResult{}, fmt.Errorf("response id %s does not match request %s", res.ID, req.ID)
			}
			return res.ToResult(), nil

		case protocol.TypePing:
			// Executor liveness probe during a long action.
			if pong, err := protocol.MarshalEnvelope(protocol.TypePong, nil); err == nil {
				d.conn.SetWriteDeadline(time.Now().Add(writeWait))
				d.conn.WriteMessage(websocket.TextMessage, pong)
			}

		default:
			log.Printf("ignoring unexpected %s frame while awaiting result", env.Type)
		}
	}
}

// redialLocked dials with the bounded backoff policy and re-sends the hello.
func (d *Dispatcher) redialLocked(ctx context.Context) error {
	return d.cfg.Reconnect.Do(ctx, func() error {
		dialer := websocket.Dialer{HandshakeTimeout: d.cfg.DialTimeout}
		conn, _, err := dialer.DialContext(ctx, d.cfg.URL, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", d.cfg.URL, err)
		}

		hello, err := protocol.MarshalEnvelope(protocol.TypeHello, protocol.HelloMessage{WorkerID: d.cfg.WorkerID})
		if err != nil {
			conn.Close()
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
			conn.Close()
			return fmt.Errorf("hello: %w", err)
		}

		d.conn = conn
		log.Printf("connected to executor at %s", d.cfg.URL)
		return nil
	})
}

func (d *Dispatcher) dialLocked(ctx context.Context) error {
	if d.conn != nil {
		return nil
	}
	return d.redialLocked(ctx)
}

func (d *Dispatcher) dropLocked() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}
