package dispatch

import (
	"context"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
)

// Loopback fabricates successful results without touching an executor.
// Used for dry runs: the simulation exercises its full decision path while
// no OS actions happen anywhere.
type Loopback struct{}

// Send implements the dispatcher contract with an immediate success.
func (Loopback) Send(_ context.Context, req domain.ActionRequest) domain.ActionResult {
	return domain.ActionResult{
		RequestID: req.ID,
		Success:   true,
		Duration:  time.Millisecond,
		Metadata:  map[string]string{"dry_run": "true"},
	}
}

// Close implements the dispatcher contract.
func (Loopback) Close() error { return nil }
