package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsgate/opsgate/internal/model"
)

// defaultPollInterval is how often the waiting side re-reads the store.
const defaultPollInterval = 500 * time.Millisecond

// Approver satisfies the engine's approval port by filing a request in the
// store and polling until a human resolves it out-of-band (another terminal
// running `opsgate approve <key>`). Cancellation or expiry resolves to deny:
// there is no approved-by-default-on-timeout path.
type Approver struct {
	store        *Store
	ttl          time.Duration
	pollInterval time.Duration

	// Notify, when set, is called with the key of each filed request so
	// the caller can surface it (stderr message, MCP tool response).
	Notify func(key string, r Request)
}

// NewApprover creates a store-backed approver. ttl bounds how long a filed
// request stays answerable; zero means no expiry.
func NewApprover(store *Store, ttl time.Duration) *Approver {
	return &Approver{store: store, ttl: ttl, pollInterval: defaultPollInterval}
}

// Approve implements engine.Approver.
func (a *Approver) Approve(ctx context.Context, description, preview string) (model.Verdict, error) {
	key := "req-" + uuid.NewString()
	if err := a.store.Submit(key, "", description, preview, a.ttl); err != nil {
		return model.VerdictDeny, err
	}
	defer a.store.Remove(key)

	if a.Notify != nil {
		if r, err := a.store.read(key); err == nil {
			a.Notify(key, *r)
		}
	}

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return model.VerdictDeny, ctx.Err()
		case <-ticker.C:
			status, err := a.store.Check(key)
			if err != nil {
				return model.VerdictDeny, err
			}
			switch status {
			case StatusApproved:
				return model.VerdictApprove, nil
			case StatusDenied:
				return model.VerdictDeny, nil
			case StatusDeniedAndBlacklist:
				return model.VerdictDenyAndBlacklist, nil
			case StatusExpired:
				return model.VerdictDeny, fmt.Errorf("approval request %s expired", key)
			}
			// still pending
		}
	}
}
