package engine

import (
	"context"

	"github.com/opsgate/opsgate/internal/model"
)

// Approver is the interactive approval capability injected by the
// presentation layer. The engine treats it as synchronous; cancellation is
// driven through ctx. Implementations render the description and preview to
// a human however they like.
type Approver interface {
	Approve(ctx context.Context, description, preview string) (model.Verdict, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, description, preview string) (model.Verdict, error)

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context, description, preview string) (model.Verdict, error) {
	return f(ctx, description, preview)
}
