// Package transport sends one signed mint call to the remote ledger and
// classifies the result. Classification is the contract everything else
// leans on: it alone decides retry eligibility. The transport never
// retries internally.
package transport

import (
	"context"

	"github.com/nftops/mintbatch/internal/model"
)

// Transport sends exactly one signed request per Call and returns the
// classified outcome. Implementations are stateless and safe for
// concurrent use.
type Transport interface {
	Call(ctx context.Context, req model.MintRequest) model.CallOutcome
}

// Preflighter is implemented by transports that can cheaply confirm the
// remote ledger is reachable and the operator can pay for mints, before
// any entry is dispatched.
type Preflighter interface {
	Preflight(ctx context.Context) error
}
