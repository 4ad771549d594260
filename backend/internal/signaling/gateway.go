package signaling

import (
	"context"

	"github.com/morichikawa/echa25/internal/protocol"
)

// Gateway delivers outbound envelopes to connections by id. Post returns
// ErrGone when the connection has permanently disappeared.
type Gateway interface {
	Post(ctx context.Context, connectionID string, msg protocol.Outbound) error
}
