package replication

import (
	"context"

	"github.com/iudanet/docsync/pkg/api"
)

//go:generate moq -out transport_mock.go . Transport

// Transport канал до DataGate.
// Send и Receive могут блокироваться на сети; блокировки CRDT и журнала
// во время этих вызовов не удерживаются.
type Transport interface {
	Send(ctx context.Context, env *api.Envelope) error
	Receive(ctx context.Context) (*api.Envelope, error)
	Close() error
}
