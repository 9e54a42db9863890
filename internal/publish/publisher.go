// Package publish contains the protocol publisher adapters: translators
// from generic change events to wire-level publishes on the message broker,
// the building-automation control bus, and the realtime push channel.
package publish

import (
	"context"

	"github.com/snapzone/snapzone/internal/models"
)

// Publisher is the common adapter contract. Publish translates one change
// event into zero or more protocol writes. Errors are adapter-local: the
// integration coordinator counts and logs them without propagating.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev models.ChangeEvent) error
}
