// Package computeruse defines the port for executing desktop actions.
package computeruse

import (
	"context"

	"github.com/bytebot-ai/bytebot/internal/domain/computer"
)

// Driver executes a single desktop automation action. The agent service
// talks to a remote bytebotd through an HTTP implementation; bytebotd
// itself uses the local xdotool implementation.
type Driver interface {
	Execute(ctx context.Context, action computer.Action) (*computer.Result, error)
}
