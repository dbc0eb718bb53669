package app

import (
	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
)

// Bus forwards relayed frames to other relay instances.
// Publish must not block; implementations queue and drop when saturated.
type Bus interface {
	Publish(room domain.RoomID, f core.Frame) error
}
