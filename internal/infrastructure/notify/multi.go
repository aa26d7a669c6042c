package notify

import (
	"context"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/service"
)

// Multi forwards each event to every notifier in order.
type Multi []service.ChangeNotifier

var _ service.ChangeNotifier = Multi(nil)

// NewMulti drops nil entries.
func NewMulti(notifiers ...service.ChangeNotifier) Multi {
	out := make(Multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m Multi) NotifyKeysChanged(ctx context.Context, event models.KeysChangedEvent) {
	for _, n := range m {
		n.NotifyKeysChanged(ctx, event)
	}
}
