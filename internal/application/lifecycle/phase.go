package lifecycle

import "github.com/turtacn/keyvault/internal/domain/models"

// Phase is the position of a lifecycle operation in its pipeline.
// Phase 表示生命周期操作在流水线中的阶段。
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAcquiringKey
	PhaseAwaitingUnlock
	PhaseMutating
	PhaseSucceeded
	PhaseCancelledByUser
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAcquiringKey:
		return "acquiring_key"
	case PhaseAwaitingUnlock:
		return "awaiting_unlock"
	case PhaseMutating:
		return "mutating"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseCancelledByUser:
		return "cancelled"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether p ends the pipeline.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseCancelledByUser || p == PhaseFailed
}

// Outcome is the result of a mutating operation. A cancelled unlock is a
// normal outcome, not an error.
// Outcome 是变更操作的结果；用户取消解锁属于正常结果而非错误。
type Outcome struct {
	Operation   string             `json:"operation"`
	KeyringID   string             `json:"keyring_id"`
	Fingerprint models.Fingerprint `json:"fingerprint,omitempty"`
	Phase       Phase              `json:"-"`
	Status      string             `json:"status"`
}

// Cancelled reports whether the user dismissed the password prompt.
func (o Outcome) Cancelled() bool { return o.Phase == PhaseCancelledByUser }

// Succeeded reports whether the mutation was applied.
func (o Outcome) Succeeded() bool { return o.Phase == PhaseSucceeded }
