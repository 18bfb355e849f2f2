package pipeline

import "errors"

var (
	// ErrProviderUnavailable aborts an event when generation fails or times
	// out. No reply or draft is produced and the claim is released.
	ErrProviderUnavailable = errors.New("pipeline: provider unavailable")
	// ErrPersistenceFailed aborts an event when a required write fails. The
	// claim is released so the event is re-claimable.
	ErrPersistenceFailed = errors.New("pipeline: persistence failed")
	// ErrDeliveryFailed is logged only; decisions and writes already made stand.
	ErrDeliveryFailed = errors.New("pipeline: delivery failed")
)

// Retryable reports whether err left the event re-claimable, so the queue
// message should be kept for redelivery.
func Retryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrPersistenceFailed)
}
