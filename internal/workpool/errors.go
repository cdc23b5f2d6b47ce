package workpool

import "errors"

var (
	errTimeout       = errors.New("workpool: submission timed out waiting for completion")
	errStopped       = errors.New("workpool: pool stopped before item executed")
	errQueueFull     = errors.New("workpool: queue at capacity")
	errPoolStopped   = errors.New("workpool: pool is stopped")
)

func errForSubmitResult(r SubmitResult) error {
	switch r {
	case SubmitQueueFull:
		return errQueueFull
	case SubmitStopped:
		return errPoolStopped
	default:
		return nil
	}
}
