package engine

import "errors"

// ErrStopped is the failure reported for actions dispatched after Stop.
var ErrStopped = errors.New("engine stopped")
