package storage

import "errors"

// ErrNotFound reports a missing row: a user with no recorded activity, or a
// push endpoint that was never subscribed (or was already pruned).
var ErrNotFound = errors.New("storage: not found")
