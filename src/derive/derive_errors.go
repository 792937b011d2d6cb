package derive

import "errors"

// ErrSourceUnavailable is returned when a derivation is requested for a
// track whose original files cannot be resolved.
var ErrSourceUnavailable = errors.New("original track files unavailable")

// ErrWriteFailure is returned when a derived file could not be
// persisted. A failed write never leaves a partial derived file behind.
var ErrWriteFailure = errors.New("derived file persistence failed")

// ErrUnknownKind is returned for a derivation kind outside the known
// set.
var ErrUnknownKind = errors.New("unknown derivation kind")
