package track

import (
	"errors"
	"fmt"
)

// ErrPayloadSize is the sentinel all PayloadSizeError values wrap.
var ErrPayloadSize = errors.New("payload smaller than label implies")

// ErrPayloadMissing is returned when a track's binary payload file is
// absent, for instance after a derivation run purged it.
var ErrPayloadMissing = errors.New("payload file missing")

// PayloadSizeError reports a binary payload file smaller than the byte
// ranges the label's pointer statements imply.
type PayloadSizeError struct {
	Path string
	Have int64
	Need int64
}

func (e *PayloadSizeError) Error() string {
	return fmt.Sprintf("payload %s is %d bytes, label implies at least %d",
		e.Path, e.Have, e.Need)
}

func (e *PayloadSizeError) Unwrap() error {
	return ErrPayloadSize
}
