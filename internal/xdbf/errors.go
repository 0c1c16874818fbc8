package xdbf

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when a read would run past the end of the buffer.
	ErrOutOfBounds = errors.New("xdbf: read out of bounds")

	// ErrMalformedString is returned when a UTF-16 string has no terminator.
	ErrMalformedString = errors.New("xdbf: malformed string")

	// ErrMalformedContainer is returned for any structural defect in a container.
	// Decoding is all-or-nothing, so callers only need to check for this one.
	ErrMalformedContainer = errors.New("xdbf: malformed container")

	// ErrBadMagic is returned when the header tag is not "XDBF".
	ErrBadMagic = fmt.Errorf("%w: bad magic", ErrMalformedContainer)

	// ErrTruncatedContainer is returned when an entry payload lies past the end of the file.
	ErrTruncatedContainer = fmt.Errorf("%w: truncated", ErrMalformedContainer)

	// ErrInvalidFiletime is returned for FILETIME values outside the signed 64-bit range.
	ErrInvalidFiletime = errors.New("xdbf: invalid filetime")
)
