// Package xdbf reads XDBF containers, the sectioned big-endian profile format
// Xenia writes for each title (.gpd files).
package xdbf

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// Reader is a sequential big-endian cursor over an immutable byte slice.
// Every read either consumes exactly its width or fails without moving the cursor.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the current cursor position.
func (r *Reader) Offset() int {
	return r.off
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.off += n
	return nil
}

func (r *Reader) need(n int) error {
	if n < 0 || n > len(r.buf)-r.off {
		return fmt.Errorf("need %d bytes at offset %d of %d: %w", n, r.off, len(r.buf), ErrOutOfBounds)
	}
	return nil
}

// U16 reads a big-endian uint16.
func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

// U32 reads a big-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// U64 reads a big-endian uint64.
func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// UTF16StringZ reads UTF-16BE code units up to and including a zero unit.
// The terminator is consumed but not returned.
func (r *Reader) UTF16StringZ() (string, error) {
	start := r.off
	for i := start; ; i += 2 {
		if i+2 > len(r.buf) {
			return "", fmt.Errorf("string at offset %d: no terminator: %w", start, ErrMalformedString)
		}
		if r.buf[i] != 0 || r.buf[i+1] != 0 {
			continue
		}
		s, err := utf16BE.NewDecoder().Bytes(r.buf[start:i])
		if err != nil {
			return "", fmt.Errorf("string at offset %d: %v: %w", start, err, ErrMalformedString)
		}
		r.off = i + 2
		return string(s), nil
	}
}
