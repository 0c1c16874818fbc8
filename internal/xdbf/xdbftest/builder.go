// Package xdbftest builds synthetic XDBF containers for tests.
package xdbftest

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"

	"github.com/ramonehamilton/achievement-sync/internal/xdbf"
)

// Entry is one resource to place in a built container.
type Entry struct {
	Section xdbf.Section
	ID      uint64
	Payload []byte
}

// Builder assembles a container. The zero value is ready to use.
type Builder struct {
	Entries []Entry

	// Magic overrides the header tag when non-zero.
	Magic uint32
	// EntryCount overrides the declared table capacity when non-zero.
	EntryCount uint32
}

// Add appends an entry and returns the builder.
func (b *Builder) Add(section xdbf.Section, id uint64, payload []byte) *Builder {
	b.Entries = append(b.Entries, Entry{Section: section, ID: id, Payload: payload})
	return b
}

// Bytes lays out header, entry table, free-table padding and data region.
func (b *Builder) Bytes() []byte {
	magic := b.Magic
	if magic == 0 {
		magic = xdbf.Magic
	}
	used := uint32(len(b.Entries))
	count := b.EntryCount
	if count < used {
		count = used
	}

	var buf bytes.Buffer
	for _, v := range []uint32{magic, 0x10000, count, used, count, 0} {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}

	var offset uint32
	for _, e := range b.Entries {
		_ = binary.Write(&buf, binary.BigEndian, uint16(e.Section))
		_ = binary.Write(&buf, binary.BigEndian, e.ID)
		_ = binary.Write(&buf, binary.BigEndian, offset)
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(e.Payload)))
		offset += uint32(len(e.Payload))
	}

	header := xdbf.Header{FreeCount: count}
	if pad := int(header.DataStart()) - buf.Len(); pad > 0 {
		buf.Write(make([]byte, pad))
	}
	for _, e := range b.Entries {
		buf.Write(e.Payload)
	}
	return buf.Bytes()
}

// Achievement describes a section-1 payload.
type Achievement struct {
	ID                 uint32
	ImageID            uint32
	Score              uint32
	Flags              uint32
	UnlockFiletime     uint64
	Name               string
	UnlockedDesc       string
	LockedDesc         string
	OmitLockedDesc     bool
	OmitTerminatorName bool
}

// Payload encodes a in the on-disk achievement layout. Locked achievements
// (UnlockFiletime == 0) carry both descriptions; unlocked ones only the first.
func (a Achievement) Payload() []byte {
	var buf bytes.Buffer
	for _, v := range []uint32{0x1C, a.ID, a.ImageID, a.Score, a.Flags} {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}
	_ = binary.Write(&buf, binary.BigEndian, a.UnlockFiletime)
	if a.OmitTerminatorName {
		buf.Write(UTF16(a.Name))
		return buf.Bytes()
	}
	buf.Write(UTF16Z(a.Name))
	buf.Write(UTF16Z(a.UnlockedDesc))
	if a.UnlockFiletime == 0 && !a.OmitLockedDesc {
		buf.Write(UTF16Z(a.LockedDesc))
	}
	return buf.Bytes()
}

// UTF16 encodes s as UTF-16BE without a terminator.
func UTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(units))
	for i, u := range units {
		binary.BigEndian.PutUint16(out[2*i:], u)
	}
	return out
}

// UTF16Z encodes s as zero-terminated UTF-16BE.
func UTF16Z(s string) []byte {
	return append(UTF16(s), 0, 0)
}
