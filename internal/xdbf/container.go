package xdbf

import (
	"fmt"
	"os"
)

const (
	// Magic is the "XDBF" header tag.
	Magic uint32 = 0x58444246

	// HeaderSize is the size of the fixed header (six big-endian u32 fields).
	HeaderSize = 24

	// EntrySize is the size of one entry table record: u16 section, u64 id, u32 offset, u32 size.
	EntrySize = 18

	freeEntrySize = 8
)

// Section selects how an entry payload is interpreted.
type Section uint16

const (
	SectionAchievement Section = 1
	SectionImage       Section = 2
)

func (s Section) String() string {
	switch s {
	case SectionAchievement:
		return "achievement"
	case SectionImage:
		return "image"
	default:
		return fmt.Sprintf("section(%d)", uint16(s))
	}
}

// Header is the fixed container header.
type Header struct {
	Magic      uint32
	Version    uint32
	EntryCount uint32
	EntryUsed  uint32 // authoritative number of entries to read
	FreeCount  uint32
	FreeUsed   uint32
}

// DataStart returns the absolute offset of the data region.
//
// Both tables are sized by FreeCount, as Xenia profiles always carry
// EntryCount == FreeCount.
func (h Header) DataStart() uint64 {
	return HeaderSize + EntrySize*uint64(h.FreeCount) + freeEntrySize*uint64(h.FreeCount)
}

// Entry is one located resource in the container.
type Entry struct {
	Section Section
	ID      uint64
	Offset  uint32 // relative to the data region
	Size    uint32

	// Payload aliases the buffer passed to Parse.
	Payload []byte
}

// Container is a parsed XDBF file.
type Container struct {
	Header  Header
	Entries []Entry
}

// ReadFile reads and parses the container at path.
func ReadFile(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read container %s: %w", path, err)
	}
	return Parse(data)
}

// ParseHeader reads the 24-byte header and validates the magic and counts.
func ParseHeader(r *Reader) (Header, error) {
	var h Header
	fields := []*uint32{&h.Magic, &h.Version, &h.EntryCount, &h.EntryUsed, &h.FreeCount, &h.FreeUsed}
	for _, f := range fields {
		v, err := r.U32()
		if err != nil {
			return Header{}, fmt.Errorf("%w: header: %w", ErrMalformedContainer, err)
		}
		*f = v
	}
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("magic %#08x: %w", h.Magic, ErrBadMagic)
	}
	if h.EntryUsed > h.EntryCount {
		return Header{}, fmt.Errorf("%w: entry_used %d exceeds entry_count %d",
			ErrMalformedContainer, h.EntryUsed, h.EntryCount)
	}
	return h, nil
}

// Parse indexes buf and slices out every entry payload. A payload that runs
// past the end of buf fails the whole container; nothing is salvaged.
func Parse(buf []byte) (*Container, error) {
	r := NewReader(buf)
	header, err := ParseHeader(r)
	if err != nil {
		return nil, err
	}

	// Cap the allocation by what the buffer could actually hold.
	capHint := min(int(header.EntryUsed), r.Len()/EntrySize)
	entries := make([]Entry, 0, capHint)
	dataStart := header.DataStart()

	for i := uint32(0); i < header.EntryUsed; i++ {
		e, err := readEntry(r)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrMalformedContainer, i, err)
		}

		start := dataStart + uint64(e.Offset)
		end := start + uint64(e.Size)
		if end > uint64(len(buf)) {
			return nil, fmt.Errorf("entry %d (%s, id %d): payload %d..%d exceeds file size %d: %w",
				i, e.Section, e.ID, start, end, len(buf), ErrTruncatedContainer)
		}
		e.Payload = buf[start:end:end]
		entries = append(entries, e)
	}

	return &Container{Header: header, Entries: entries}, nil
}

func readEntry(r *Reader) (Entry, error) {
	var e Entry
	section, err := r.U16()
	if err != nil {
		return Entry{}, err
	}
	e.Section = Section(section)
	if e.ID, err = r.U64(); err != nil {
		return Entry{}, err
	}
	if e.Offset, err = r.U32(); err != nil {
		return Entry{}, err
	}
	if e.Size, err = r.U32(); err != nil {
		return Entry{}, err
	}
	return e, nil
}
