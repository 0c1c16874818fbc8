package xdbf

import (
	"fmt"
	"math"
	"time"
)

// 100ns intervals between 1601-01-01 and 1970-01-01.
const filetimeUnixOffset = 116444736000000000

// FiletimeToTime converts a Windows FILETIME (100ns ticks since 1601-01-01 UTC)
// to a UTC time.Time.
func FiletimeToTime(ft uint64) (time.Time, error) {
	if ft > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("filetime %#x: %w", ft, ErrInvalidFiletime)
	}
	ticks := int64(ft) - filetimeUnixOffset
	return time.Unix(ticks/1e7, (ticks%1e7)*100).UTC(), nil
}

// TimeToFiletime is the inverse of FiletimeToTime.
func TimeToFiletime(t time.Time) uint64 {
	return uint64(t.Unix()*1e7 + int64(t.Nanosecond()/100) + filetimeUnixOffset)
}
