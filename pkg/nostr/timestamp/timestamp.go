package timestamp

import (
	"strconv"
	"time"
)

// T is a convenience type for UNIX 64 bit timestamps of 1 second
// precision.
type T int64

// Now returns the current UNIX timestamp of the current second.
func Now() T { return T(time.Now().Unix()) }

// I64 returns the timestamp as int64.
func (t T) I64() int64 { return int64(t) }

// FromTime returns a T from a time.Time
func FromTime(t time.Time) T { return T(t.Unix()) }

func (t T) String() string { return strconv.FormatInt(int64(t), 10) }
