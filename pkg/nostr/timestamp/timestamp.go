// Package timestamp implements the event timestamp type, a unix epoch in
// seconds.
package timestamp

import "time"

// T is a unix timestamp in seconds.
type T int64

// Now returns the current moment as a T.
func Now() T { return T(time.Now().Unix()) }

// Time converts the timestamp to a time.Time.
func (t T) Time() time.Time { return time.Unix(int64(t), 0) }

// I64 returns the timestamp as a plain int64.
func (t T) I64() int64 { return int64(t) }
