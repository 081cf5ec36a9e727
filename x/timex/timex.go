package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Ms converts a millisecond count into a Duration.
func Ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
