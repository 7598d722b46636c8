package utils

import (
	"time"
)

func UnixMs(t time.Time) uint64 {
	return uint64(t.UnixNano()) / uint64(time.Millisecond)
}

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
