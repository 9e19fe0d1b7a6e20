package script

import (
	"runtime"
	"sync"
)

var stackBufPool = sync.Pool{
	New: func() any { return make([]byte, 4096) },
}

// currentGoroutineID returns the calling goroutine's ID by parsing
// runtime.Stack()'s "goroutine N [...]" header. NewRuntime records the
// event-loop goroutine's ID with it, and onLoopGoroutine compares the
// caller's ID against that record.
func currentGoroutineID() int64 {
	buf := stackBufPool.Get().([]byte)
	defer stackBufPool.Put(buf) //nolint:staticcheck // slice header is pointer-like
	n := runtime.Stack(buf, false)
	return parseGoroutineID(buf[:n])
}

func parseGoroutineID(stack []byte) int64 {
	const prefix = "goroutine "
	if len(stack) < len(prefix) {
		return 0
	}
	for i := 0; i <= len(stack)-len(prefix); i++ {
		match := true
		for j := 0; j < len(prefix); j++ {
			if stack[i+j] != prefix[j] {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		var id int64
		for j := i + len(prefix); j < len(stack); j++ {
			b := stack[j]
			if b < '0' || b > '9' {
				return id
			}
			id = id*10 + int64(b-'0')
		}
		return id
	}
	return 0
}
