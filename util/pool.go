package util

import "sync"

// DefaultBufSize is the size of pooled read buffers.  It matches the
// largest request head the server accepts (8 KiB).
const DefaultBufSize = 8 * 1024

// BufPool provides reusable byte buffers for connection reads, reducing
// GC pressure when many short-lived connections arrive at once.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.
func PutBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	BufPool.Put(buf)
}
