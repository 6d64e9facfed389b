// Package mempool provides pooled byte buffers for the engine's compaction
// copy loop to cut per-operation allocations.
package mempool

import "sync"

var bucketSizes = []int{256, 1024, 4096, 16384, 65536, 262144, 1048576}

var pools = newBucketPools()

func newBucketPools() map[int]*sync.Pool {
	m := make(map[int]*sync.Pool, len(bucketSizes))
	for _, size := range bucketSizes {
		size := size
		m[size] = &sync.Pool{
			New: func() interface{} {
				b := make([]byte, size)
				return &b
			},
		}
	}
	return m
}

func bucketFor(size int) int {
	for _, b := range bucketSizes {
		if size <= b {
			return b
		}
	}
	return 0
}

// GetBuffer returns a buffer of at least size bytes, pooled when size fits
// one of the fixed buckets and allocated directly otherwise.
func GetBuffer(size int) []byte {
	bucket := bucketFor(size)
	if bucket == 0 {
		return make([]byte, size)
	}
	bufPtr := pools[bucket].Get().(*[]byte)
	return (*bufPtr)[:size]
}

// PutBuffer returns a buffer obtained from GetBuffer to its pool. Buffers
// whose capacity doesn't match a bucket exactly are left for the GC.
func PutBuffer(buf []byte) {
	if buf == nil {
		return
	}
	capacity := cap(buf)
	pool, ok := pools[capacity]
	if !ok {
		return
	}
	buf = buf[:capacity]
	pool.Put(&buf)
}
