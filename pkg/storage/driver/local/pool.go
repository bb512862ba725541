package local

import "sync"

const copyBufferSize = 1 << 20 // 1MB

// bufferPool hands out reusable buffers for the fallback (non zero-copy)
// file copy path.
type bufferPool struct {
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() any {
				return make([]byte, size)
			},
		},
	}
}

func (p *bufferPool) Get() []byte {
	return p.pool.Get().([]byte)
}

func (p *bufferPool) Put(buf []byte) {
	p.pool.Put(buf) //nolint:staticcheck // buf retains its original capacity
}

var shardedLargePool = newBufferPool(copyBufferSize)
