package io

import (
	"sync"

	"github.com/miekg/dns"
)

// DefaultBufferSize is the wire-buffer size of the BufferPool every
// listener creates: 4096 bytes covers the EDNS0 payload sizes this
// server negotiates (§ edns0).
const DefaultBufferSize = 4096

// BufferPool recycles fixed-size byte slices so the UDP and TCP read
// loops don't allocate a buffer per query.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a pool that hands out buffers of size bytes.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
		size: size,
	}
}

// Get returns a buffer of the pool's configured size. Callers must
// return it with Put once they're done.
func (bp *BufferPool) Get() []byte {
	bufPtr := bp.pool.Get().(*[]byte)

	return (*bufPtr)[:bp.size]
}

// Put returns buf to the pool for reuse.
func (bp *BufferPool) Put(buf []byte) {
	bp.pool.Put(&buf)
}

// MessagePool recycles *dns.Msg values across queries so the hot path
// of HandleQuery doesn't allocate a fresh message for every packet.
type MessagePool struct {
	pool sync.Pool
}

// NewMessagePool creates an empty message pool.
func NewMessagePool() *MessagePool {
	return &MessagePool{
		pool: sync.Pool{
			New: func() interface{} {
				return new(dns.Msg)
			},
		},
	}
}

// Get returns a *dns.Msg reset to its zero value (flags cleared,
// sections emptied but capacity retained). Callers must return it
// with Put once they're done.
func (mp *MessagePool) Get() *dns.Msg {
	msg := mp.pool.Get().(*dns.Msg)
	resetMessage(msg)

	return msg
}

// Put clears msg's sections and returns it to the pool.
func (mp *MessagePool) Put(msg *dns.Msg) {
	msg.Question = msg.Question[:0]
	msg.Answer = msg.Answer[:0]
	msg.Ns = msg.Ns[:0]
	msg.Extra = msg.Extra[:0]
	mp.pool.Put(msg)
}

func resetMessage(msg *dns.Msg) {
	msg.MsgHdr = dns.MsgHdr{}
	msg.Compress = false
	msg.Question = msg.Question[:0]
	msg.Answer = msg.Answer[:0]
	msg.Ns = msg.Ns[:0]
	msg.Extra = msg.Extra[:0]
}
