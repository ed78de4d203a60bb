package witness

import (
	"sync"

	"github.com/whalecell/witness/internal/net/packet"
)

// BundleWriter is a single forward-bundle: one wire message (header +
// payload) headed for a client. The teacher's KBEngine ancestor draws these
// from a process-wide object pool (Mercury::Bundle::ObjPool()); this module
// uses the idiomatic Go equivalent, sync.Pool, with the same "scoped
// acquisition, guaranteed return on every exit path" contract (spec §5).
type BundleWriter struct {
	*packet.Writer
}

var bundlePool = sync.Pool{
	New: func() any {
		return &BundleWriter{Writer: packet.NewWriter()}
	},
}

// AcquireBundle draws a BundleWriter from the pool, pre-loaded with opcode
// as its first byte (every forward-bundle opens with a message identity).
func AcquireBundle(opcode byte) *BundleWriter {
	b := bundlePool.Get().(*BundleWriter)
	b.Reset()
	b.WriteC(opcode)
	return b
}

// ReleaseBundle returns a BundleWriter to the pool. Safe to call on every
// exit path, including error paths where the bundle's bytes were already
// copied out.
func ReleaseBundle(b *BundleWriter) {
	bundlePool.Put(b)
}

// sendBundle accumulates one tick's worth of forward-bundles for a single
// witness before being pushed onto the channel as one unit.
type sendBundle struct {
	*packet.Writer
}

var sendBundlePool = sync.Pool{
	New: func() any {
		return &sendBundle{Writer: packet.NewWriter()}
	},
}

func acquireSendBundle() *sendBundle {
	b := sendBundlePool.Get().(*sendBundle)
	b.Reset()
	return b
}

func releaseSendBundle(b *sendBundle) {
	sendBundlePool.Put(b)
}

// append copies a forward-bundle's bytes into the send-bundle and returns
// the number of bytes charged against the tick's packet budget.
func (s *sendBundle) append(fb *BundleWriter) int {
	n := fb.Len()
	s.WriteBytes(fb.RawBytes())
	return n
}
