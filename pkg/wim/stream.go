package wim

import "io"

// SHA1 is a stream's content hash, used for deduplication.
type SHA1 [20]byte

// StreamReference identifies the content of one data stream (unnamed or
// named). It starts out unresolved (hash only); the Stream Index's
// resolve-and-zero pass (spec section 4.3) binds it to a StreamDescriptor.
type StreamReference struct {
	Hash     SHA1
	resolved *StreamDescriptor
}

// IsResolved reports whether the reference has been bound to a descriptor.
func (r *StreamReference) IsResolved() bool { return r.resolved != nil }

// Descriptor returns the bound descriptor, or nil if unresolved.
func (r *StreamReference) Descriptor() *StreamDescriptor { return r.resolved }

// Resolve binds the reference to d. Used by the Stream Index's resolution
// pass and, in pipe mode, by lazy resolution as headers arrive.
func (r *StreamReference) Resolve(d *StreamDescriptor) { r.resolved = d }

// CompressionKind names the compression applied to a stream's on-disk
// representation in the archive. It does not affect extraction logic
// directly; decompression is the container parser's responsibility.
type CompressionKind int

// Recognized compression kinds.
const (
	CompressionNone CompressionKind = iota
	CompressionXPRESS
	CompressionLZX
	CompressionLZMS
)

// Locator identifies where a stream's bytes currently live. It is a closed
// sum type: InArchiveLocator, OnDiskLocator, or PendingLocator.
type Locator interface {
	isLocator()
}

// InArchiveLocator locates a stream at a byte offset within the WIM
// container; sequential extraction sorts descriptors by this offset.
type InArchiveLocator struct {
	Offset uint64
}

func (InArchiveLocator) isLocator() {}

// OnDiskLocator locates a stream in a standalone file on disk, such as the
// original source file for a captured (not yet committed) stream.
// Sequential and pipe extraction open their temp-file spills directly and
// never substitute an OnDiskLocator for them.
type OnDiskLocator struct {
	Path string
}

func (OnDiskLocator) isLocator() {}

// PendingLocator marks a stream whose location is not yet known, which
// occurs only in pipe mode before its header has arrived.
type PendingLocator struct{}

func (PendingLocator) isLocator() {}

// StreamDescriptor is the extractor's per-stream record for a deduplicated
// content entry: one per distinct SHA-1 in the current operation.
type StreamDescriptor struct {
	Hash        SHA1
	Size        uint64
	Locator     Locator
	Compression CompressionKind

	// --- extractor-owned bookkeeping, reset between operations ---

	// OutRefCount is the number of dentry slots still needing this stream
	// in the current operation. It returns to 0 at end-of-operation
	// (spec section 3 invariant).
	OutRefCount int

	// backpointers records which dentries requested this stream, built
	// only in sequential and pipe modes (spec section 4.3). Small-vector layout:
	// the first few references are stored inline to avoid a heap
	// allocation for the overwhelmingly common case of a stream with one
	// or a handful of references; it grows onto the heap geometrically
	// once that inline capacity is exceeded.
	backpointers backpointerList

	// next chains this descriptor onto ApplyContext's stream list, in the
	// order descriptors transitioned from zero to one reference.
	next *StreamDescriptor
}

// backpointerInlineCapacity is the number of dentry back-pointers stored
// inline on a StreamDescriptor before spilling to a heap slice.
const backpointerInlineCapacity = 4

// backpointerList is a small-vector of *Dentry: inline array up to
// backpointerInlineCapacity, then a geometrically-grown heap slice.
type backpointerList struct {
	inline    [backpointerInlineCapacity]*Dentry
	inlineLen int
	overflow  []*Dentry
}

func (l *backpointerList) append(d *Dentry) {
	if l.inlineLen < backpointerInlineCapacity {
		l.inline[l.inlineLen] = d
		l.inlineLen++
		return
	}
	if l.overflow == nil {
		l.overflow = make([]*Dentry, 0, backpointerInlineCapacity*2)
	}
	l.overflow = append(l.overflow, d)
}

func (l *backpointerList) len() int {
	return l.inlineLen + len(l.overflow)
}

func (l *backpointerList) forEach(f func(*Dentry)) {
	for i := 0; i < l.inlineLen; i++ {
		f(l.inline[i])
	}
	for _, d := range l.overflow {
		f(d)
	}
}

// reset clears the list, dropping the heap slice (if any) so descriptors
// never retain heap arrays across operations (spec section 9).
func (l *backpointerList) reset() {
	for i := 0; i < l.inlineLen; i++ {
		l.inline[i] = nil
	}
	l.inlineLen = 0
	l.overflow = nil
}

// AppendBackpointer records that dentry d requested this descriptor's
// stream. Exported for use by pkg/apply's Stream Index builder.
func (d *StreamDescriptor) AppendBackpointer(dentry *Dentry) {
	d.backpointers.append(dentry)
}

// BackpointerCount reports how many dentries have been recorded against
// this descriptor via AppendBackpointer.
func (d *StreamDescriptor) BackpointerCount() int {
	return d.backpointers.len()
}

// ForEachBackpointer invokes f for every dentry recorded against this
// descriptor, in the order they were appended (spec section 4.5: "in list
// order").
func (d *StreamDescriptor) ForEachBackpointer(f func(*Dentry)) {
	d.backpointers.forEach(f)
}

// ResetBookkeeping zeroes OutRefCount, frees back-pointer storage, and
// clears the stream-list link — the per-descriptor half of the teardown
// invariant in spec section 5.
func (d *StreamDescriptor) ResetBookkeeping() {
	d.OutRefCount = 0
	d.backpointers.reset()
	d.next = nil
}

// Next returns the descriptor linked after d on the operation's stream
// list, or nil at the end of the list.
func (d *StreamDescriptor) Next() *StreamDescriptor { return d.next }

// SetNext links n after d on the operation's stream list. Exported for use
// by pkg/apply's Stream Index.
func (d *StreamDescriptor) SetNext(n *StreamDescriptor) { d.next = n }

// StreamReader is the WIM container parser's read surface, as consumed by
// the extraction engine. It is an external collaborator: this package only
// specifies the interface the engine needs, not an implementation.
type StreamReader interface {
	// CanSeek reports whether the underlying input supports random access
	// (false for a pipe or other non-seekable source).
	CanSeek() bool
	// Open returns a reader for the stream's uncompressed content at the
	// given locator. The caller must close the returned reader.
	Open(loc Locator) (io.ReadCloser, error)
}

// PipeReader is the read surface a pipe-mode container parser exposes in
// addition to StreamReader. A pipe can't be opened by locator — it can
// only be consumed in the order its bytes arrive — so the Stream
// Extractor instead asks for whatever comes next and is told which hash
// it turned out to be (spec section 4.5, "Pipe mode").
type PipeReader interface {
	StreamReader
	// Next returns the next stream in wire order: its content hash, its
	// size (known only once this stream's own header has arrived, since
	// a pipable WIM's directory entries precede the stream data they
	// reference), and a reader bounded to exactly that stream's content.
	// It returns io.EOF once every stream the pipe carries has been
	// delivered. The caller must close the returned reader.
	Next() (SHA1, uint64, io.ReadCloser, error)
}
