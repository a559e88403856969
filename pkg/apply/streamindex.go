package apply

import (
	"fmt"

	"github.com/wimlib-go/wimapply/pkg/wim"
)

// buildStreamIndex is the Stream Index (spec section 4.3): a resolve-and-
// zero pass over every unskipped inode's stream references, followed by an
// enumerate pass over every unskipped dentry that selects, on each inode's
// first visit, which descriptors this operation must extract.
func buildStreamIndex(ctx *Context) error {
	if err := resolveStreams(ctx); err != nil {
		return err
	}
	if err := enumerateStreams(ctx); err != nil {
		return err
	}
	// In random-access and sequential modes the total byte count is exact
	// by the time this pass completes, so the notify threshold can be
	// initialized now. In pipe mode the total is an XML-declared estimate
	// set by the caller before streaming begins (spec section 4.5), so
	// initialization happens there instead.
	if !ctx.Flags.Has(FlagFromPipe) {
		ctx.initNotifyThreshold()
	}
	return nil
}

// resolveStreams binds every unskipped inode's stream references to a
// StreamDescriptor and zeroes its OutRefCount, visiting each inode at most
// once regardless of how many (unskipped) dentries share it.
func resolveStreams(ctx *Context) error {
	visited := make(map[*wim.Inode]bool)
	return walkPreOrder(ctx.Root, func(d *wim.Dentry) error {
		if d.IsRoot() || d.Inode == nil || visited[d.Inode] {
			return nil
		}
		visited[d.Inode] = true

		inode := d.Inode
		if err := resolveReference(ctx, &inode.Unnamed); err != nil {
			return err
		}
		for i := range inode.ADS {
			if err := resolveReference(ctx, &inode.ADS[i].Stream); err != nil {
				return err
			}
		}
		return nil
	})
}

// resolveReference binds ref to its StreamDescriptor and zeroes the
// descriptor's OutRefCount. A zero hash (an empty stream) is left
// unresolved, since there is no content to extract. Outside pipe mode,
// every non-empty hash is expected to already have a catalog entry from
// the archive's blob table; in pipe mode, where no upfront table exists,
// the first sighting of a hash synthesizes a pending descriptor that later
// sightings within the same operation reuse (spec section 4.3, "pipe-mode
// synthesized descriptors").
func resolveReference(ctx *Context, ref *wim.StreamReference) error {
	hash := ref.Hash
	if zeroHash(hash) {
		return nil
	}
	if d, ok := ctx.Catalog[hash]; ok {
		d.OutRefCount = 0
		ref.Resolve(d)
		return nil
	}
	if d, ok := ctx.synthesized[hash]; ok {
		ref.Resolve(d)
		return nil
	}
	if !ctx.Flags.Has(FlagFromPipe) {
		return wrap(ErrInvalidImage, "resolveReference", "", fmt.Errorf("stream %x is referenced but absent from the archive's blob table", hash))
	}
	d := &StreamDescriptor{Hash: hash, Locator: wim.PendingLocator{}}
	if ctx.synthesized == nil {
		ctx.synthesized = make(map[wim.SHA1]*StreamDescriptor)
	}
	ctx.synthesized[hash] = d
	ref.Resolve(d)
	return nil
}

func zeroHash(h wim.SHA1) bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}

// enumerateStreams visits every unskipped dentry, but acts only on the
// first dentry of each hard-link group it encounters (spec section 4.3,
// "first visit wins"): later dentries sharing the same inode are
// materialized by the Skeleton Materializer as links to the first one's
// output, so only the first contributes stream demand. Named (ADS) streams
// are only selected when the backend can extract them and the link mode is
// not HARDLINK (spec section 4.3 pass 2). The HARDLINK check applies to the
// whole operation: under HARDLINK no dentry's named streams are selected,
// including those of the first dentry to hold a given content.
func enumerateStreams(ctx *Context) error {
	selectADS := ctx.capabilities.NamedDataStreams && ctx.LinkMode() != LinkModeHardLink
	return walkPreOrder(ctx.Root, func(d *wim.Dentry) error {
		if d.IsRoot() || d.Inode == nil || d.Inode.Visited {
			return nil
		}
		d.Inode.Visited = true

		selectReference(ctx, d, &d.Inode.Unnamed)
		if selectADS {
			for i := range d.Inode.ADS {
				selectReference(ctx, d, &d.Inode.ADS[i].Stream)
			}
		}
		return nil
	})
}

// selectReference records that dentry d needs ref's content. On the
// descriptor's 0->1 OutRefCount transition it is pushed onto the
// operation's stream list and its size is added to the progress totals
// (spec section 4.3). In sequential and pipe modes, where streams are
// consumed in archive order rather than per-dentry, d is recorded as a
// back-pointer so the Stream Extractor can find every dentry waiting on
// this descriptor when its turn in archive order arrives (spec section
// 4.5).
func selectReference(ctx *Context, d *wim.Dentry, ref *wim.StreamReference) {
	if !ref.IsResolved() {
		return
	}
	desc := ref.Descriptor()
	wasUnreferenced := desc.OutRefCount == 0
	desc.OutRefCount++
	if wasUnreferenced {
		ctx.pushStreamDescriptor(desc)
		ctx.addStream(desc.Size)
	}
	if ctx.Flags.Any(FlagSequential | FlagFromPipe) {
		desc.AppendBackpointer(d)
	}
}
