package apply

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/wimlib-go/wimapply/pkg/must"
	"github.com/wimlib-go/wimapply/pkg/reparse"
	"github.com/wimlib-go/wimapply/pkg/stream"
	"github.com/wimlib-go/wimapply/pkg/wim"
)

// extractStreams is the Stream Extractor (spec section 4.5) for the
// random-access and sequential strategies; pipe mode is handled
// separately by extractStreamsFromPipe in pipe.go, since it can't rely on
// the Stream Index having run ahead of the tree walk.
func extractStreams(ctx *Context) error {
	if ctx.Flags.Has(FlagSequential) {
		return extractSequential(ctx)
	}
	return extractRandomAccess(ctx)
}

// extractRandomAccess dispatches per dentry rather than per descriptor: a
// seekable reader makes re-opening the same stream for every reference
// cheap, so there's no need to build or walk back-pointer lists.
func extractRandomAccess(ctx *Context) error {
	return walkPreOrder(ctx.Root, func(d *wim.Dentry) error {
		if d.IsRoot() || d.Inode == nil || d.WasLinked {
			return nil
		}
		path, ok := computePath(ctx, d)
		if !ok {
			return nil
		}
		if err := extractOneReference(ctx, d, path, "", &d.Inode.Unnamed); err != nil {
			return err
		}
		if ctx.capabilities.NamedDataStreams {
			for i := range d.Inode.ADS {
				ads := &d.Inode.ADS[i]
				if err := extractOneReference(ctx, d, path, ads.Name, &ads.Stream); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func extractOneReference(ctx *Context, d *wim.Dentry, path, name string, ref *wim.StreamReference) error {
	if !ref.IsResolved() {
		return nil
	}
	desc := ref.Descriptor()
	rc, err := ctx.Reader.Open(desc.Locator)
	if err != nil {
		return wrap(ErrOpen, "OpenStream", path, err)
	}
	defer must.Close(rc, ctx.Logger)
	return writeStreamContent(ctx, d, path, name, desc, rc)
}

// extractSequential processes descriptors in ascending archive-offset
// order, opening each stream exactly once regardless of how many dentries
// reference it — the point of this strategy is to decompress each
// archive resource only once, matching the order the archive itself
// stores them in (spec section 4.5).
func extractSequential(ctx *Context) error {
	descriptors := ctx.streamDescriptors()
	sortByArchiveOffset(descriptors)

	for _, desc := range descriptors {
		if err := extractDescriptorSequential(ctx, desc); err != nil {
			return err
		}
	}
	return nil
}

func sortByArchiveOffset(descriptors []*StreamDescriptor) {
	sort.Slice(descriptors, func(i, j int) bool {
		oi, iok := descriptors[i].Locator.(wim.InArchiveLocator)
		oj, jok := descriptors[j].Locator.(wim.InArchiveLocator)
		if iok && jok {
			return oi.Offset < oj.Offset
		}
		return iok && !jok
	})
}

// extractDescriptorSequential opens desc's content once and fans it out
// to every dentry that requested it. A descriptor with more than one
// back-pointer is spilled to a temporary file first, since an io.Reader
// can only be consumed once; a single-reference descriptor streams
// straight through with no spill.
func extractDescriptorSequential(ctx *Context, desc *StreamDescriptor) error {
	if desc.BackpointerCount() == 0 {
		return nil
	}

	rc, err := ctx.Reader.Open(desc.Locator)
	if err != nil {
		return wrap(ErrOpen, "OpenStream", "", err)
	}
	defer must.Close(rc, ctx.Logger)

	return fanOutDescriptor(ctx, desc, rc)
}

// fanOutDescriptor consumes exactly one read of r — desc's content — and
// delivers it to every dentry recorded against desc, spilling to a
// temporary file first when there is more than one destination, since an
// io.Reader can only be consumed once. Shared by the sequential and pipe
// strategies (spec section 4.5), which differ only in how they obtain r.
func fanOutDescriptor(ctx *Context, desc *StreamDescriptor, r io.Reader) error {
	n := desc.BackpointerCount()
	if n == 0 {
		_, err := io.Copy(io.Discard, r)
		return err
	}
	if n == 1 {
		var dest *wim.Dentry
		desc.ForEachBackpointer(func(d *wim.Dentry) { dest = d })
		return dispatchToDentry(ctx, dest, desc, r)
	}

	spillPath, err := spillToTempFile(ctx, r, desc.Size)
	if err != nil {
		return err
	}

	ctx.visitedDentries = make(map[*wim.Dentry]bool, n)
	defer func() { ctx.visitedDentries = nil }()

	var dispatchErr error
	desc.ForEachBackpointer(func(d *wim.Dentry) {
		if dispatchErr != nil || ctx.visitedDentries[d] {
			return
		}
		ctx.visitedDentries[d] = true
		f, openErr := os.Open(spillPath)
		if openErr != nil {
			dispatchErr = wrap(ErrOpen, "OpenSpill", spillPath, openErr)
			return
		}
		defer must.Close(f, ctx.Logger)
		dispatchErr = dispatchToDentry(ctx, d, desc, f)
	})
	return dispatchErr
}

// dispatchToDentry determines whether desc is d's unnamed stream or one of
// its named streams, and writes accordingly.
func dispatchToDentry(ctx *Context, d *wim.Dentry, desc *StreamDescriptor, r io.Reader) error {
	if d.WasLinked {
		return nil
	}
	path, ok := computePath(ctx, d)
	if !ok {
		return nil
	}
	name, found := streamSelectorFor(d.Inode, desc)
	if !found {
		return nil
	}
	return writeStreamContent(ctx, d, path, name, desc, r)
}

func streamSelectorFor(inode *wim.Inode, desc *StreamDescriptor) (name string, found bool) {
	if inode.Unnamed.Descriptor() == desc {
		return "", true
	}
	for _, ads := range inode.ADS {
		if ads.Stream.Descriptor() == desc {
			return ads.Name, true
		}
	}
	return "", false
}

// spillToTempFile copies size bytes from r into a fresh temporary file,
// registering it with ctx for cleanup on Teardown.
func spillToTempFile(ctx *Context, r io.Reader, size uint64) (string, error) {
	f, err := os.CreateTemp("", fmt.Sprintf("wimapply-%s-*.tmp", ctx.id))
	if err != nil {
		return "", wrap(ErrWrite, "SpillTempFile", "", err)
	}
	path := f.Name()
	ctx.recordTempFile(path)

	_, copyErr := io.CopyN(f, r, int64(size))
	closeErr := f.Close()
	if copyErr != nil {
		return "", wrap(ErrWrite, "SpillTempFile", path, copyErr)
	}
	if closeErr != nil {
		return "", wrap(ErrWrite, "SpillTempFile", path, closeErr)
	}
	return path, nil
}

// writeStreamContent dispatches size bytes of stream content to the
// backend: the reparse-fixup path for a reparse point's unnamed stream,
// the encrypted-content primitive for an encrypted file, or a plain
// unnamed/named stream write otherwise. Every byte read from r is tapped
// through a SHA-1 hasher on its way to the backend, using
// pkg/stream.NewHashedWriter against io.Discard as the sink the hasher
// piggybacks on, so the hash covers exactly what was read regardless of
// where it ends up; a mismatch against desc.Hash after the write completes
// is an integrity violation, which spec section 7 classifies as fatal. It
// advances progress exactly once per call, that is once per stream written,
// while the Stream Index adds each selected descriptor to the totals once
// (spec section 4.5).
func writeStreamContent(ctx *Context, d *wim.Dentry, path, name string, desc *StreamDescriptor, r io.Reader) error {
	hasher := sha1.New()
	tapped := io.TeeReader(r, stream.NewHashedWriter(io.Discard, hasher))

	var err error
	switch {
	case name == "" && d.Inode.IsReparsePoint():
		err = finalizeReparsePoint(ctx, d, path, tapped, desc.Size)
	case name == "" && d.Inode.IsEncrypted():
		if ctx.capabilities.EncryptedFiles {
			err = ctx.Backend.ExtractEncryptedStream(path, tapped, desc.Size, ctx)
		} else {
			err = ctx.Backend.ExtractUnnamedStream(path, tapped, desc.Size, ctx)
		}
	case name == "":
		err = ctx.Backend.ExtractUnnamedStream(path, tapped, desc.Size, ctx)
	default:
		err = ctx.Backend.ExtractNamedStream(path, name, tapped, desc.Size, ctx)
	}
	if err != nil {
		return wrap(ErrWrite, "ExtractStream", path, err)
	}
	if sum := hasher.Sum(nil); !bytes.Equal(sum, desc.Hash[:]) {
		return wrap(ErrStreamHashMismatch, "ExtractStream", path, fmt.Errorf("stream content hash %x does not match declared hash %x", sum, desc.Hash))
	}
	ctx.completeStream(desc.Size)
	return nil
}

// finalizeReparsePoint is the Reparse Rewriter's entry point (spec section
// 4.6): it reads the full reparse buffer from r, applies RPFIX unless
// suppressed, and realizes the result the way the backend's capabilities
// allow.
func finalizeReparsePoint(ctx *Context, d *wim.Dentry, path string, r io.Reader, size uint64) error {
	if size > reparse.MaxSize {
		return wrap(ErrReparseFixupFailed, "finalizeReparsePoint", path, fmt.Errorf("reparse buffer of %d bytes exceeds the %d byte maximum", size, reparse.MaxSize))
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return wrap(ErrRead, "ReadReparseData", path, err)
	}

	buf, err := reparse.Parse(raw)
	if err != nil {
		if errors.Is(err, reparse.ErrUnsupportedTag) {
			return finalizeOpaqueReparsePoint(ctx, d, path, raw)
		}
		return wrap(ErrReparseFixupFailed, "ParseReparseData", path, err)
	}

	if !ctx.Flags.Has(FlagNoRPFix) {
		reparse.Fixup(buf)
	}

	caps := ctx.capabilities
	switch {
	case caps.ReparsePoints:
		fixed, serErr := buf.Serialize()
		if serErr != nil {
			return wrap(ErrReparseFixupFailed, "SerializeReparseData", path, serErr)
		}
		if err := ctx.Backend.SetReparseData(path, fixed, ctx); err != nil {
			return wrap(ErrWrite, "SetReparseData", path, err)
		}
	case caps.SymlinkReparsePoints && d.Inode.IsSymbolicLink():
		if err := realizeDeferredSymlink(ctx, d, path, buf); err != nil {
			return err
		}
	default:
		// Neither a native reparse primitive nor a symlink fallback is
		// available (e.g. a junction on a POSIX-only backend); the
		// plain directory or file the Skeleton Materializer already
		// created stands in for it, reparse semantics lost, as the
		// Feature Matcher already warned.
	}

	d.Inode.ReparseFixed = true
	return nil
}

// finalizeOpaqueReparsePoint handles a reparse tag this package doesn't
// decode: it passes the raw buffer through unmodified to a backend with
// full reparse support, and drops it otherwise.
func finalizeOpaqueReparsePoint(ctx *Context, d *wim.Dentry, path string, raw []byte) error {
	if !ctx.capabilities.ReparsePoints {
		return nil
	}
	if err := ctx.Backend.SetReparseData(path, raw, ctx); err != nil {
		return wrap(ErrWrite, "SetReparseData", path, err)
	}
	d.Inode.ReparseFixed = true
	return nil
}

// realizeDeferredSymlink creates the symlink entry the Skeleton
// Materializer deliberately skipped (spec section 4.4 step 3), now that
// the target text is available. A second dentry hard-linked to the same
// already-realized symlink inode links to it instead of creating its own.
func realizeDeferredSymlink(ctx *Context, d *wim.Dentry, path string, buf *reparse.Buffer) error {
	inode := d.Inode
	if inode.ExtractedFile != "" {
		if err := ctx.Backend.CreateHardLink(inode.ExtractedFile, path, ctx); err != nil {
			return wrap(ErrWrite, "CreateHardLink", path, err)
		}
		d.WasLinked = true
		return nil
	}
	target := ntPathToPOSIX(buf.SubstituteName)
	if err := ctx.Backend.CreateSymlink(target, path, ctx); err != nil {
		return wrap(ErrWrite, "CreateSymlink", path, err)
	}
	inode.ExtractedFile = path
	return nil
}

// ntPathToPOSIX converts a decoded NT path's backslash separators to the
// forward slashes a POSIX-style symlink target expects.
func ntPathToPOSIX(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
