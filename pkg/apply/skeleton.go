package apply

import (
	"bytes"
	"strings"

	"github.com/wimlib-go/wimapply/pkg/wim"
)

// materializeSkeleton is the Skeleton Materializer (spec section 4.4): for
// every unskipped, non-root dentry, it creates the directory or file entry
// itself (or a link to already-realized content), leaves unnamed-stream
// and non-empty named-stream content to the Stream Extractor, and applies
// everything else that doesn't depend on stream content. It walks
// top-down so a directory always exists before its children are created.
func materializeSkeleton(ctx *Context) error {
	return walkPreOrder(ctx.Root, func(d *wim.Dentry) error {
		if d.IsRoot() {
			return nil
		}
		return materializeDentry(ctx, d)
	})
}

func materializeDentry(ctx *Context, d *wim.Dentry) error {
	path, ok := computePath(ctx, d)
	if !ok {
		d.Skipped = true
		return nil
	}
	inode := d.Inode
	caps := ctx.capabilities

	// Step 1: a LinkMode policy (HARDLINK/SYMLINK) that lets dentries
	// with identical content, even across unrelated inodes, reuse the
	// first materialized copy rather than each writing their own.
	if ctx.LinkMode() != LinkModeNone && !inode.IsDirectory() && inode.Unnamed.IsResolved() {
		if existing, ok := ctx.contentLinks[inode.Unnamed.Hash]; ok {
			if err := linkToExisting(ctx, d, existing, path); err != nil {
				return err
			}
			d.WasLinked = true
			inode.ExtractedFile = existing
			return nil
		}
	}

	// Step 2: a dentry sharing an inode with one already materialized in
	// this operation (the WIM's own declared hard-link group) reuses that
	// copy via the backend's native hard link, when supported. When not
	// supported, fall through and write an independent copy (the Feature
	// Matcher has already warned about this degradation).
	if inode.ExtractedFile != "" {
		if caps.HardLinks {
			if err := ctx.Backend.CreateHardLink(inode.ExtractedFile, path, ctx); err != nil {
				return wrap(ErrWrite, "CreateHardLink", path, err)
			}
			d.WasLinked = true
			return nil
		}
	}

	// Step 3/4: create the skeleton entry itself. A symbolic link on a
	// backend that can only realize reparse points as native symlinks
	// (not full reparse data) can't be created as a plain file and then
	// converted — os.Symlink-style creation needs the link target text,
	// which isn't available until the Reparse Rewriter decodes it from
	// stream content — so its entity creation is deferred entirely to the
	// Stream Extractor (spec section 4.6). A junction, or any reparse
	// point on a backend with full native reparse support, still gets its
	// directory or file entry now; only the reparse buffer itself is
	// deferred.
	deferredSymlink := inode.IsSymbolicLink() && !caps.ReparsePoints
	if !deferredSymlink {
		if inode.IsDirectory() {
			if err := ctx.Backend.CreateDirectory(path, ctx); err != nil {
				return wrap(ErrMkDir, "CreateDirectory", path, err)
			}
		} else {
			if err := ctx.Backend.CreateFile(path, ctx); err != nil {
				return wrap(ErrOpen, "CreateFile", path, err)
			}
		}
	}

	// Step 5: empty named streams carry no content for the Stream
	// Extractor to dispatch (their reference was left unresolved by the
	// Stream Index), so materialize them here as zero-length streams.
	if !deferredSymlink && caps.NamedDataStreams {
		for _, ads := range inode.ADS {
			if ads.Stream.IsResolved() {
				continue
			}
			empty := bytes.NewReader(nil)
			if err := ctx.Backend.ExtractNamedStream(path, ads.Name, empty, 0, ctx); err != nil {
				return wrap(ErrWrite, "ExtractNamedStream", path, err)
			}
		}
	}

	// Step 6: attributes and short name. Some backends treat the
	// extraction root itself specially and accept neither attributes nor a
	// short name for it, regardless of capability (spec section 9, Open
	// Question 2).
	if !deferredSymlink {
		rootSpecial := ctx.options.RootDirectoryIsSpecial && ctx.Backend.TargetIsRoot(path)
		if !rootSpecial {
			if err := ctx.Backend.SetFileAttributes(path, inode.Attributes, ctx); err != nil {
				return wrap(ErrWrite, "SetFileAttributes", path, err)
			}
		}
		if d.ShortName != "" && caps.ShortNames && !rootSpecial {
			if err := ctx.Backend.SetShortName(path, d.ShortName, ctx); err != nil {
				return wrap(ErrWrite, "SetShortName", path, err)
			}
		}
	}

	// Step 7: record this path so later dentries sharing content (via
	// LinkMode) or sharing this inode (via a real hard-link group) can
	// link to it instead of writing their own copy. A deferred symlink
	// records nothing yet; the Stream Extractor does so once the entry
	// actually exists.
	if !deferredSymlink {
		if inode.ExtractedFile == "" {
			inode.ExtractedFile = path
		}
		if ctx.LinkMode() != LinkModeNone && !inode.IsDirectory() && inode.Unnamed.IsResolved() {
			if ctx.contentLinks == nil {
				ctx.contentLinks = make(map[wim.SHA1]string)
			}
			if _, exists := ctx.contentLinks[inode.Unnamed.Hash]; !exists {
				ctx.contentLinks[inode.Unnamed.Hash] = path
			}
		}
	}

	return nil
}

// linkToExisting realizes a dentry whose content was already materialized
// at existing, as either a backend hard link or a symlink, per the
// operation's LinkMode. A symlink's target is computed relative to d's own
// location rather than passed through as the absolute existing path, so the
// resulting tree stays self-contained if the whole extraction target is
// later moved (spec section 4.4 step 1).
func linkToExisting(ctx *Context, d *wim.Dentry, existing, path string) error {
	switch ctx.LinkMode() {
	case LinkModeHardLink:
		if err := ctx.Backend.CreateHardLink(existing, path, ctx); err != nil {
			return wrap(ErrWrite, "CreateHardLink", path, err)
		}
	case LinkModeSymlink:
		target := relativeSymlinkTarget(ctx, d, existing)
		if err := ctx.Backend.CreateSymlink(target, path, ctx); err != nil {
			return wrap(ErrWrite, "CreateSymlink", path, err)
		}
	}
	return nil
}

// relativeSymlinkTarget computes a relative path from d's own location to
// existing, an already-materialized absolute backend path, by counting path
// components the same way the original wimlib implementation does
// (src/extract.c, get_num_path_components and extract_multiimage_symlink):
// climb one ".." per level of d's own depth below the extraction root, then
// descend through existing's own trailing components, discarding the
// leading ones it shares with the target root. The climb overshoots the
// target root by exactly one level and the discard compensates by retaining
// the target root's own last component, which is what makes the result
// correct regardless of how deep the extraction target itself sits in the
// host filesystem. Under FlagMultiImage every image is extracted one level
// deeper beneath a shared root, so the climb gains an extra ".." and one
// fewer leading component of existing is discarded to compensate.
func relativeSymlinkTarget(ctx *Context, d *wim.Dentry, existing string) string {
	sep := separatorOrDefault(ctx.options.PathSeparator)

	climb := dentryDepth(d)

	base := ctx.Target
	if ctx.options.RequiresRealTargetInPaths && ctx.RealTarget != "" {
		base = ctx.RealTarget
	}
	targetComponents := len(pathComponents(base, sep))

	if ctx.Flags.Has(FlagMultiImage) {
		climb++
		targetComponents--
	}

	skip := targetComponents - 1
	if skip < 0 {
		skip = 0
	}

	trimmed := strings.TrimPrefix(existing, ctx.options.PathPrefix)
	existingComponents := pathComponents(trimmed, sep)
	if skip > len(existingComponents) {
		skip = len(existingComponents)
	}
	suffix := existingComponents[skip:]

	var b strings.Builder
	for i := 0; i < climb; i++ {
		if i > 0 {
			b.WriteByte(sep)
		}
		b.WriteString("..")
	}
	if len(suffix) > 0 {
		if climb > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(strings.Join(suffix, string(sep)))
	}
	return b.String()
}

// dentryDepth counts d's ancestors from, but not including, the extraction
// root, up to and including d itself.
func dentryDepth(d *wim.Dentry) int {
	depth := 0
	for n := d; n != nil && !n.IsRoot(); n = n.Parent {
		depth++
	}
	return depth
}

// pathComponents splits p into its non-empty sep-delimited segments.
func pathComponents(p string, sep byte) []string {
	var out []string
	start := -1
	for i := 0; i < len(p); i++ {
		if p[i] == sep {
			if start >= 0 {
				out = append(out, p[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, p[start:])
	}
	return out
}
