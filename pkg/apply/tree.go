package apply

import (
	"errors"

	"github.com/wimlib-go/wimapply/pkg/logging"
	"github.com/wimlib-go/wimapply/pkg/must"
	"github.com/wimlib-go/wimapply/pkg/wim"
)

// errNotARegularFile is wrapped into an ErrNotARegularFile error by
// ExtractToStdout when asked to extract a directory or reparse point.
var errNotARegularFile = errors.New("dentry does not name a regular file")

// ExtractTree runs one complete extract operation end to end — Path &
// Name Resolver, Feature Matcher, Stream Index, Skeleton Materializer,
// Stream Extractor, Finalizer — in the control-flow order spec section 2
// specifies. It owns its Context for the duration of the call: Teardown
// always runs, so no transient state survives to the next operation on
// the same tree (spec section 3, P6), and the backend's Abort/Finish hook
// always runs exactly once, matching whichever way the operation ended.
func ExtractTree(root *wim.Dentry, target string, flags Flags, backend Backend, reader wim.StreamReader, metadata wim.ImageMetadata, security wim.SecurityData, catalog map[wim.SHA1]*StreamDescriptor, progress ProgressFunc, logger *logging.Logger) error {
	ctx, err := NewContext(root, target, flags, backend, reader, metadata, security, catalog, progress, logger)
	if err != nil {
		return err
	}
	defer ctx.Teardown()

	if err := runExtraction(ctx); err != nil {
		if abortErr := ctx.Backend.Abort(ctx); abortErr != nil {
			ctx.Logger.Warnf("backend abort failed: %v", abortErr)
		}
		return err
	}
	if err := ctx.Backend.Finish(ctx); err != nil {
		return wrap(ErrWrite, "Finish", "", err)
	}
	return nil
}

// runExtraction drives every component over an already-constructed
// Context. Random-access/sequential and pipe modes share the same
// Resolver, Feature Matcher, and Finalizer passes; they differ only in
// how the Stream Extractor obtains and fans out content, and
// buildStreamIndex itself defers the final notify-threshold
// initialization to pipe mode's own estimated total (spec section 4.5).
func runExtraction(ctx *Context) error {
	if err := ctx.Start(); err != nil {
		return err
	}

	ctx.emit(EventTreeBegin)
	ctx.emit(EventImageBegin)

	if err := resolvePaths(ctx); err != nil {
		return err
	}
	if err := matchFeatures(ctx); err != nil {
		return err
	}

	ctx.emit(EventDirStructureBegin)

	if err := buildStreamIndex(ctx); err != nil {
		return err
	}
	if err := materializeSkeleton(ctx); err != nil {
		return err
	}

	ctx.emit(EventDirStructureEnd)

	if ctx.Flags.Has(FlagFromPipe) {
		if err := extractStreamsFromPipe(ctx); err != nil {
			return err
		}
	} else {
		if err := extractStreams(ctx); err != nil {
			return err
		}
	}

	ctx.emit(EventApplyTimestamps)
	if err := finalizeTree(ctx); err != nil {
		return err
	}

	ctx.emit(EventTreeEnd)
	ctx.emit(EventImageEnd)
	return nil
}

// ExtractToStdout runs the stdout-bypass scenario (spec section 4.5,
// scenario 5; section 6): a single regular file's unnamed-stream content,
// and nothing else, is written directly to the stdout backend. There is
// no directory structure, no Feature Matcher pass, and no Finalizer pass,
// since there is no filesystem entry to attach attributes or timestamps
// to — the backend has exactly one thing to do.
func ExtractToStdout(file *wim.Dentry, backend Backend, reader wim.StreamReader, catalog map[wim.SHA1]*StreamDescriptor, logger *logging.Logger) error {
	if file.Inode == nil || file.Inode.IsDirectory() {
		return wrap(ErrNotARegularFile, "ExtractToStdout", file.Name, errNotARegularFile)
	}

	ctx, err := NewContext(file, "", FlagToStdout, backend, reader, nil, nil, catalog, nil, logger)
	if err != nil {
		return err
	}
	defer ctx.Teardown()

	if err := ctx.Start(); err != nil {
		return err
	}

	inode := file.Inode
	if inode.Unnamed.Hash == (wim.SHA1{}) {
		return ctx.Backend.ExtractUnnamedStream("", nil, 0, ctx)
	}

	desc, ok := ctx.Catalog[inode.Unnamed.Hash]
	if !ok {
		return wrap(ErrInvalidImage, "ExtractToStdout", file.Name, errors.New("stream absent from the archive's blob table"))
	}
	rc, err := ctx.Reader.Open(desc.Locator)
	if err != nil {
		return wrap(ErrOpen, "OpenStream", file.Name, err)
	}
	defer must.Close(rc, ctx.Logger)

	if err := ctx.Backend.ExtractUnnamedStream("", rc, desc.Size, ctx); err != nil {
		return wrap(ErrWrite, "ExtractUnnamedStream", file.Name, err)
	}
	ctx.completeStream(desc.Size)
	return nil
}
