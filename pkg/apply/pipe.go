package apply

import (
	"errors"
	"io"

	"github.com/wimlib-go/wimapply/pkg/must"
	"github.com/wimlib-go/wimapply/pkg/wim"
)

// errNotAPipeReader is wrapped into an ErrNotPipable error when FROM_PIPE
// extraction is requested against a wim.StreamReader that doesn't also
// implement wim.PipeReader.
var errNotAPipeReader = errors.New("stream reader does not support pipe-mode extraction")

// extractStreamsFromPipe is the Stream Extractor's pipe-mode strategy
// (spec section 4.5, "Pipe mode"): every stream the pipe carries arrives
// exactly once, in whatever order the archive's author wrote it, so each
// is consumed and fanned out to its back-pointers immediately rather than
// looked up by locator afterward. Unlike the random-access and sequential
// strategies, the total is an estimate from image XML metadata; once the
// pipe is exhausted, finalizeTotal raises the completed count to that
// estimate if it fell short.
func extractStreamsFromPipe(ctx *Context) error {
	pr, ok := ctx.Reader.(wim.PipeReader)
	if !ok {
		return wrap(ErrNotPipable, "extractStreamsFromPipe", "", errNotAPipeReader)
	}

	ctx.setEstimatedTotal(ctx.Metadata.TotalBytes())
	ctx.initNotifyThreshold()

	for {
		hash, size, rc, err := pr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return wrap(ErrRead, "PipeNext", "", err)
		}
		if err := consumePipeStream(ctx, hash, size, rc); err != nil {
			return err
		}
	}

	ctx.finalizeTotal()
	return nil
}

// consumePipeStream resolves hash to the descriptor the Stream Index
// synthesized for it (spec section 4.3), fills in the size now that the
// stream's own header has revealed it, and fans its content out to every
// dentry waiting on it. A hash with no unskipped dentry referencing it
// (or none at all, e.g. the pipe includes metadata streams the tree never
// names) is drained and discarded, since a pipe offers no way to skip
// ahead.
func consumePipeStream(ctx *Context, hash wim.SHA1, size uint64, rc io.ReadCloser) error {
	defer must.Close(rc, ctx.Logger)

	desc := ctx.synthesized[hash]
	if desc == nil {
		_, err := io.Copy(io.Discard, rc)
		return err
	}
	desc.Size = size
	return fanOutDescriptor(ctx, desc, rc)
}
