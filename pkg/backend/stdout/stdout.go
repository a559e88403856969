// Package stdout implements apply.Backend for the extract-to-stdout
// bypass scenario (spec section 4.5, scenario 5): a single regular
// file's content, and nothing else, written straight to os.Stdout. It
// implements the full apply.Backend interface only because Go requires
// it; apply.ExtractToStdout's control flow never calls anything beyond
// Capabilities, Options, Start, and ExtractUnnamedStream, since there is
// no directory structure, no link, and no attribute to apply.
package stdout

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/wimlib-go/wimapply/pkg/apply"
	"github.com/wimlib-go/wimapply/pkg/wim"
)

var errUnsupported = errors.New("unsupported outside the extract-to-stdout scenario")

// Backend writes one file's unnamed-stream content to an io.Writer,
// os.Stdout by default.
type Backend struct {
	Writer io.Writer
}

// New constructs a stdout backend writing to os.Stdout.
func New() *Backend {
	return &Backend{Writer: os.Stdout}
}

// Start is a no-op: there is no target directory to prepare.
func (b *Backend) Start(target string, ctx *apply.Context) error {
	return nil
}

// Capabilities reports none: this backend materializes no directory
// structure and has no attribute, link, or stream primitive beyond the
// single unnamed-stream write it exists for.
func (b *Backend) Capabilities() apply.Capabilities {
	return apply.Capabilities{}
}

// Options reports the zero value: path-handling policy is irrelevant
// when there is exactly one stream and no path is constructed for it.
func (b *Backend) Options() apply.Options {
	return apply.Options{}
}

// TargetIsRoot always reports false.
func (b *Backend) TargetIsRoot(path string) bool {
	return false
}

func (b *Backend) CreateDirectory(path string, ctx *apply.Context) error { return errUnsupported }
func (b *Backend) CreateFile(path string, ctx *apply.Context) error      { return errUnsupported }
func (b *Backend) CreateHardLink(oldPath, newPath string, ctx *apply.Context) error {
	return errUnsupported
}
func (b *Backend) CreateSymlink(target, link string, ctx *apply.Context) error {
	return errUnsupported
}

// ExtractUnnamedStream writes stream to the backend's writer. path is
// ignored: the stdout scenario names no filesystem path.
func (b *Backend) ExtractUnnamedStream(path string, stream io.Reader, size uint64, ctx *apply.Context) error {
	if stream == nil {
		return nil
	}
	if _, err := io.Copy(b.Writer, stream); err != nil {
		return errors.Wrap(err, "unable to write stream content to stdout")
	}
	return nil
}

func (b *Backend) ExtractNamedStream(path, name string, stream io.Reader, size uint64, ctx *apply.Context) error {
	return errUnsupported
}

func (b *Backend) ExtractEncryptedStream(path string, stream io.Reader, size uint64, ctx *apply.Context) error {
	return errUnsupported
}

func (b *Backend) SetReparseData(path string, buf []byte, ctx *apply.Context) error {
	return errUnsupported
}

func (b *Backend) SetFileAttributes(path string, attr wim.Attr, ctx *apply.Context) error {
	return errUnsupported
}

func (b *Backend) SetShortName(path, name string, ctx *apply.Context) error {
	return errUnsupported
}

func (b *Backend) SetSecurityDescriptor(path string, descriptor []byte, ctx *apply.Context, strict bool) error {
	return errUnsupported
}

func (b *Backend) SetUnixData(path string, data wim.UnixData, ctx *apply.Context) error {
	return errUnsupported
}

func (b *Backend) SetTimestamps(path string, creation, modified, accessed wim.Timestamp, ctx *apply.Context) error {
	return errUnsupported
}

// Abort is a no-op: a partially written stdout stream can't be rolled
// back, so there is nothing to do.
func (b *Backend) Abort(ctx *apply.Context) error {
	return nil
}

// Finish is a no-op.
func (b *Backend) Finish(ctx *apply.Context) error {
	return nil
}
