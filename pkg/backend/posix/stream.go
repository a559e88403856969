package posix

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/wimlib-go/wimapply/pkg/apply"
)

// ExtractUnnamedStream writes stream to path's regular content, the
// file the Skeleton Materializer already created empty.
func (b *Backend) ExtractUnnamedStream(path string, stream io.Reader, size uint64, ctx *apply.Context) error {
	return writeStream(path, stream)
}

// ExtractNamedStream always fails: a POSIX filesystem has no concept of
// a named data stream attached to a file. The Feature Matcher only warns
// about named data streams, and with Capabilities.NamedDataStreams false
// neither the Stream Index nor the Skeleton Materializer sends one here,
// so this path is unreachable for a correctly driven engine; it errors defensively
// rather than silently losing the content if it is ever called anyway.
func (b *Backend) ExtractNamedStream(path, name string, stream io.Reader, size uint64, ctx *apply.Context) error {
	return errors.Errorf("named data stream %q is not supported on a POSIX backend", name)
}

// ExtractEncryptedStream writes stream to path as plain content: a
// POSIX filesystem has no EFS-equivalent encrypted-file primitive, so
// Capabilities.EncryptedFiles is false and the Stream Extractor already
// routes encrypted files through ExtractUnnamedStream instead of here.
func (b *Backend) ExtractEncryptedStream(path string, stream io.Reader, size uint64, ctx *apply.Context) error {
	return writeStream(path, stream)
}

func writeStream(path string, stream io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, defaultFileMode)
	if err != nil {
		return errors.Wrap(err, "unable to open file for writing")
	}
	defer f.Close()
	if _, err := io.Copy(f, stream); err != nil {
		return errors.Wrap(err, "unable to write stream content")
	}
	return nil
}
