package posix

import (
	"os"

	"github.com/pkg/errors"

	"github.com/wimlib-go/wimapply/pkg/apply"
	"github.com/wimlib-go/wimapply/pkg/wim"
)

// writeBits is every write permission bit across user/group/other.
const writeBits = 0222

// stripWriteBits clears every write permission bit, mirroring a
// read-only file: the same narrow, single-purpose bit-mask style as
// pkg/sync/permission.go's stripExecutableBits.
func stripWriteBits(mode os.FileMode) os.FileMode {
	return mode &^ writeBits
}

// SetReparseData always fails: Capabilities.ReparsePoints is false, so
// the Reparse Rewriter never calls this on a POSIX backend — a reparse
// point either becomes a real symlink via CreateSymlink or is left as
// the plain directory/file already on disk.
func (b *Backend) SetReparseData(path string, buf []byte, ctx *apply.Context) error {
	return errors.New("native reparse data is not supported on a POSIX backend")
}

// SetFileAttributes maps FILE_ATTRIBUTE_READONLY to clearing every
// write permission bit. Every other Windows attribute bit (hidden,
// system, archive, sparse, compressed) has no POSIX mode-bit
// equivalent; a dotfile-style rename for FILE_ATTRIBUTE_HIDDEN is
// deliberately not attempted here, since that would corrupt the name
// the Path & Name Resolver already settled on.
func (b *Backend) SetFileAttributes(path string, attr wim.Attr, ctx *apply.Context) error {
	if attr&wim.AttrReadonly == 0 {
		return nil
	}
	info, err := os.Lstat(path)
	if err != nil {
		return errors.Wrap(err, "unable to stat target for mode")
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}
	if err := os.Chmod(path, stripWriteBits(info.Mode())); err != nil {
		return errors.Wrap(err, "unable to clear write permission bits")
	}
	return nil
}

// SetShortName always fails: Capabilities.ShortNames is false, so the
// Skeleton Materializer never calls this.
func (b *Backend) SetShortName(path, name string, ctx *apply.Context) error {
	return errors.New("short names are not supported on a POSIX backend")
}

// SetSecurityDescriptor always fails: Capabilities.SecurityDescriptors
// is false, so the Finalizer never calls this.
func (b *Backend) SetSecurityDescriptor(path string, descriptor []byte, ctx *apply.Context, strict bool) error {
	return errors.New("security descriptors are not supported on a POSIX backend")
}
