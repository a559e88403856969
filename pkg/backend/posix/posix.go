// Package posix implements apply.Backend against an ordinary POSIX
// filesystem using only the primitives every such filesystem offers:
// directories, regular files, hard links, and symlinks. It carries no
// named data streams, no NT security descriptors, no short names, and
// no native reparse points — a reparse point materializes as a real
// symlink when the engine can decode its target, or as the plain
// directory/file the Skeleton Materializer already created otherwise.
package posix

import (
	"os"

	"github.com/pkg/errors"

	"github.com/wimlib-go/wimapply/pkg/apply"
)

// defaultDirectoryMode and defaultFileMode are the permission bits a
// freshly created entry gets before SetUnixData (if present) or the
// Finalizer's later calls narrow them down. They err permissive since a
// restrictive mode on a directory would block the extractor's own
// subsequent writes into it.
const (
	defaultDirectoryMode = 0755
	defaultFileMode      = 0644
)

// Backend materializes an image tree under a single POSIX directory.
type Backend struct {
	target string
}

// New constructs a POSIX backend. It has no configuration: every policy
// decision a POSIX filesystem actually offers (ownership, mode,
// timestamps) is driven by the image's own UNIX data and timestamps,
// applied via the Finalizer.
func New() *Backend {
	return &Backend{}
}

// Start creates the target directory if it does not already exist, or
// verifies it is a directory if it does.
func (b *Backend) Start(target string, ctx *apply.Context) error {
	b.target = target
	info, err := os.Lstat(target)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(target, defaultDirectoryMode); mkErr != nil {
			return errors.Wrap(mkErr, "unable to create extraction target directory")
		}
		return nil
	} else if err != nil {
		return errors.Wrap(err, "unable to query extraction target")
	}
	if !info.IsDir() {
		return errors.New("extraction target exists and is not a directory")
	}
	return nil
}

// Capabilities reports what a POSIX filesystem actually supports: hard
// links, and symlinks standing in for the subset of reparse points that
// are true symlinks. UNIX owner/group/mode data round-trips when the
// image carries it. Everything Windows-specific — named streams,
// encrypted files, short names, security descriptors, the archive/
// hidden/system/sparse/compressed attribute bits, case-sensitive
// filenames as a guaranteed property — is unsupported.
func (b *Backend) Capabilities() apply.Capabilities {
	return apply.Capabilities{
		HardLinks:              true,
		SymlinkReparsePoints:   true,
		UnixData:               true,
		CaseSensitiveFilenames: true,
	}
}

// Options reports this backend's path-handling policy: forward-slash
// paths, no forbidden characters beyond NUL and the separator itself
// (neither of which a single dentry name can ever carry), and no
// trailing space/period restriction, since both are ordinary valid
// POSIX filename bytes.
func (b *Backend) Options() apply.Options {
	return apply.Options{
		PathSeparator: '/',
	}
}

// TargetIsRoot always reports false: a POSIX backend has no special
// handling for the extraction root distinct from any other directory
// (spec section 4.4's Open Question 2 only matters for backends that
// set Options.RootDirectoryIsSpecial, which this one does not).
func (b *Backend) TargetIsRoot(path string) bool {
	return false
}

// CreateDirectory creates an empty directory at path.
func (b *Backend) CreateDirectory(path string, ctx *apply.Context) error {
	if err := os.Mkdir(path, defaultDirectoryMode); err != nil {
		return errors.Wrap(err, "unable to create directory")
	}
	return nil
}

// CreateFile creates an empty regular file at path.
func (b *Backend) CreateFile(path string, ctx *apply.Context) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return errors.Wrap(err, "unable to create file")
	}
	return f.Close()
}

// CreateHardLink links newPath to the same inode as oldPath.
func (b *Backend) CreateHardLink(oldPath, newPath string, ctx *apply.Context) error {
	if err := os.Link(oldPath, newPath); err != nil {
		return errors.Wrap(err, "unable to create hard link")
	}
	return nil
}

// CreateSymlink creates a symlink at link pointing at target, verbatim.
// The Reparse Rewriter has already applied RPFIX and converted the
// NT-style backslash path to forward slashes before calling this.
func (b *Backend) CreateSymlink(target, link string, ctx *apply.Context) error {
	if err := os.Symlink(target, link); err != nil {
		return errors.Wrap(err, "unable to create symlink")
	}
	return nil
}

// Abort is a no-op: every entry this backend creates is created
// directly at its final path, so there is nothing staged to roll back.
func (b *Backend) Abort(ctx *apply.Context) error {
	return nil
}

// Finish is a no-op: this backend has no batched or deferred work.
func (b *Backend) Finish(ctx *apply.Context) error {
	return nil
}
