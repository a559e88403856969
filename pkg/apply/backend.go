package apply

import (
	"io"

	"github.com/wimlib-go/wimapply/pkg/wim"
)

// Capabilities describes what a materialization target (the "backend")
// supports. The Feature Matcher compares an image's requirements against
// this set to decide between silent application, a degradation warning, or
// a hard error.
type Capabilities struct {
	HardLinks              bool
	SymlinkReparsePoints   bool
	ReparsePoints          bool
	NamedDataStreams       bool
	EncryptedFiles         bool
	ShortNames             bool
	SecurityDescriptors    bool
	UnixData               bool
	CaseSensitiveFilenames bool
	ArchiveAttribute       bool
	HiddenAttribute        bool
	SystemAttribute        bool
	SparseAttribute        bool
	CompressedAttribute    bool
}

// Options surfaces backend path-handling policy to the core, as plain
// booleans/values rather than a subclass hierarchy (spec section 9).
type Options struct {
	// RequiresTargetInPaths indicates every materialized path must be
	// prefixed with the extraction target.
	RequiresTargetInPaths bool
	// RequiresRealTargetInPaths indicates paths must be prefixed with the
	// realpath-resolved ("real") target instead of the target as given.
	RequiresRealTargetInPaths bool
	// RootDirectoryIsSpecial indicates the backend treats the extraction
	// root itself specially (see TargetIsRoot).
	RootDirectoryIsSpecial bool
	// RealpathWorksOnNonexistingFiles indicates the backend's realpath
	// primitive tolerates a not-yet-created path component.
	RealpathWorksOnNonexistingFiles bool
	// PathPrefix is prepended to every constructed path (e.g. a Windows
	// "\\?\" long-path prefix); empty means none.
	PathPrefix string
	// PathSeparator joins path components.
	PathSeparator byte
	// MaxPathLength bounds a single constructed path; 0 means unbounded.
	MaxPathLength int

	// ForbiddenNameCharacters lists characters forbidden in a single path
	// component for this backend, beyond NUL (which is always forbidden).
	// A Win32-like backend sets this to `\/:*?"<>|`; a POSIX backend
	// leaves it empty (POSIX forbids only NUL and '/', and '/' can never
	// appear in a single dentry name to begin with).
	ForbiddenNameCharacters string
	// ForbidTrailingSpaceOrPeriod matches the Win32 naming rule that a
	// path component may not end in a space or a period.
	ForbidTrailingSpaceOrPeriod bool
}

// Backend is the vtable the extraction engine drives to materialize
// content onto a target. Concrete implementations (POSIX, Win32, NTFS-3g)
// are ordinary implementations of this interface; this package specifies
// only the interface, per spec section 6. A POSIX implementation is
// provided in pkg/backend/posix; no Win32 or NTFS-3g implementation is
// provided (see DESIGN.md) but either would plug in here unmodified.
type Backend interface {
	// Start prepares the backend to receive operations against target.
	Start(target string, ctx *Context) error

	// Capabilities reports what this backend supports.
	Capabilities() Capabilities
	// Options reports this backend's path-handling policy.
	Options() Options
	// TargetIsRoot reports whether the given path denotes the extraction
	// root itself, for backends where RootDirectoryIsSpecial is true.
	TargetIsRoot(target string) bool

	CreateDirectory(path string, ctx *Context) error
	CreateFile(path string, ctx *Context) error
	CreateHardLink(oldPath, newPath string, ctx *Context) error
	CreateSymlink(target, link string, ctx *Context) error

	ExtractUnnamedStream(path string, stream io.Reader, size uint64, ctx *Context) error
	ExtractNamedStream(path, name string, stream io.Reader, size uint64, ctx *Context) error
	ExtractEncryptedStream(path string, stream io.Reader, size uint64, ctx *Context) error

	SetReparseData(path string, buf []byte, ctx *Context) error
	SetFileAttributes(path string, attr wim.Attr, ctx *Context) error
	SetShortName(path, name string, ctx *Context) error
	SetSecurityDescriptor(path string, descriptor []byte, ctx *Context, strict bool) error
	SetUnixData(path string, data wim.UnixData, ctx *Context) error
	SetTimestamps(path string, creation, modified, accessed wim.Timestamp, ctx *Context) error

	// Abort runs when an operation unwinds due to a fatal error.
	Abort(ctx *Context) error
	// Finish runs once, after the final pass of a successful operation.
	Finish(ctx *Context) error
}
