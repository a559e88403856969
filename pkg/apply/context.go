package apply

import (
	"github.com/google/uuid"

	"github.com/wimlib-go/wimapply/pkg/logging"
	"github.com/wimlib-go/wimapply/pkg/wim"
)

// StreamDescriptor is an alias for wim.StreamDescriptor, so the rest of
// this package can refer to it without a package qualifier on every use.
type StreamDescriptor = wim.StreamDescriptor

// Context is the operation's value: constructed at entry to ExtractTree,
// destroyed on return, and never shared across threads (spec section 3).
type Context struct {
	progressState

	// id is embedded in this operation's temp-file spill names, allowing
	// multiple concurrent operations (distinct Contexts, distinct WIM
	// handles) to run without colliding on os.TempDir() (spec section 5;
	// domain stack: github.com/google/uuid).
	id uuid.UUID

	// Root is the image tree's root dentry.
	Root *wim.Dentry
	// Target is the extraction target path as given by the caller.
	Target string
	// RealTarget is Target's realpath when the caller supplies it. Nothing
	// in this package resolves or assigns it; while it is empty, paths for
	// a RequiresRealTargetInPaths backend are built from Target, and RPFIX
	// does not re-root a fixed-up absolute link target under it.
	RealTarget string

	Flags        Flags
	linkMode     LinkMode
	Backend      Backend
	capabilities Capabilities
	options      Options

	Reader   wim.StreamReader
	Metadata wim.ImageMetadata
	Security wim.SecurityData

	// Catalog maps every stream hash known ahead of time (from the WIM
	// container's blob table) to its descriptor. Populated by the caller
	// in random-access and sequential modes; left nil in pipe mode, where
	// no upfront blob table is available and the Stream Index instead
	// synthesizes descriptors as it encounters each hash for the first
	// time (spec section 4.3).
	Catalog map[wim.SHA1]*StreamDescriptor

	Logger *logging.Logger

	// streamListHead is the head of the Stream Index's singly-linked list
	// of selected descriptors, threaded through each StreamDescriptor's
	// Next/SetNext link.
	streamListHead *StreamDescriptor

	// synthesized holds pipe-mode descriptors the Stream Index has
	// created on the fly, keyed by hash, so a second dentry referencing
	// the same content within the same operation resolves to the same
	// descriptor instead of creating a duplicate.
	synthesized map[wim.SHA1]*StreamDescriptor

	// contentLinks records, for LinkModeHardLink/LinkModeSymlink, the
	// first materialized path for each distinct unnamed-stream hash, so
	// the Skeleton Materializer can link later dentries with identical
	// content (even across unrelated inodes) to it instead of writing an
	// independent copy (spec section 4.4 step 1).
	contentLinks map[wim.SHA1]string

	// invalidNameSequence is the monotonically increasing counter used to
	// suffix renamed-invalid filenames ("... (invalid filename #N)"),
	// spec section 8.
	invalidNameSequence int

	// tempFiles tracks spill files created during sequential/pipe
	// extraction so they can be unlinked on every exit path (spec
	// section 5).
	tempFiles []string

	// visitedDentries is used by sequential per-descriptor dispatch to
	// avoid extracting the same dentry twice when a descriptor's
	// back-pointer list contains duplicate (name, stream) references
	// (spec section 4.5).
	visitedDentries map[*wim.Dentry]bool
}

// NewContext constructs an operation's Context. It validates flags and
// resets any transient state left over from a prior operation on the same
// tree (spec section 8, P6); the backend's capabilities and options are
// probed later, by Start.
func NewContext(root *wim.Dentry, target string, flags Flags, backend Backend, reader wim.StreamReader, metadata wim.ImageMetadata, security wim.SecurityData, catalog map[wim.SHA1]*StreamDescriptor, progress ProgressFunc, logger *logging.Logger) (*Context, error) {
	if err := ValidateFlags(flags); err != nil {
		return nil, err
	}

	// Pipe-mode sequential extraction with UNIX_DATA would need to
	// buffer every stream until its owning dentry's ownership/mode can
	// be applied, which the pipe strategy doesn't do; rather than fail
	// a combination the non-pipe modes both support, downgrade to
	// random-access ordering and warn (spec section 9, Open Question 1).
	if flags.Has(FlagFromPipe) && flags.Has(FlagSequential) && flags.Has(FlagUnixData) {
		flags &^= FlagSequential
		logger.Warnf("unix data extraction from a pipe requires buffering; disabling sequential extraction order")
	}

	ctx := &Context{
		id:       uuid.New(),
		Root:     root,
		Target:   target,
		Flags:    flags,
		linkMode: flags.linkMode(),
		Backend:  backend,
		Reader:   reader,
		Metadata: metadata,
		Security: security,
		Catalog:  catalog,
		Logger:   logger,
	}
	ctx.progressState.callback = progress

	resetTransientState(root)

	return ctx, nil
}

// Start probes backend capabilities/options and invokes Backend.Start. It
// is separate from NewContext so that ExtractTree can run the Path & Name
// Resolver and Feature Matcher against the probed capabilities before
// touching the target filesystem.
func (c *Context) Start() error {
	c.capabilities = c.Backend.Capabilities()
	c.options = c.Backend.Options()
	return c.Backend.Start(c.Target, c)
}

// Capabilities reports the backend's probed capability set.
func (c *Context) Capabilities() Capabilities { return c.capabilities }

// Options reports the backend's probed path-handling options.
func (c *Context) Options() Options { return c.options }

// LinkMode reports the effective link mode derived from c.Flags.
func (c *Context) LinkMode() LinkMode { return c.linkMode }

// nextInvalidNameSuffix returns the next monotonically increasing sequence
// number for a renamed-invalid filename.
func (c *Context) nextInvalidNameSuffix() int {
	c.invalidNameSequence++
	return c.invalidNameSequence
}

// pushStreamDescriptor links d onto the operation's stream list, called on
// the 0->1 out-reference-count transition (spec section 4.3).
func (c *Context) pushStreamDescriptor(d *StreamDescriptor) {
	d.SetNext(c.streamListHead)
	c.streamListHead = d
}

// streamDescriptors returns the operation's selected descriptors as a
// slice, in link order (most-recently-selected first; callers that need
// archive-offset order sort this slice themselves, per spec section 4.5).
func (c *Context) streamDescriptors() []*StreamDescriptor {
	var out []*StreamDescriptor
	for d := c.streamListHead; d != nil; d = d.Next() {
		out = append(out, d)
	}
	return out
}

// recordTempFile registers a spill file for cleanup on operation exit.
func (c *Context) recordTempFile(path string) {
	c.tempFiles = append(c.tempFiles, path)
}

// Teardown releases every resource the operation owns: stream list
// back-pointer arrays, transient dentry/inode flags, recorded
// extracted-file strings, and any temp-file spills, regardless of whether
// the operation succeeded (spec section 5 invariant). Callers must invoke
// it exactly once, on every exit path.
func (c *Context) Teardown() {
	for d := c.streamListHead; d != nil; {
		next := d.Next()
		d.ResetBookkeeping()
		d = next
	}
	c.streamListHead = nil

	for _, path := range c.tempFiles {
		removeTempFileBestEffort(path, c.Logger)
	}
	c.tempFiles = nil
	c.synthesized = nil
	c.contentLinks = nil

	resetTransientState(c.Root)
}

// resetTransientState walks the tree clearing every transient dentry and
// inode field, ensuring no state leaks between operations (spec sections
// 3, 5, 8 P6).
func resetTransientState(root *wim.Dentry) {
	if root == nil {
		return
	}
	var walk func(d *wim.Dentry)
	visitedInodes := make(map[*wim.Inode]bool)
	walk = func(d *wim.Dentry) {
		d.Reset()
		if d.Inode != nil && !visitedInodes[d.Inode] {
			d.Inode.Reset()
			visitedInodes[d.Inode] = true
		}
		for _, child := range d.Children {
			walk(child)
		}
	}
	walk(root)
}
