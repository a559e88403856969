package wim

import "strings"

// FoldName produces a case-insensitive comparison key for a filename. This
// is an approximation of NTFS upcase-table folding; it is sufficient for
// collision detection against a case-insensitive backend.
func FoldName(name string) string {
	return strings.ToUpper(name)
}

// Attr is the Windows file attribute bitmask carried on an Inode.
type Attr uint32

// Attribute bits, matching the subset of Windows FILE_ATTRIBUTE_* values the
// extraction engine reasons about.
const (
	AttrReadonly Attr = 1 << iota
	AttrHidden
	AttrSystem
	_ // reserved (volume label)
	AttrDirectory
	AttrArchive
	_ // reserved (device)
	AttrNormal
	AttrTemporary
	AttrSparseFile
	AttrReparsePoint
	AttrCompressed
	_ // reserved (offline)
	_ // reserved (not content indexed)
	AttrEncrypted
)

// Reparse tags the engine understands; other tags are passed through
// set_reparse_data unmodified and are never subject to fixup.
const (
	ReparseTagSymlink    uint32 = 0xA000000C
	ReparseTagMountPoint uint32 = 0xA0000003
)

// ReparsePointMaxSize bounds the size of a (re-)serialized reparse buffer.
const ReparsePointMaxSize = 16384

// Timestamp is a Windows NT timestamp: 100-nanosecond ticks since
// 1601-01-01T00:00:00Z.
type Timestamp uint64

// ntEpochOffsetSeconds is the number of seconds between the NT epoch
// (1601-01-01) and the Unix epoch (1970-01-01).
const ntEpochOffsetSeconds = 11644473600

// UnixTime converts an NT timestamp to Unix seconds and nanoseconds.
func (t Timestamp) UnixTime() (sec int64, nsec int64) {
	ticks := int64(t)
	sec = ticks/10000000 - ntEpochOffsetSeconds
	nsec = (ticks % 10000000) * 100
	return
}

// UnixData is the optional UNIX owner/group/mode metadata an inode may
// carry (set by wimlib's UNIX-data extension, consumed only when the
// UNIX_DATA flag is active and the backend supports it).
type UnixData struct {
	UID  uint32
	GID  uint32
	Mode uint32
}

// AlternateStream is one named data stream ("ADS") attached to an inode.
type AlternateStream struct {
	Name   string
	Stream StreamReference
}

// Inode holds the metadata shared by one or more dentries forming a
// hard-link group.
type Inode struct {
	Attributes Attr

	CreationTime   Timestamp
	LastWriteTime  Timestamp
	LastAccessTime Timestamp

	// SecurityID indexes the image's security descriptor table, or -1 if
	// the inode carries no security descriptor.
	SecurityID int32

	// ReparseTag is meaningful only when AttrReparsePoint is set.
	ReparseTag uint32

	// Unix is non-nil when the inode carries UNIX owner/group/mode data.
	Unix *UnixData

	// Unnamed is the inode's primary (unnamed) data stream.
	Unnamed StreamReference
	// ADS lists the inode's named alternate data streams.
	ADS []AlternateStream

	// NumberOfLinks is the hard-link count: the number of dentries sharing
	// this inode.
	NumberOfLinks uint32
	// Dentries is the hard-link group; len(Dentries) == NumberOfLinks.
	Dentries []*Dentry

	// --- transient fields, owned by the extractor, reset between operations ---

	// Visited marks that a previous dentry in this hard-link group has
	// already been processed during the current Stream Index enumeration
	// pass (spec section 4.3: "first visit wins").
	Visited bool
	// ExtractedFile is the path at which a previous dentry in this
	// hard-link group was already materialized, or empty if none has been
	// yet (spec section 4.4 step 2).
	ExtractedFile string
	// ReparseFixed marks that this inode's reparse buffer has already been
	// rewritten by the Reparse Rewriter during this operation.
	ReparseFixed bool
}

// IsDirectory reports whether the inode represents a directory.
func (i *Inode) IsDirectory() bool { return i.Attributes&AttrDirectory != 0 }

// IsReparsePoint reports whether the inode carries reparse data.
func (i *Inode) IsReparsePoint() bool { return i.Attributes&AttrReparsePoint != 0 }

// IsSymbolicLink reports whether the inode is a reparse point specifically
// tagged as a symbolic link.
func (i *Inode) IsSymbolicLink() bool {
	return i.IsReparsePoint() && i.ReparseTag == ReparseTagSymlink
}

// IsJunction reports whether the inode is a reparse point tagged as an NTFS
// junction (mount point).
func (i *Inode) IsJunction() bool {
	return i.IsReparsePoint() && i.ReparseTag == ReparseTagMountPoint
}

// IsEncrypted reports whether the inode's content is encrypted (EFS).
func (i *Inode) IsEncrypted() bool { return i.Attributes&AttrEncrypted != 0 }

// HasShortName reports whether the inode's dentries carry a DOS short name.
// Short names live on dentries, not inodes, but an inode is considered to
// "use" the feature if any dentry in its group does.
func (i *Inode) HasShortName() bool {
	for _, d := range i.Dentries {
		if d.ShortName != "" {
			return true
		}
	}
	return false
}

// Reset clears every transient field on i, matching the reset-between-
// operations invariant of spec section 3.
func (i *Inode) Reset() {
	i.Visited = false
	i.ExtractedFile = ""
	i.ReparseFixed = false
}
