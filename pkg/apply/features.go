package apply

import (
	"errors"

	"github.com/wimlib-go/wimapply/pkg/wim"
)

// featureTally counts, across the unskipped tree, how many dentries or
// inodes exercise each structural feature the backend might not support
// (spec section 4.2).
type featureTally struct {
	hardLinks     int
	reparsePoints int
	// reparsePointsLossy counts only the reparse points that *this*
	// backend's capability set cannot realize losslessly: a backend
	// with SymlinkReparsePoints but not the full ReparsePoints
	// primitive (e.g. POSIX) still realizes a SYMLINK-tagged inode
	// perfectly, so only non-symlink reparse points (junctions, and any
	// other tag) count against it.
	reparsePointsLossy  int
	namedDataStreams    int
	shortNames          int
	securityDescriptors int
	unixData            int
	encryptedFiles      int
}

// matchFeatures is the Feature Matcher (spec section 4.2). It walks the
// unskipped tree once, tallying structural features, then compares the
// tally against the backend's capability set: by default a missing
// capability degrades with a warning, but under the relevant STRICT_*
// flag it becomes a hard error, and an incapable backend under
// HARDLINK/SYMLINK policy is always fatal regardless of flags.
func matchFeatures(ctx *Context) error {
	if ctx.LinkMode() == LinkModeHardLink && !ctx.capabilities.HardLinks {
		return wrap(ErrUnsupported, "matchFeatures", "", errors.New("HARDLINK extraction requested but the backend does not support hard links"))
	}
	if ctx.LinkMode() == LinkModeSymlink && !ctx.capabilities.ReparsePoints && !ctx.capabilities.SymlinkReparsePoints {
		return wrap(ErrUnsupported, "matchFeatures", "", errors.New("SYMLINK extraction requested but the backend does not support symbolic links"))
	}

	caps := ctx.capabilities

	var tally featureTally
	err := walkPreOrder(ctx.Root, func(d *wim.Dentry) error {
		if d.IsRoot() || d.Inode == nil {
			return nil
		}
		inode := d.Inode
		if inode.NumberOfLinks > 1 {
			tally.hardLinks++
		}
		if inode.IsReparsePoint() {
			tally.reparsePoints++
			realizedAsSymlink := caps.SymlinkReparsePoints && inode.IsSymbolicLink()
			if !caps.ReparsePoints && !realizedAsSymlink {
				tally.reparsePointsLossy++
			}
		}
		if len(inode.ADS) > 0 {
			tally.namedDataStreams++
		}
		if d.ShortName != "" {
			tally.shortNames++
		}
		if inode.SecurityID >= 0 {
			tally.securityDescriptors++
		}
		if inode.Unix != nil {
			tally.unixData++
		}
		if inode.IsEncrypted() {
			tally.encryptedFiles++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if tally.hardLinks > 0 && !caps.HardLinks {
		ctx.Logger.Warnf("backend has no native hard-link support; %d hard-linked file(s) will be materialized as independent copies", tally.hardLinks)
	}

	if tally.namedDataStreams > 0 && !caps.NamedDataStreams {
		ctx.Logger.Warnf("backend does not support named data streams; alternate streams on %d file(s) will not be extracted", tally.namedDataStreams)
	}

	if tally.shortNames > 0 && !caps.ShortNames {
		if ctx.Flags.Has(FlagStrictShortNames) {
			return wrap(ErrUnsupported, "matchFeatures", "", errors.New("backend does not support short names, and STRICT_SHORT_NAMES was requested"))
		}
		ctx.Logger.Warnf("backend does not support short names; %d short name(s) will not be set", tally.shortNames)
	}

	if tally.securityDescriptors > 0 && !caps.SecurityDescriptors {
		if ctx.Flags.Has(FlagStrictACLs) {
			return wrap(ErrUnsupported, "matchFeatures", "", errors.New("backend does not support security descriptors, and STRICT_ACLS was requested"))
		}
		if !ctx.Flags.Has(FlagNoACLs) {
			ctx.Logger.Warnf("backend does not support security descriptors; %d descriptor(s) will not be applied", tally.securityDescriptors)
		}
	}

	if tally.reparsePointsLossy > 0 {
		if ctx.Flags.Has(FlagStrictSymlinks) {
			return wrap(ErrUnsupported, "matchFeatures", "", errors.New("backend does not fully support reparse points, and STRICT_SYMLINKS was requested"))
		}
		ctx.Logger.Warnf("backend cannot realize %d non-symlink reparse point(s) (e.g. junctions); they will be extracted as plain directories/files with reparse semantics lost", tally.reparsePointsLossy)
	}

	if tally.unixData > 0 && !caps.UnixData {
		ctx.Logger.Warnf("backend does not support UNIX owner/group/mode data; %d file(s) will keep backend-default ownership", tally.unixData)
	}

	if tally.encryptedFiles > 0 && !caps.EncryptedFiles {
		ctx.Logger.Warnf("backend has no encrypted-file primitive; %d file(s) will be extracted as plain (decrypted) content", tally.encryptedFiles)
	}

	return nil
}
