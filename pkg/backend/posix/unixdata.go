package posix

import (
	"os"
	"time"

	"github.com/mutagen-io/extstat"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/wimlib-go/wimapply/pkg/apply"
	"github.com/wimlib-go/wimapply/pkg/wim"
)

// unixPermissionsMask isolates the permission bits of a UnixData.Mode
// value, mirroring filesystem.ModePermissionsMask: a captured mode may
// carry file-type bits (S_IFREG, S_IFLNK, ...) alongside the
// permissions, and only the latter are meaningful to pass to Chmod.
const unixPermissionsMask = unix.S_IRWXU | unix.S_IRWXG | unix.S_IRWXO

// SetUnixData applies the image's captured owner, group, and permission
// bits via Lchown and Chmod. Ownership is set before permissions, same
// order as filesystem.SetPermissionsByPath, since a Chown can clear the
// setuid/setgid bits a preceding Chmod set.
func (b *Backend) SetUnixData(path string, data wim.UnixData, ctx *apply.Context) error {
	if err := os.Lchown(path, int(data.UID), int(data.GID)); err != nil {
		return errors.Wrap(err, "unable to set ownership")
	}

	info, err := os.Lstat(path)
	if err != nil {
		return errors.Wrap(err, "unable to stat target for mode")
	}
	if info.Mode()&os.ModeSymlink != 0 {
		// Permission bits on a symlink itself are not meaningful on
		// Linux and not settable at all on most POSIX systems.
		return nil
	}
	if err := os.Chmod(path, os.FileMode(data.Mode&unixPermissionsMask)); err != nil {
		return errors.Wrap(err, "unable to set permission bits")
	}
	return nil
}

// SetTimestamps applies modification and access times via UtimesNanoAt
// with AT_SYMLINK_NOFOLLOW, so a symlink's own timestamps are set
// rather than its target's. Creation ("birth") time has no POSIX setter
// — utimensat can't touch it on any platform this backend targets — so
// it is only ever compared, not applied: once the write lands, a
// best-effort extstat read reports how far off the result is, purely
// for diagnostic logging, matching the way the teacher's own
// extstat-based idle check in pkg/housekeeping tolerates a birth time
// that may not be available at all.
func (b *Backend) SetTimestamps(path string, creation, modified, accessed wim.Timestamp, ctx *apply.Context) error {
	modSec, modNsec := modified.UnixTime()
	accSec, accNsec := accessed.UnixTime()

	ts := []unix.Timespec{
		unix.NsecToTimespec(accSec*int64(time.Second) + accNsec),
		unix.NsecToTimespec(modSec*int64(time.Second) + modNsec),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return errors.Wrap(err, "unable to set timestamps")
	}

	if stat, err := extstat.NewFromFileName(path); err == nil {
		creationSec, creationNsec := creation.UnixTime()
		wanted := time.Unix(creationSec, creationNsec)
		if !stat.CreationTime.IsZero() && stat.CreationTime.Before(wanted) {
			ctx.Logger.Warnf("creation time for %q could not be honored (platform has no setter); left at %v, wanted %v", path, stat.CreationTime, wanted)
		}
	}
	return nil
}
