package reparse

import "strings"

// ntDevicePrefix marks an NT-namespace absolute path, e.g.
// `\??\C:\Users\foo`, as opposed to a path already relative to some
// directory.
const ntDevicePrefix = `\??\`

// Fixup rewrites an absolute, drive-rooted substitute (and print) name
// into a volume-relative path by stripping its `\??\<drive>:` prefix,
// reporting whether anything changed. It leaves relative substitute names,
// and any name not matching the recognized absolute form, untouched.
//
// This is the RPFIX transformation (spec section 4.6): a reparse point
// captured from one machine often points at an absolute path on the
// volume it was captured from (e.g. a profile junction pointing at
// `\??\C:\Users\foo\AppData`); applied verbatim under a different
// extraction target, that absolute path would dangle. Stripping the drive
// prefix leaves the caller free to re-root the remainder under the actual
// extraction target.
func Fixup(b *Buffer) bool {
	changed := false
	if rel, ok := stripDriveRoot(b.SubstituteName); ok {
		b.SubstituteName = rel
		changed = true
	}
	if rel, ok := stripDriveRoot(b.PrintName); ok {
		b.PrintName = rel
		changed = true
	}
	return changed
}

func stripDriveRoot(name string) (string, bool) {
	if !strings.HasPrefix(name, ntDevicePrefix) {
		return "", false
	}
	rest := name[len(ntDevicePrefix):]
	if len(rest) < 3 || rest[1] != ':' || rest[2] != '\\' {
		return "", false
	}
	return rest[2:], true
}
