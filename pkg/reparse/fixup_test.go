package reparse

import "testing"

func TestFixupStripsDevicePrefix(t *testing.T) {
	b := &Buffer{
		Tag:            TagSymlink,
		SubstituteName: `\??\C:\Users\test\target.txt`,
		PrintName:      `C:\Users\test\target.txt`,
	}

	if changed := Fixup(b); !changed {
		t.Fatal("expected Fixup to report a change")
	}
	if b.SubstituteName != `\Users\test\target.txt` {
		t.Errorf("substitute name not volume-relative: %q", b.SubstituteName)
	}
	// PrintName here carries no \??\ device prefix (the common real-world
	// shape: the substitute name is the NT-namespace path, the print name
	// is already the friendly drive-letter form), so Fixup leaves it
	// untouched.
	if b.PrintName != `C:\Users\test\target.txt` {
		t.Errorf("print name unexpectedly modified: %q", b.PrintName)
	}
}

func TestFixupStripsBothNamesWhenBothCarryThePrefix(t *testing.T) {
	b := &Buffer{
		Tag:            TagSymlink,
		SubstituteName: `\??\C:\Users\test\target.txt`,
		PrintName:      `\??\C:\Users\test\target.txt`,
	}

	if changed := Fixup(b); !changed {
		t.Fatal("expected Fixup to report a change")
	}
	if b.SubstituteName != `\Users\test\target.txt` {
		t.Errorf("substitute name not volume-relative: %q", b.SubstituteName)
	}
	if b.PrintName != `\Users\test\target.txt` {
		t.Errorf("print name not volume-relative: %q", b.PrintName)
	}
}

func TestFixupLeavesRelativeTargetsAlone(t *testing.T) {
	b := &Buffer{
		Tag:            TagSymlink,
		SubstituteName: `..\sibling\target.txt`,
		PrintName:      `..\sibling\target.txt`,
		IsRelative:     true,
	}

	if changed := Fixup(b); changed {
		t.Fatal("expected Fixup to report no change for an already-relative target")
	}
	if b.SubstituteName != `..\sibling\target.txt` {
		t.Errorf("substitute name was unexpectedly modified: %q", b.SubstituteName)
	}
}

func TestFixupMountPoint(t *testing.T) {
	b := &Buffer{
		Tag:            TagMountPoint,
		SubstituteName: `\??\Volume{11111111-2222-3333-4444-555555555555}\`,
		PrintName:      `D:\`,
	}

	// A volume GUID path has no drive-letter component, so stripDriveRoot
	// should leave it untouched even though it carries the device prefix.
	changed := Fixup(b)
	if changed {
		t.Error("expected no change for a non-drive-letter device path")
	}
}
