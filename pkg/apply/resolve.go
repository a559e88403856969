package apply

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/wimlib-go/wimapply/pkg/wim"
)

// resolvePaths is the Path & Name Resolver (spec section 4.1). It walks
// every dentry other than the extraction root, validating and sanitizing
// its filename, detecting case conflicts, and assigning ComputedName. A
// dentry marked Skipped has its entire subtree marked Skipped too, so later
// passes never need to check ancestors.
func resolvePaths(ctx *Context) error {
	return resolveChildren(ctx, ctx.Root)
}

// resolveChildren resolves every child of parent, tracking case-insensitive
// name claims across siblings so that, absent ALL_CASE_CONFLICTS, the
// first dentry to claim a folded name wins and later ones are skipped
// (spec section 8: "default skips the second").
func resolveChildren(ctx *Context, parent *wim.Dentry) error {
	var claimed map[string]bool
	if !ctx.capabilities.CaseSensitiveFilenames {
		claimed = make(map[string]bool, len(parent.Children))
	}

	for _, child := range parent.Children {
		if err := resolveDentry(ctx, child, claimed); err != nil {
			return err
		}
	}
	return nil
}

// resolveDentry applies the checks of spec section 4.1, steps (a)-(e), to
// a single dentry, then recurses into its children if it wasn't skipped.
func resolveDentry(ctx *Context, d *wim.Dentry, claimed map[string]bool) error {
	// (b) Drop "." and ".." entries with a warning.
	if d.Name == "." || d.Name == ".." {
		ctx.Logger.Warnf("dropping dot entry %q", d.Name)
		skipSubtree(d)
		return nil
	}

	// (a) Subtree-skip when the inode declares a feature the backend
	// can't represent at all.
	if reason, unsupported := unsupportedInodeFeature(ctx.capabilities, d.Inode); unsupported {
		ctx.Logger.Warnf("skipping %q: %s", d.Name, reason)
		skipSubtree(d)
		return nil
	}

	// (c) Case-insensitive collision detection, using the precomputed
	// conflict list so we don't rescan siblings here.
	if claimed != nil && len(d.CaseConflicts) > 0 {
		key := foldNameForConflict(d.Name)
		if claimed[key] {
			if ctx.Flags.Has(FlagAllCaseConflicts) {
				d.Name = renameInvalid(ctx, d.Name)
			} else {
				ctx.Logger.Warnf("skipping %q: case-insensitive name conflict", d.Name)
				skipSubtree(d)
				return nil
			}
		} else {
			claimed[key] = true
		}
	}

	// (d) Validate characters against the backend's forbidden set.
	name, ok := sanitizeName(ctx, d.Name)
	if !ok {
		ctx.Logger.Warnf("skipping %q: invalid filename", d.Name)
		skipSubtree(d)
		return nil
	}

	// (e) Transcode the valid name to the backend's path vocabulary.
	d.ComputedName = norm.NFC.String(name)

	return resolveChildren(ctx, d)
}

// skipSubtree marks d and every descendant as skipped, so that later
// passes (Feature Matcher, Stream Index, Skeleton Materializer, ...) never
// need to check ancestors to know whether a dentry is live.
func skipSubtree(d *wim.Dentry) {
	d.Skipped = true
	for _, child := range d.Children {
		skipSubtree(child)
	}
}

// foldNameForConflict produces the case-insensitive comparison key used
// for conflict detection; delegated to the wim package so the Resolver
// uses the same fold semantics as wim.BuildCaseConflicts.
func foldNameForConflict(name string) string {
	return wim.FoldName(name)
}

// unsupportedInodeFeature implements spec section 4.1(a): reparse points
// the backend has no way at all to represent (neither as native reparse
// data nor as a realized native symlink) force a subtree skip. Encrypted
// files are handled per-stream in the extractor (section 4.5), not here,
// since the tree can still be materialized (minus content).
func unsupportedInodeFeature(caps Capabilities, inode *wim.Inode) (string, bool) {
	if inode == nil || !inode.IsReparsePoint() {
		return "", false
	}
	switch {
	case inode.IsSymbolicLink():
		if !caps.ReparsePoints && !caps.SymlinkReparsePoints {
			return "symbolic links are not supported by this backend", true
		}
	case inode.IsJunction():
		if !caps.ReparsePoints && !caps.SymlinkReparsePoints {
			return "junctions are not supported by this backend", true
		}
	default:
		if !caps.ReparsePoints {
			return "reparse points are not supported by this backend", true
		}
	}
	return "", false
}

// sanitizeName validates name against the backend's forbidden-character
// set. If it's already valid, it's returned unmodified. If invalid and
// REPLACE_INVALID_FILENAMES is set, invalid characters are replaced with
// U+FFFD and a monotonically increasing "(invalid filename #N)" suffix is
// appended (spec section 8); otherwise the caller should skip the dentry.
func sanitizeName(ctx *Context, name string) (string, bool) {
	if isValidName(ctx.options, name) {
		return name, true
	}
	if !ctx.Flags.Has(FlagReplaceInvalidFilenames) {
		return "", false
	}
	replaced := replaceInvalidChars(ctx.options, name)
	n := ctx.nextInvalidNameSuffix()
	return fmt.Sprintf("%s (invalid filename #%d)", replaced, n), true
}

// renameInvalid produces a conflict-avoiding rename for ALL_CASE_CONFLICTS,
// reusing the same "(invalid filename #N)" suffix scheme as sanitizeName so
// a single monotonically increasing counter covers both cases, matching
// the single invalid-name-sequence counter on ApplyContext (spec section
// 3).
func renameInvalid(ctx *Context, name string) string {
	n := ctx.nextInvalidNameSuffix()
	return fmt.Sprintf("%s (invalid filename #%d)", name, n)
}

// isValidName reports whether name contains no characters forbidden by
// the backend's path vocabulary (spec section 4.1(d)).
func isValidName(opts Options, name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r == 0 {
			return false
		}
		for _, forbidden := range opts.ForbiddenNameCharacters {
			if r == forbidden {
				return false
			}
		}
	}
	if opts.ForbidTrailingSpaceOrPeriod {
		last := name[len(name)-1]
		if last == ' ' || last == '.' {
			return false
		}
	}
	return true
}

// replaceInvalidChars substitutes U+FFFD for every character forbidden by
// the backend's path vocabulary.
func replaceInvalidChars(opts Options, name string) string {
	runes := []rune(name)
	for i, r := range runes {
		if r == 0 {
			runes[i] = '�'
			continue
		}
		for _, forbidden := range opts.ForbiddenNameCharacters {
			if r == forbidden {
				runes[i] = '�'
				break
			}
		}
	}
	if opts.ForbidTrailingSpaceOrPeriod && len(runes) > 0 {
		last := runes[len(runes)-1]
		if last == ' ' || last == '.' {
			runes[len(runes)-1] = '�'
		}
	}
	return string(runes)
}

// computePath assembles the full backend path for d: optional backend
// prefix, optional target or realtarget, then separator-joined computed
// names from the extraction root downward (spec section 4.1, "Path
// construction"). It returns ok=false if the result would exceed the
// backend's MaxPathLength, which callers must treat as a skip (with
// warning), not an error.
func computePath(ctx *Context, d *wim.Dentry) (string, bool) {
	var components []string
	for n := d; n != nil && !n.IsRoot(); n = n.Parent {
		components = append(components, n.ComputedName)
	}
	// Reverse into root-to-leaf order.
	for i, j := 0, len(components)-1; i < j; i, j = i+1, j-1 {
		components[i], components[j] = components[j], components[i]
	}

	base := ctx.Target
	if ctx.options.RequiresRealTargetInPaths && ctx.RealTarget != "" {
		base = ctx.RealTarget
	}

	path := pathJoin(ctx.options.PathPrefix+base, separatorOrDefault(ctx.options.PathSeparator), components...)

	if ctx.options.MaxPathLength > 0 && len(path) > ctx.options.MaxPathLength {
		ctx.Logger.Warnf("skipping %q: path exceeds backend maximum length (%d)", path, ctx.options.MaxPathLength)
		return "", false
	}
	return path, true
}

func separatorOrDefault(sep byte) byte {
	if sep == 0 {
		return '/'
	}
	return sep
}
