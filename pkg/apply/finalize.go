package apply

import "github.com/wimlib-go/wimapply/pkg/wim"

// finalizeTree is the Finalizer (spec section 4.7): a depth-first
// post-order walk applying security descriptors, UNIX owner/group/mode
// data, and timestamps. Post-order matters because creating a directory's
// children, or writing content into a file under it, would otherwise bump
// its own last-write time back up after the Finalizer had already set it.
func finalizeTree(ctx *Context) error {
	if err := walkPostOrder(ctx.Root, func(d *wim.Dentry) error {
		if d.IsRoot() || d.WasLinked {
			return nil
		}
		return finalizeDentry(ctx, d)
	}); err != nil {
		return err
	}
	return finalizeRoot(ctx)
}

func finalizeDentry(ctx *Context, d *wim.Dentry) error {
	path, ok := computePath(ctx, d)
	if !ok {
		return nil
	}
	if err := applySecurityDescriptor(ctx, d, path); err != nil {
		return err
	}
	if err := applyUnixData(ctx, d, path); err != nil {
		return err
	}
	return applyTimestamps(ctx, d, path)
}

// finalizeRoot applies the same three steps to the extraction root
// itself, which materializeSkeleton never visits (the root directory is
// assumed to already exist as the backend's target).
func finalizeRoot(ctx *Context) error {
	root := ctx.Root
	if root.Inode == nil {
		return nil
	}
	path := ctx.Target
	if ctx.options.RequiresRealTargetInPaths && ctx.RealTarget != "" {
		path = ctx.RealTarget
	}
	if err := applySecurityDescriptor(ctx, root, path); err != nil {
		return err
	}
	if err := applyUnixData(ctx, root, path); err != nil {
		return err
	}
	return applyTimestamps(ctx, root, path)
}

// applySecurityDescriptor applies an inode's security descriptor, when
// present and the backend supports it. Failure degrades to a warning
// unless STRICT_ACLS was requested, and NO_ACLS skips the step entirely
// (spec section 6).
func applySecurityDescriptor(ctx *Context, d *wim.Dentry, path string) error {
	if !ctx.capabilities.SecurityDescriptors || ctx.Flags.Has(FlagNoACLs) {
		return nil
	}
	if d.Inode == nil || d.Inode.SecurityID < 0 {
		return nil
	}
	descriptor := ctx.Security.Descriptor(d.Inode.SecurityID)
	if descriptor == nil {
		return nil
	}

	strict := ctx.Flags.Has(FlagStrictACLs)
	if err := ctx.Backend.SetSecurityDescriptor(path, descriptor, ctx, strict); err != nil {
		if strict {
			return wrap(ErrWrite, "SetSecurityDescriptor", path, err)
		}
		ctx.Logger.Warnf("failed to apply security descriptor to %q: %v", path, err)
	}
	return nil
}

// applyUnixData applies UNIX owner/group/mode data when UNIX_DATA was
// requested, the backend supports it, and the inode carries it.
func applyUnixData(ctx *Context, d *wim.Dentry, path string) error {
	if !ctx.Flags.Has(FlagUnixData) || !ctx.capabilities.UnixData {
		return nil
	}
	if d.Inode == nil || d.Inode.Unix == nil {
		return nil
	}
	if err := ctx.Backend.SetUnixData(path, *d.Inode.Unix, ctx); err != nil {
		return wrap(ErrWrite, "SetUnixData", path, err)
	}
	return nil
}

// applyTimestamps applies creation/write/access timestamps. Failure
// degrades to a warning unless STRICT_TIMESTAMPS was requested.
func applyTimestamps(ctx *Context, d *wim.Dentry, path string) error {
	if d.Inode == nil {
		return nil
	}
	err := ctx.Backend.SetTimestamps(path, d.Inode.CreationTime, d.Inode.LastWriteTime, d.Inode.LastAccessTime, ctx)
	if err != nil {
		if ctx.Flags.Has(FlagStrictTimestamps) {
			return wrap(ErrWrite, "SetTimestamps", path, err)
		}
		ctx.Logger.Warnf("failed to apply timestamps to %q: %v", path, err)
	}
	return nil
}
