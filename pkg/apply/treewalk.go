package apply

import "github.com/wimlib-go/wimapply/pkg/wim"

// walkPreOrder invokes fn for d and every unskipped descendant, top-down.
// Since skipSubtree propagates Skipped to every descendant at resolve
// time, checking d.Skipped before recursing is sufficient to prune an
// entire skipped subtree without re-checking ancestors.
func walkPreOrder(d *wim.Dentry, fn func(*wim.Dentry) error) error {
	if d.Skipped {
		return nil
	}
	if err := fn(d); err != nil {
		return err
	}
	for _, child := range d.Children {
		if err := walkPreOrder(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// walkPostOrder invokes fn for every unskipped descendant before d itself,
// matching the Finalizer's depth-first post-order requirement (spec
// section 4.7) so a directory's timestamps are applied only after every
// descendant write has completed.
func walkPostOrder(d *wim.Dentry, fn func(*wim.Dentry) error) error {
	if d.Skipped {
		return nil
	}
	for _, child := range d.Children {
		if err := walkPostOrder(child, fn); err != nil {
			return err
		}
	}
	return fn(d)
}
