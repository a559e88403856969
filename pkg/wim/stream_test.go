package wim

import "testing"

func TestStreamReferenceResolve(t *testing.T) {
	var ref StreamReference
	if ref.IsResolved() {
		t.Error("expected an unresolved reference to report false")
	}

	d := &StreamDescriptor{Size: 42}
	ref.Resolve(d)
	if !ref.IsResolved() {
		t.Error("expected a resolved reference to report true")
	}
	if ref.Descriptor() != d {
		t.Error("expected Descriptor to return the resolved descriptor")
	}
}

func TestStreamDescriptorBackpointersInlineAndOverflow(t *testing.T) {
	d := &StreamDescriptor{}
	dentries := make([]*Dentry, backpointerInlineCapacity+3)
	for i := range dentries {
		dentries[i] = &Dentry{Name: string(rune('a' + i))}
		d.AppendBackpointer(dentries[i])
	}

	if d.BackpointerCount() != len(dentries) {
		t.Fatalf("expected %d backpointers, got %d", len(dentries), d.BackpointerCount())
	}

	var visited []*Dentry
	d.ForEachBackpointer(func(dentry *Dentry) { visited = append(visited, dentry) })
	if len(visited) != len(dentries) {
		t.Fatalf("expected ForEachBackpointer to visit %d dentries, got %d", len(dentries), len(visited))
	}
	for i, dentry := range dentries {
		if visited[i] != dentry {
			t.Errorf("expected backpointer order preserved at index %d", i)
		}
	}
}

func TestStreamDescriptorResetBookkeeping(t *testing.T) {
	d := &StreamDescriptor{OutRefCount: 3}
	d.AppendBackpointer(&Dentry{})
	other := &StreamDescriptor{}
	d.next = other

	d.ResetBookkeeping()

	if d.OutRefCount != 0 {
		t.Errorf("expected OutRefCount reset to 0, got %d", d.OutRefCount)
	}
	if d.BackpointerCount() != 0 {
		t.Errorf("expected backpointers cleared, got %d", d.BackpointerCount())
	}
	if d.next != nil {
		t.Error("expected next link cleared")
	}
}

func TestLocatorSumType(t *testing.T) {
	var locators = []Locator{
		InArchiveLocator{Offset: 10},
		OnDiskLocator{Path: "/tmp/spill"},
		PendingLocator{},
	}
	for _, l := range locators {
		l.isLocator() // must not panic; exercises every variant
	}
}
