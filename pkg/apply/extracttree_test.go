package apply_test

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/wimlib-go/wimapply/pkg/apply"
	"github.com/wimlib-go/wimapply/pkg/backend/posix"
	"github.com/wimlib-go/wimapply/pkg/logging"
	"github.com/wimlib-go/wimapply/pkg/reparse"
	"github.com/wimlib-go/wimapply/pkg/wim"
)

// buildSymlinkReparseBuffer serializes a minimal symlink reparse buffer for
// use as stream content in a test, mirroring the wire format
// finalizeReparsePoint expects to read back.
func buildSymlinkReparseBuffer(t *testing.T, substitute, print string) []byte {
	t.Helper()
	raw, err := (&reparse.Buffer{
		Tag:            reparse.TagSymlink,
		SubstituteName: substitute,
		PrintName:      print,
		IsRelative:     true,
	}).Serialize()
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

// memoryStreamReader is a minimal wim.StreamReader over an in-memory byte
// map, keyed by wim.OnDiskLocator.Path, standing in for a real WIM
// container's decompressed resource access during a random-access or
// sequential extract operation.
type memoryStreamReader struct {
	content map[string][]byte
}

func (m *memoryStreamReader) CanSeek() bool { return true }

func (m *memoryStreamReader) Open(loc wim.Locator) (io.ReadCloser, error) {
	onDisk := loc.(wim.OnDiskLocator)
	return io.NopCloser(bytes.NewReader(m.content[onDisk.Path])), nil
}

func hashOf(content string) wim.SHA1 {
	return sha1.Sum([]byte(content))
}

// buildCatalogEntry registers content under a synthetic locator key and
// returns both the hash and a ready StreamDescriptor for the catalog.
func buildCatalogEntry(reader *memoryStreamReader, key, content string) (wim.SHA1, *apply.StreamDescriptor) {
	reader.content[key] = []byte(content)
	hash := hashOf(content)
	return hash, &apply.StreamDescriptor{
		Hash:    hash,
		Size:    uint64(len(content)),
		Locator: wim.OnDiskLocator{Path: key},
	}
}

func TestExtractTreeRandomAccessWritesFilesAndDirectories(t *testing.T) {
	reader := &memoryStreamReader{content: map[string][]byte{}}
	catalog := map[wim.SHA1]*apply.StreamDescriptor{}

	rootDentry := &wim.Dentry{}
	subdir := &wim.Dentry{Name: "sub", Parent: rootDentry, Inode: &wim.Inode{Attributes: wim.AttrDirectory}}
	rootDentry.Children = append(rootDentry.Children, subdir)

	hashA, descA := buildCatalogEntry(reader, "a", "hello from file a")
	catalog[hashA] = descA
	fileA := &wim.Dentry{
		Name:   "a.txt",
		Parent: subdir,
		Inode: &wim.Inode{
			Unnamed:       wim.StreamReference{Hash: hashA},
			NumberOfLinks: 1,
		},
	}
	subdir.Children = append(subdir.Children, fileA)

	target := t.TempDir()
	logger := logging.RootLogger.Sublogger("test")

	err := apply.ExtractTree(rootDentry, target, 0, posix.New(), reader, nil, nil, catalog, nil, logger)
	if err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(target, "sub", "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello from file a" {
		t.Errorf("unexpected file content: %q", got)
	}
}

func TestExtractTreeHardLinkModeDeduplicatesIdenticalContent(t *testing.T) {
	reader := &memoryStreamReader{content: map[string][]byte{}}
	catalog := map[wim.SHA1]*apply.StreamDescriptor{}

	rootDentry := &wim.Dentry{}
	hash, desc := buildCatalogEntry(reader, "shared", "duplicate content")
	catalog[hash] = desc

	first := &wim.Dentry{
		Name:   "first.txt",
		Parent: rootDentry,
		Inode:  &wim.Inode{Unnamed: wim.StreamReference{Hash: hash}, NumberOfLinks: 1},
	}
	second := &wim.Dentry{
		Name:   "second.txt",
		Parent: rootDentry,
		Inode:  &wim.Inode{Unnamed: wim.StreamReference{Hash: hash}, NumberOfLinks: 1},
	}
	rootDentry.Children = append(rootDentry.Children, first, second)

	target := t.TempDir()
	logger := logging.RootLogger.Sublogger("test")

	err := apply.ExtractTree(rootDentry, target, apply.FlagHardLink, posix.New(), reader, nil, nil, catalog, nil, logger)
	if err != nil {
		t.Fatal(err)
	}

	firstInfo, err := os.Stat(filepath.Join(target, "first.txt"))
	if err != nil {
		t.Fatal(err)
	}
	secondInfo, err := os.Stat(filepath.Join(target, "second.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(firstInfo, secondInfo) {
		t.Error("expected HARDLINK mode to deduplicate identical unnamed-stream content across unrelated inodes")
	}
}

func TestExtractTreeHardLinkedInodeGroupReusesBackendLink(t *testing.T) {
	reader := &memoryStreamReader{content: map[string][]byte{}}
	catalog := map[wim.SHA1]*apply.StreamDescriptor{}

	rootDentry := &wim.Dentry{}
	hash, desc := buildCatalogEntry(reader, "group", "shared inode content")
	catalog[hash] = desc

	inode := &wim.Inode{Unnamed: wim.StreamReference{Hash: hash}, NumberOfLinks: 2}
	first := &wim.Dentry{Name: "one.txt", Parent: rootDentry, Inode: inode}
	second := &wim.Dentry{Name: "two.txt", Parent: rootDentry, Inode: inode}
	inode.Dentries = []*wim.Dentry{first, second}
	rootDentry.Children = append(rootDentry.Children, first, second)

	target := t.TempDir()
	logger := logging.RootLogger.Sublogger("test")

	err := apply.ExtractTree(rootDentry, target, 0, posix.New(), reader, nil, nil, catalog, nil, logger)
	if err != nil {
		t.Fatal(err)
	}

	oneInfo, err := os.Stat(filepath.Join(target, "one.txt"))
	if err != nil {
		t.Fatal(err)
	}
	twoInfo, err := os.Stat(filepath.Join(target, "two.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(oneInfo, twoInfo) {
		t.Error("expected the WIM's own hard-link group to be realized as a backend hard link")
	}
}

func TestExtractTreeSkipsInvalidDentryAndContinues(t *testing.T) {
	reader := &memoryStreamReader{content: map[string][]byte{}}
	catalog := map[wim.SHA1]*apply.StreamDescriptor{}

	rootDentry := &wim.Dentry{}
	dotEntry := &wim.Dentry{Name: ".", Parent: rootDentry, Inode: &wim.Inode{Attributes: wim.AttrDirectory}}
	hash, desc := buildCatalogEntry(reader, "ok", "still extracted")
	catalog[hash] = desc
	fileOK := &wim.Dentry{Name: "ok.txt", Parent: rootDentry, Inode: &wim.Inode{Unnamed: wim.StreamReference{Hash: hash}, NumberOfLinks: 1}}
	rootDentry.Children = append(rootDentry.Children, dotEntry, fileOK)

	target := t.TempDir()
	logger := logging.RootLogger.Sublogger("test")

	err := apply.ExtractTree(rootDentry, target, 0, posix.New(), reader, nil, nil, catalog, nil, logger)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(target, ".")); err != nil {
		t.Fatal("unexpected: '.' resolves to the target directory itself, which must still exist")
	}
	if got, err := os.ReadFile(filepath.Join(target, "ok.txt")); err != nil || string(got) != "still extracted" {
		t.Errorf("expected the sibling dentry to still be extracted, got content %q, err %v", got, err)
	}
}

func TestExtractTreeSymlinkReparsePointIsRealized(t *testing.T) {
	reader := &memoryStreamReader{content: map[string][]byte{}}
	catalog := map[wim.SHA1]*apply.StreamDescriptor{}

	rootDentry := &wim.Dentry{}

	buf := buildSymlinkReparseBuffer(t, `target.txt`, `target.txt`)
	hash := hashOf(string(buf))
	reader.content["link"] = buf
	catalog[hash] = &apply.StreamDescriptor{Hash: hash, Size: uint64(len(buf)), Locator: wim.OnDiskLocator{Path: "link"}}

	link := &wim.Dentry{
		Name:   "link",
		Parent: rootDentry,
		Inode: &wim.Inode{
			Attributes:    wim.AttrReparsePoint,
			ReparseTag:    wim.ReparseTagSymlink,
			Unnamed:       wim.StreamReference{Hash: hash},
			NumberOfLinks: 1,
		},
	}
	rootDentry.Children = append(rootDentry.Children, link)

	target := t.TempDir()
	logger := logging.RootLogger.Sublogger("test")

	err := apply.ExtractTree(rootDentry, target, 0, posix.New(), reader, nil, nil, catalog, nil, logger)
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := os.Readlink(filepath.Join(target, "link"))
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "target.txt" {
		t.Errorf("unexpected symlink target: %q", resolved)
	}
}

func TestExtractTreeSymlinkModeDeduplicatesWithRelativeTarget(t *testing.T) {
	reader := &memoryStreamReader{content: map[string][]byte{}}
	catalog := map[wim.SHA1]*apply.StreamDescriptor{}

	rootDentry := &wim.Dentry{}
	hash, desc := buildCatalogEntry(reader, "shared", "duplicate content")
	catalog[hash] = desc

	first := &wim.Dentry{
		Name:   "first.txt",
		Parent: rootDentry,
		Inode:  &wim.Inode{Unnamed: wim.StreamReference{Hash: hash}, NumberOfLinks: 1},
	}
	second := &wim.Dentry{
		Name:   "second.txt",
		Parent: rootDentry,
		Inode:  &wim.Inode{Unnamed: wim.StreamReference{Hash: hash}, NumberOfLinks: 1},
	}
	rootDentry.Children = append(rootDentry.Children, first, second)

	target := t.TempDir()
	logger := logging.RootLogger.Sublogger("test")

	err := apply.ExtractTree(rootDentry, target, apply.FlagSymlink, posix.New(), reader, nil, nil, catalog, nil, logger)
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := os.Readlink(filepath.Join(target, "second.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.IsAbs(resolved) {
		t.Errorf("expected a relative symlink target, got %q", resolved)
	}
	if got, err := os.ReadFile(filepath.Join(target, "second.txt")); err != nil || string(got) != "duplicate content" {
		t.Errorf("expected symlink to resolve to the shared content, got %q, err %v", got, err)
	}
}

func TestExtractTreeContentHashMismatchIsFatal(t *testing.T) {
	reader := &memoryStreamReader{content: map[string][]byte{}}
	catalog := map[wim.SHA1]*apply.StreamDescriptor{}

	rootDentry := &wim.Dentry{}
	hash, desc := buildCatalogEntry(reader, "tampered", "original content")
	// Corrupt the archive-side content after computing desc.Hash, simulating
	// a truncated or bit-flipped resource whose declared hash no longer
	// matches what is actually read back.
	reader.content["tampered"] = []byte("corrupted!!!!!!!")
	catalog[hash] = desc

	file := &wim.Dentry{
		Name:   "file.txt",
		Parent: rootDentry,
		Inode:  &wim.Inode{Unnamed: wim.StreamReference{Hash: hash}, NumberOfLinks: 1},
	}
	rootDentry.Children = append(rootDentry.Children, file)

	target := t.TempDir()
	logger := logging.RootLogger.Sublogger("test")

	err := apply.ExtractTree(rootDentry, target, 0, posix.New(), reader, nil, nil, catalog, nil, logger)
	if err == nil {
		t.Fatal("expected a hash-mismatch error, got nil")
	}
	var applyErr *apply.Error
	if !errors.As(err, &applyErr) || applyErr.Kind != apply.ErrStreamHashMismatch {
		t.Errorf("expected ErrStreamHashMismatch, got %v", err)
	}
}
