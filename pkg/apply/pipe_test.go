package apply_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/wimlib-go/wimapply/pkg/apply"
	"github.com/wimlib-go/wimapply/pkg/backend/posix"
	"github.com/wimlib-go/wimapply/pkg/logging"
	"github.com/wimlib-go/wimapply/pkg/wim"
)

// fakeImageMetadata is a trivial wim.ImageMetadata fake reporting a fixed
// declared total, standing in for the XML metadata reader pipe mode relies
// on for its progress estimate.
type fakeImageMetadata struct {
	name  string
	total uint64
}

func (f fakeImageMetadata) Name() string       { return f.name }
func (f fakeImageMetadata) TotalBytes() uint64 { return f.total }

// fakePipeReader is a wim.PipeReader fake delivering a fixed, in-order
// sequence of (hash, content) pairs exactly once each, as a non-seekable
// pipe would.
type fakePipeReader struct {
	streams []pipeStream
	pos     int
}

type pipeStream struct {
	hash    wim.SHA1
	content string
}

func (f *fakePipeReader) CanSeek() bool { return false }

func (f *fakePipeReader) Open(loc wim.Locator) (io.ReadCloser, error) {
	return nil, errors.New("fakePipeReader delivers streams only through Next")
}

func (f *fakePipeReader) Next() (wim.SHA1, uint64, io.ReadCloser, error) {
	if f.pos >= len(f.streams) {
		return wim.SHA1{}, 0, nil, io.EOF
	}
	s := f.streams[f.pos]
	f.pos++
	return s.hash, uint64(len(s.content)), io.NopCloser(bytes.NewReader([]byte(s.content))), nil
}

func TestExtractTreeFromPipeWritesContent(t *testing.T) {
	rootDentry := &wim.Dentry{}
	hash := hashOf("piped content")
	fileA := &wim.Dentry{
		Name:   "a.txt",
		Parent: rootDentry,
		Inode: &wim.Inode{
			Unnamed:       wim.StreamReference{Hash: hash},
			NumberOfLinks: 1,
		},
	}
	rootDentry.Children = append(rootDentry.Children, fileA)

	reader := &fakePipeReader{streams: []pipeStream{{hash: hash, content: "piped content"}}}
	target := t.TempDir()
	logger := logging.RootLogger.Sublogger("test")

	err := apply.ExtractTree(
		rootDentry, target, apply.FlagFromPipe, posix.New(),
		reader, fakeImageMetadata{name: "image", total: 14}, nil, nil,
		nil, logger,
	)
	if err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(target, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "piped content" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestExtractTreeFromPipeRejectsNonPipeReader(t *testing.T) {
	rootDentry := &wim.Dentry{}
	reader := &memoryStreamReader{content: map[string][]byte{}}
	target := t.TempDir()
	logger := logging.RootLogger.Sublogger("test")

	err := apply.ExtractTree(
		rootDentry, target, apply.FlagFromPipe, posix.New(),
		reader, fakeImageMetadata{}, nil, nil,
		nil, logger,
	)
	if err == nil {
		t.Fatal("expected an error when FROM_PIPE is requested against a non-pipe reader")
	}
}

func TestExtractTreeFromPipeDiscardsUnreferencedStream(t *testing.T) {
	rootDentry := &wim.Dentry{}
	wantedHash := hashOf("wanted")
	unwantedHash := hashOf("unrelated metadata stream")

	fileA := &wim.Dentry{
		Name:   "a.txt",
		Parent: rootDentry,
		Inode: &wim.Inode{
			Unnamed:       wim.StreamReference{Hash: wantedHash},
			NumberOfLinks: 1,
		},
	}
	rootDentry.Children = append(rootDentry.Children, fileA)

	reader := &fakePipeReader{streams: []pipeStream{
		{hash: unwantedHash, content: "unrelated metadata stream"},
		{hash: wantedHash, content: "wanted"},
	}}
	target := t.TempDir()
	logger := logging.RootLogger.Sublogger("test")

	err := apply.ExtractTree(
		rootDentry, target, apply.FlagFromPipe, posix.New(),
		reader, fakeImageMetadata{total: 6}, nil, nil,
		nil, logger,
	)
	if err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(target, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "wanted" {
		t.Errorf("unexpected content: %q", got)
	}
}
