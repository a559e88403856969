package stdout

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wimlib-go/wimapply/pkg/apply"
	"github.com/wimlib-go/wimapply/pkg/wim"
)

func TestExtractUnnamedStreamWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	b := &Backend{Writer: &buf}

	if err := b.ExtractUnnamedStream("ignored", strings.NewReader("payload"), 7, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "payload" {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestExtractUnnamedStreamNilStreamIsNoOp(t *testing.T) {
	var buf bytes.Buffer
	b := &Backend{Writer: &buf}

	if err := b.ExtractUnnamedStream("ignored", nil, 0, nil); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestUnsupportedOperationsReturnError(t *testing.T) {
	b := New()

	if err := b.CreateDirectory("p", nil); err == nil {
		t.Error("expected CreateDirectory to be unsupported")
	}
	if err := b.CreateFile("p", nil); err == nil {
		t.Error("expected CreateFile to be unsupported")
	}
	if err := b.CreateHardLink("a", "b", nil); err == nil {
		t.Error("expected CreateHardLink to be unsupported")
	}
	if err := b.CreateSymlink("a", "b", nil); err == nil {
		t.Error("expected CreateSymlink to be unsupported")
	}
	if err := b.ExtractNamedStream("p", "ads", nil, 0, nil); err == nil {
		t.Error("expected ExtractNamedStream to be unsupported")
	}
	if err := b.ExtractEncryptedStream("p", nil, 0, nil); err == nil {
		t.Error("expected ExtractEncryptedStream to be unsupported")
	}
	if err := b.SetReparseData("p", nil, nil); err == nil {
		t.Error("expected SetReparseData to be unsupported")
	}
	if err := b.SetShortName("p", "n", nil); err == nil {
		t.Error("expected SetShortName to be unsupported")
	}
	if err := b.SetSecurityDescriptor("p", nil, nil, false); err == nil {
		t.Error("expected SetSecurityDescriptor to be unsupported")
	}
	if err := b.SetUnixData("p", wim.UnixData{}, nil); err == nil {
		t.Error("expected SetUnixData to be unsupported")
	}
	if err := b.SetTimestamps("p", 0, 0, 0, nil); err == nil {
		t.Error("expected SetTimestamps to be unsupported")
	}
	if err := b.SetFileAttributes("p", 0, nil); err == nil {
		t.Error("expected SetFileAttributes to be unsupported")
	}
}

func TestCapabilitiesAndOptionsAreZeroValue(t *testing.T) {
	b := New()
	if b.Capabilities() != (apply.Capabilities{}) {
		t.Error("expected zero-value capabilities")
	}
	if b.Options() != (apply.Options{}) {
		t.Error("expected zero-value options")
	}
}
