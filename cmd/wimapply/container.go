package main

import (
	"github.com/pkg/errors"

	"github.com/wimlib-go/wimapply/pkg/wim"
)

// archive is the CLI's view of an opened WIM container: everything
// apply.ExtractTree needs that isn't owned by the extraction engine
// itself (spec.md section 1 scopes this repository to the extraction
// engine; the container format — header, blob table, compressed
// resource chunks, XML image metadata — is the format parser's
// responsibility, consumed here only through the wim.StreamReader
// interface pkg/wim/stream.go already specifies for that collaborator).
type archive struct {
	Reader   wim.StreamReader
	Catalog  map[wim.SHA1]*wim.StreamDescriptor
	Security wim.SecurityData
}

// selectedImage is one image within an archive, resolved by name or
// 1-based index.
type selectedImage struct {
	Root     *wim.Dentry
	Metadata wim.ImageMetadata
}

// openArchive opens path as a WIM container. This is the integration
// seam for a container format parser: none ships in this repository
// (see DESIGN.md), so this always fails with a clear message rather
// than silently returning a zero-value archive that would panic deep
// inside the extraction engine.
func openArchive(path string, fromPipe bool) (*archive, error) {
	return nil, errors.New("no WIM container parser is wired into this build; supply one implementing wim.StreamReader")
}

// SelectImage is where spec (a 1-based index or an image name) would be
// resolved against the archive's image list; with no container parser
// wired into this build, it always returns an error.
func (a *archive) SelectImage(spec string) (*selectedImage, error) {
	return nil, errors.New("no WIM container parser is wired into this build")
}
