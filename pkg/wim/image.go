package wim

// ImageMetadata is the XML metadata reader's read surface, as consumed by
// the extraction engine: an image's name and its declared total byte count
// (used for progress accounting, and as the sole source of a total-bytes
// estimate in pipe mode, where the exact stream set isn't known ahead of
// time). This package specifies only the interface; the XML reader itself
// is an out-of-scope external collaborator.
type ImageMetadata interface {
	Name() string
	TotalBytes() uint64
}

// SecurityData is an image's security descriptor table: raw descriptor
// byte blobs indexed by Inode.SecurityID. A SecurityID of -1 means the
// inode carries no security descriptor.
type SecurityData [][]byte

// Descriptor returns the raw security descriptor for the given ID, or nil
// if id is negative or out of range.
func (s SecurityData) Descriptor(id int32) []byte {
	if id < 0 || int(id) >= len(s) {
		return nil
	}
	return s[id]
}
