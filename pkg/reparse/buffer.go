// Package reparse implements the Reparse Rewriter (spec section 4.6): it
// parses, optionally fixes up, and re-serializes NT reparse data buffers
// for the two tags the extraction engine understands natively — symbolic
// links and mount points (junctions). Parse reports any other tag with
// ErrUnsupportedTag, and the engine then passes that buffer through
// set_reparse_data unmodified.
package reparse

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

// Reparse tags the engine understands. Other tags are passed through
// whatever bytes the image carries, untouched.
const (
	TagSymlink    uint32 = 0xA000000C
	TagMountPoint uint32 = 0xA0000003
)

// MaxSize bounds a reparse data buffer, matching wim.ReparsePointMaxSize.
const MaxSize = 16384

// symlinkFlagRelative is set in a symbolic link reparse buffer's Flags
// field when the substitute name is a relative path rather than an
// absolute NT device path.
const symlinkFlagRelative uint32 = 1

var (
	// ErrBufferTooLarge is returned when a buffer exceeds MaxSize.
	ErrBufferTooLarge = errors.New("reparse: buffer exceeds maximum size")
	// ErrTruncated is returned when a buffer is shorter than its header
	// declares.
	ErrTruncated = errors.New("reparse: buffer truncated")
	// ErrUnsupportedTag is returned by Parse for any tag other than
	// TagSymlink or TagMountPoint.
	ErrUnsupportedTag = errors.New("reparse: unsupported reparse tag")
)

// Buffer is a parsed NT reparse data buffer for a symbolic link or
// junction. SubstituteName is the path the filesystem actually follows;
// PrintName is the (often identical, sometimes prettier) path shown to
// users. Both are NT-namespace strings (e.g. `\??\C:\Users\foo`) exactly
// as decoded from the buffer's UTF-16 path data — no drive-letter or
// separator translation happens in Parse itself; see Fixup.
type Buffer struct {
	Tag            uint32
	SubstituteName string
	PrintName      string
	// IsRelative is meaningful only when Tag == TagSymlink: it mirrors
	// the SYMLINK_FLAG_RELATIVE bit of the original buffer's Flags field.
	IsRelative bool
}

// Parse decodes raw (the inode's unnamed stream content) as an NT reparse
// data buffer. It returns ErrUnsupportedTag for any tag other than
// TagSymlink or TagMountPoint; callers should pass such buffers through
// to SetReparseData without involving this package at all.
func Parse(raw []byte) (*Buffer, error) {
	if len(raw) > MaxSize {
		return nil, ErrBufferTooLarge
	}
	if len(raw) < 8 {
		return nil, ErrTruncated
	}
	tag := binary.LittleEndian.Uint32(raw[0:4])
	dataLen := int(binary.LittleEndian.Uint16(raw[4:6]))
	if 8+dataLen > len(raw) {
		return nil, ErrTruncated
	}
	data := raw[8 : 8+dataLen]

	switch tag {
	case TagSymlink:
		return parseSymlink(data)
	case TagMountPoint:
		return parseMountPoint(data)
	default:
		return nil, ErrUnsupportedTag
	}
}

func parseSymlink(data []byte) (*Buffer, error) {
	if len(data) < 12 {
		return nil, ErrTruncated
	}
	subOff := binary.LittleEndian.Uint16(data[0:2])
	subLen := binary.LittleEndian.Uint16(data[2:4])
	prnOff := binary.LittleEndian.Uint16(data[4:6])
	prnLen := binary.LittleEndian.Uint16(data[6:8])
	flags := binary.LittleEndian.Uint32(data[8:12])
	pathBuf := data[12:]

	sub, err := decodeUTF16(pathBuf, subOff, subLen)
	if err != nil {
		return nil, err
	}
	prn, err := decodeUTF16(pathBuf, prnOff, prnLen)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		Tag:            TagSymlink,
		SubstituteName: sub,
		PrintName:      prn,
		IsRelative:     flags&symlinkFlagRelative != 0,
	}, nil
}

func parseMountPoint(data []byte) (*Buffer, error) {
	if len(data) < 8 {
		return nil, ErrTruncated
	}
	subOff := binary.LittleEndian.Uint16(data[0:2])
	subLen := binary.LittleEndian.Uint16(data[2:4])
	prnOff := binary.LittleEndian.Uint16(data[4:6])
	prnLen := binary.LittleEndian.Uint16(data[6:8])
	pathBuf := data[8:]

	sub, err := decodeUTF16(pathBuf, subOff, subLen)
	if err != nil {
		return nil, err
	}
	prn, err := decodeUTF16(pathBuf, prnOff, prnLen)
	if err != nil {
		return nil, err
	}
	return &Buffer{Tag: TagMountPoint, SubstituteName: sub, PrintName: prn}, nil
}

func decodeUTF16(buf []byte, offset, length uint16) (string, error) {
	if int(offset)+int(length) > len(buf) || length%2 != 0 {
		return "", ErrTruncated
	}
	raw := buf[offset : offset+length]
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[i*2 : i*2+2])
	}
	return string(utf16.Decode(units)), nil
}

func encodeUTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], u)
	}
	return out
}

// Serialize re-encodes b as a raw NT reparse data buffer, bit-compatible
// with the layout Parse reads, bounded by MaxSize.
func (b *Buffer) Serialize() ([]byte, error) {
	var headerLen int
	var flags uint32
	switch b.Tag {
	case TagSymlink:
		headerLen = 12
		if b.IsRelative {
			flags = symlinkFlagRelative
		}
	case TagMountPoint:
		headerLen = 8
	default:
		return nil, ErrUnsupportedTag
	}

	subBytes := encodeUTF16(b.SubstituteName)
	prnBytes := encodeUTF16(b.PrintName)

	pathBuf := make([]byte, 0, len(subBytes)+2+len(prnBytes)+2)
	pathBuf = append(pathBuf, subBytes...)
	pathBuf = append(pathBuf, 0, 0)
	pathBuf = append(pathBuf, prnBytes...)
	pathBuf = append(pathBuf, 0, 0)

	data := make([]byte, headerLen+len(pathBuf))
	binary.LittleEndian.PutUint16(data[0:2], 0)
	binary.LittleEndian.PutUint16(data[2:4], uint16(len(subBytes)))
	binary.LittleEndian.PutUint16(data[4:6], uint16(len(subBytes)+2))
	binary.LittleEndian.PutUint16(data[6:8], uint16(len(prnBytes)))
	if b.Tag == TagSymlink {
		binary.LittleEndian.PutUint32(data[8:12], flags)
	}
	copy(data[headerLen:], pathBuf)

	out := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint32(out[0:4], b.Tag)
	binary.LittleEndian.PutUint16(out[4:6], uint16(len(data)))
	copy(out[8:], data)

	if len(out) > MaxSize {
		return nil, ErrBufferTooLarge
	}
	return out, nil
}
