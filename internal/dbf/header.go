// Package dbf reads xBase/FoxPro .DBF table files: the 32-byte fixed
// header, the field descriptor array, and the fixed-length record array
// that follows it. It does not attempt to be a full xBase implementation —
// only what a change-data-capture reader needs: header metadata, a memo
// sidecar classification, per-record checksums, and lazy record streaming.
package dbf

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Header is the decoded 32-byte DBF file header.
type Header struct {
	TypeTag      byte   // byte 0: version/type flag, also used to classify the memo sidecar
	ModYear      uint8  // byte 1
	ModMonth     uint8  // byte 2
	ModDay       uint8  // byte 3
	NumRecords   uint32 // bytes 4-7, little endian
	HeaderLength uint16 // bytes 8-9, little endian: offset where the record array begins
	RecordLength uint16 // bytes 10-11, little endian: bytes per record, including the delete flag byte
}

const fixedHeaderLen = 32

// ReadHeader decodes the 32-byte fixed header at the start of r.
func ReadHeader(r io.ReaderAt) (Header, error) {
	var buf [fixedHeaderLen]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return Header{}, &ReadError{Op: "read header", Err: err}
	}

	h := Header{
		TypeTag:      buf[0],
		ModYear:      buf[1],
		ModMonth:     buf[2],
		ModDay:       buf[3],
		NumRecords:   binary.LittleEndian.Uint32(buf[4:8]),
		HeaderLength: binary.LittleEndian.Uint16(buf[8:10]),
		RecordLength: binary.LittleEndian.Uint16(buf[10:12]),
	}

	if h.HeaderLength < fixedHeaderLen {
		return Header{}, &ReadError{Op: "read header", Err: fmt.Errorf("header_length %d is smaller than the fixed header", h.HeaderLength)}
	}
	if h.RecordLength == 0 {
		return Header{}, &ReadError{Op: "read header", Err: fmt.Errorf("record_length is zero")}
	}

	return h, nil
}

// memo sidecar type tags, keyed by header.TypeTag.
const (
	tagDBaseIIIMemo byte = 0x83
	tagDBaseIVMemo  byte = 0x8B
	tagVisualFPMemo byte = 0xF5
	tagFoxBaseMemo  byte = 0x30
)

// MemoKind names the sidecar file format a DBF table expects its memo
// fields to be stored in.
type MemoKind int

const (
	MemoNone MemoKind = iota
	MemoDBT           // legacy dBASE III/IV .DBT sidecar
	MemoFPT           // FoxPro/Visual FoxPro .FPT sidecar
)

func (k MemoKind) String() string {
	switch k {
	case MemoDBT:
		return "DBT"
	case MemoFPT:
		return "FPT"
	default:
		return "none"
	}
}

// MemoInfo describes whether a table needs a memo sidecar file and which
// format it is, decided by the header type tag and, failing that, by
// scanning the field descriptors for a memo ('M') field.
type MemoInfo struct {
	Kind     MemoKind
	SidePath string // expected sidecar path, empty when Kind == MemoNone
}

// ClassifyMemo inspects the header type tag and the field descriptors to
// decide whether path's table requires a memo sidecar, and if so of what
// kind. A table can require a memo file either because its header type tag
// says so, or because one of its fields is of type 'M' regardless of the
// type tag — both are treated the same way here since either condition
// alone is sufficient in files seen in the wild.
func ClassifyMemo(h Header, fields []FieldDescriptor, path string) MemoInfo {
	kind := MemoNone

	switch h.TypeTag {
	case tagDBaseIIIMemo, tagDBaseIVMemo:
		kind = MemoDBT
	case tagVisualFPMemo, tagFoxBaseMemo:
		kind = MemoFPT
	}

	if kind == MemoNone {
		for _, f := range fields {
			if f.Type == 'M' {
				// type tag didn't announce it, but a memo field exists;
				// FPT is the more common modern sidecar so default to it.
				kind = MemoFPT
				break
			}
		}
	}

	if kind == MemoNone {
		return MemoInfo{Kind: MemoNone}
	}

	return MemoInfo{Kind: kind, SidePath: sidecarPath(path, kind)}
}

func sidecarPath(path string, kind MemoKind) string {
	ext := ".fpt"
	if kind == MemoDBT {
		ext = ".dbt"
	}
	// match the case of the table's own extension, since xBase deployments
	// are usually consistent about upper vs lower case across a directory.
	if isUpperExt(path) {
		ext = upper(ext)
	}
	return trimExt(path) + ext
}

func isUpperExt(path string) bool {
	for i := len(path) - 1; i >= 0 && path[i] != '.'; i-- {
		if path[i] >= 'a' && path[i] <= 'z' {
			return false
		}
	}
	return true
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

func trimExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return path
}

// FieldDescriptor is one 32-byte field descriptor entry following the fixed
// header, terminated by a 0x0D byte.
type FieldDescriptor struct {
	Name string
	Type byte
	Len  uint8
}

const fieldDescLen = 32
const fieldArrayTerminator = 0x0D

// ReadFieldDescriptors reads the field descriptor array that follows the
// fixed header, stopping at the 0x0D terminator byte.
func ReadFieldDescriptors(f *os.File, h Header) ([]FieldDescriptor, error) {
	buf := make([]byte, int(h.HeaderLength)-fixedHeaderLen)
	if _, err := f.ReadAt(buf, fixedHeaderLen); err != nil && err != io.EOF {
		return nil, &ReadError{Op: "read field descriptors", Err: err}
	}

	var fields []FieldDescriptor
	for off := 0; off+1 <= len(buf); off += fieldDescLen {
		if buf[off] == fieldArrayTerminator {
			break
		}
		if off+fieldDescLen > len(buf) {
			break
		}
		entry := buf[off : off+fieldDescLen]
		name := trimNullPadding(entry[0:11])
		fields = append(fields, FieldDescriptor{
			Name: name,
			Type: entry[11],
			Len:  entry[16],
		})
	}

	return fields, nil
}

func trimNullPadding(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}
