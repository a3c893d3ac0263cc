package dbf

import (
	"iter"
	"os"

	foxprodbf "github.com/SebastiaanKlippert/go-foxpro-dbf"
)

// Record is one decoded DBF record, keyed by upper-case field name. Values
// are string, int64, float64, bool, or time.Time depending on field type.
type Record map[string]any

// FieldDeleted is a synthetic key (never a real xBase field name, which are
// always upper-case letters/digits) set to true on the Record yielded for a
// physical slot flagged deleted. Records() yields one entry per physical
// index rather than skipping deleted slots, so a record's position in the
// slice Records() produces always lines up with the same index in a
// ChecksumMap from ComputeChecksums — both count every physical record,
// deleted or not, since xBase marks deletion with an in-place flag byte
// rather than removing the record.
const FieldDeleted = "_deleted"

// Reader opens one DBF table for a single sync pass: it owns the header
// decode and checksum computation itself (the part a CDC pipeline actually
// depends on), and delegates per-field value decoding — C/N/F/D/T/L/M/I/B/Y
// field types and FPT memo-block resolution — to the embedded xBase
// decoder, so an exotic field type it can't parse never blocks a checksum
// pass or a memo classification.
type Reader struct {
	path   string
	f      *os.File
	header Header
	fields []FieldDescriptor
	inner  *foxprodbf.DBF // nil if the embedded decoder couldn't open the file
}

// Open opens path for a single read pass.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Op: "open", Err: err}
	}

	h, err := ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, &ReadError{Path: path, Op: "read header", Err: err}
	}

	fields, err := ReadFieldDescriptors(f, h)
	if err != nil {
		f.Close()
		return nil, &ReadError{Path: path, Op: "read field descriptors", Err: err}
	}

	r := &Reader{path: path, f: f, header: h, fields: fields}

	// the embedded decoder validates a narrower header-type range than we
	// accept for the raw header/checksum pass (it only accepts file
	// version 0x30/0x31), so its failure to open is not fatal here: it
	// only disables Records(), not Header/MemoRequirement/ComputeChecksums.
	if inner, oerr := foxprodbf.OpenFile(path, cp1252Decoder{}); oerr == nil {
		r.inner = inner
	}

	return r, nil
}

func (r *Reader) Close() error {
	if r.inner != nil {
		_ = r.inner.Close()
	}
	return r.f.Close()
}

func (r *Reader) Header() Header { return r.header }

func (r *Reader) Fields() []FieldDescriptor { return r.fields }

// MemoRequirement classifies whether this table needs a memo sidecar.
func (r *Reader) MemoRequirement() MemoInfo {
	return ClassifyMemo(r.header, r.fields, r.path)
}

// ComputeChecksums snapshots the per-record CRC-32 checksum map for this
// table in its current on-disk state.
func (r *Reader) ComputeChecksums() (ChecksumMap, error) {
	cs, err := ComputeChecksums(r.f, r.header)
	if err != nil {
		if rerr, ok := err.(*ReadError); ok {
			rerr.Path = r.path
			return nil, rerr
		}
		return nil, &ReadError{Path: r.path, Op: "compute checksums", Err: err}
	}
	return cs, nil
}

// ErrEmbeddedDecoderUnavailable is yielded by Records() when the table's
// header type tag falls outside the range the embedded decoder accepts.
type ErrEmbeddedDecoderUnavailable struct{ Path string }

func (e *ErrEmbeddedDecoderUnavailable) Error() string {
	return "dbf: embedded decoder unavailable for " + e.Path + " (unsupported header type)"
}

// Records streams every record in file order as an attribute map, in a
// single forward pass. A deleted slot still yields a Record (with only
// FieldDeleted set) rather than being skipped, so the Nth value from
// Records() always corresponds to physical index N in a ChecksumMap.
func (r *Reader) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		if r.inner == nil {
			yield(nil, &ErrEmbeddedDecoderUnavailable{Path: r.path})
			return
		}

		n := r.inner.NumRecords()
		for i := uint32(0); i < n; i++ {
			deleted, err := r.inner.DeletedAt(i)
			if err != nil {
				if !yield(nil, &ReadError{Path: r.path, Op: "read deleted flag", Err: err}) {
					return
				}
				continue
			}
			if deleted {
				// yielded (not skipped) so this physical index still lines
				// up with the same index in a ChecksumMap.
				if !yield(Record{FieldDeleted: true}, nil) {
					return
				}
				continue
			}

			raw, err := r.inner.RecordToMap(i)
			if err != nil {
				if !yield(nil, &ReadError{Path: r.path, Op: "decode record", Err: err}) {
					return
				}
				continue
			}

			rec := make(Record, len(raw))
			for k, v := range raw {
				rec[k] = v
			}

			if !yield(rec, nil) {
				return
			}
		}
	}
}
