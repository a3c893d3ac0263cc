package syncengine

import (
	"io/fs"
	"iter"
	"os"
	"time"

	"github.com/epokhe/dbfsync/internal/dbf"
)

// fakeTable is a tableSource backed by an in-memory record slice and
// checksum map, so tests can exercise the sync algorithm without needing a
// real .DBF file the embedded decoder can parse.
type fakeTable struct {
	header    dbf.Header
	checksums dbf.ChecksumMap
	records   []dbf.Record
}

func (f *fakeTable) Header() dbf.Header { return f.header }

func (f *fakeTable) ComputeChecksums() (dbf.ChecksumMap, error) {
	return f.checksums, nil
}

func (f *fakeTable) Records() iter.Seq2[dbf.Record, error] {
	return func(yield func(dbf.Record, error) bool) {
		for _, rec := range f.records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (f *fakeTable) Close() error { return nil }

func fakeOpener(t *fakeTable) func(path string) (tableSource, error) {
	return func(path string) (tableSource, error) {
		return t, nil
	}
}

// fakeFileInfo is a minimal os.FileInfo stand-in so engine tests can inject
// e.statFile without depending on a real file existing at a synthetic path.
type fakeFileInfo struct {
	name    string
	modTime time.Time
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return 0 }
func (f fakeFileInfo) Mode() fs.FileMode  { return 0 }
func (f fakeFileInfo) ModTime() time.Time { return f.modTime }
func (f fakeFileInfo) IsDir() bool        { return false }
func (f fakeFileInfo) Sys() any           { return nil }

func fakeStatFile(path string) (os.FileInfo, error) {
	return fakeFileInfo{name: path, modTime: time.Now()}, nil
}
