package resultio

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"

	"github.com/dd0wney/gridflow/pkg/batch"
	"github.com/dd0wney/gridflow/pkg/logging"
)

// frameFileName is the single data file written per partition directory.
// Hive-style partition directories (stage/scenario_id=.../bucket=N) hold
// exactly one of these, appended to as rows for that partition arrive.
const frameFileName = "data.frames"

// Writer appends Rows to a partitioned, snappy-framed file tree rooted at
// root, one file per partition directory chosen by a batch.Partitioner's
// hash-bucketing of scenario IDs. Each row is framed the
// way the teacher's pkg/wal.CompressedWAL frames a record: a sequence
// number, a length-prefixed snappy-compressed payload, a CRC32 checksum
// over the compressed bytes, and a timestamp — generalized here from a
// single append-only log file to one such frame stream per partition
// directory.
type Writer struct {
	root        string
	partitioner *batch.Partitioner
	logger      logging.Logger

	mu    sync.Mutex
	files map[string]*os.File
	seq   atomic.Uint64

	rowsWritten atomic.Uint64
}

// NewWriter builds a Writer rooted at root, partitioning into bucketCount
// buckets per stage/scenario directory. logger may be nil.
func NewWriter(root string, bucketCount int, logger logging.Logger) *Writer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Writer{
		root:        root,
		partitioner: batch.NewPartitioner(bucketCount),
		logger:      logger,
		files:       make(map[string]*os.File),
	}
}

// WriteRow encodes row.Payload as JSON, snappy-compresses it, and appends
// one frame to the data file under row's partition directory, creating the
// directory and file on first write.
func (w *Writer) WriteRow(row Row) error {
	payload, err := json.Marshal(row.Payload)
	if err != nil {
		return fmt.Errorf("resultio: marshal %s row: %w", row.Stage, err)
	}
	compressed := snappy.Encode(nil, payload)
	checksum := crc32.ChecksumIEEE(compressed)
	seq := w.seq.Add(1)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, seq); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(compressed))); err != nil {
		return err
	}
	buf.Write(compressed)
	if err := binary.Write(&buf, binary.BigEndian, checksum); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.BigEndian, time.Now().UnixNano()); err != nil {
		return err
	}

	dir := w.partitioner.Dir(string(row.Stage), row.ScenarioID, row.TimeSlice)
	f, err := w.fileFor(dir)
	if err != nil {
		return err
	}

	w.mu.Lock()
	_, err = f.Write(buf.Bytes())
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("resultio: write frame under %s: %w", dir, err)
	}
	w.rowsWritten.Add(1)
	return nil
}

// fileFor returns the open file for partition directory dir, creating the
// directory and file the first time dir is seen.
func (w *Writer) fileFor(dir string) (*os.File, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if f, ok := w.files[dir]; ok {
		return f, nil
	}

	full := filepath.Join(w.root, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return nil, fmt.Errorf("resultio: mkdir %s: %w", full, err)
	}
	f, err := os.OpenFile(filepath.Join(full, frameFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("resultio: open %s: %w", full, err)
	}
	w.files[dir] = f
	return f, nil
}

// Close flushes and closes every partition file this Writer opened.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for dir, f := range w.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("resultio: close %s: %w", dir, err)
		}
	}
	w.logger.Info("resultio writer closed", logging.Component("resultio"), logging.Count(int(w.rowsWritten.Load())), logging.Path(w.root))
	return firstErr
}

// RowsWritten returns the total number of rows appended across every
// partition so far.
func (w *Writer) RowsWritten() int { return int(w.rowsWritten.Load()) }
