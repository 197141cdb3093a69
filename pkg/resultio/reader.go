package resultio

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/golang/snappy"
)

// Frame is one decoded row frame read back from a partition data file: the
// sequence number it was written with, its write timestamp, and the raw
// (decompressed, JSON-encoded) payload bytes. Callers unmarshal Payload
// into the row type their stage expects (PowerFlowRow, OPFRow, ...).
type Frame struct {
	Seq       uint64
	Payload   []byte
	WrittenAt int64 // UnixNano
}

// ReadFrames reads every frame in the partition data file at path, in
// write order, verifying each frame's CRC32 checksum before returning it.
func ReadFrames(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("resultio: open %s: %w", path, err)
	}
	defer f.Close()

	var out []Frame
	for {
		frame, err := readFrame(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("resultio: %s: %w", path, err)
		}
		out = append(out, frame)
	}
	return out, nil
}

func readFrame(r io.Reader) (Frame, error) {
	var seq uint64
	if err := binary.Read(r, binary.BigEndian, &seq); err != nil {
		return Frame{}, err
	}

	var dataLen uint32
	if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
		return Frame{}, fmt.Errorf("reading data length: %w", err)
	}

	compressed := make([]byte, dataLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return Frame{}, fmt.Errorf("reading frame body: %w", err)
	}

	var wantChecksum uint32
	if err := binary.Read(r, binary.BigEndian, &wantChecksum); err != nil {
		return Frame{}, fmt.Errorf("reading checksum: %w", err)
	}
	if got := crc32.ChecksumIEEE(compressed); got != wantChecksum {
		return Frame{}, fmt.Errorf("checksum mismatch at seq %d: got %x want %x", seq, got, wantChecksum)
	}

	var writtenAt int64
	if err := binary.Read(r, binary.BigEndian, &writtenAt); err != nil {
		return Frame{}, fmt.Errorf("reading timestamp: %w", err)
	}

	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Frame{}, fmt.Errorf("decompressing frame at seq %d: %w", seq, err)
	}

	return Frame{Seq: seq, Payload: payload, WrittenAt: writtenAt}, nil
}

// DecodeRows reads every frame in path and JSON-unmarshals each payload
// into a freshly allocated T, returning the rows as []*T in frame order.
func DecodeRows[T any](path string) ([]*T, error) {
	frames, err := ReadFrames(path)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(frames))
	for _, fr := range frames {
		var v T
		if err := json.Unmarshal(fr.Payload, &v); err != nil {
			return nil, fmt.Errorf("resultio: unmarshal row at seq %d: %w", fr.Seq, err)
		}
		out = append(out, &v)
	}
	return out, nil
}
