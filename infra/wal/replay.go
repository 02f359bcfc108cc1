package wal

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/pkg/errors"
)

const maxFrameSize = 1 << 20

// Replay feeds every intact record to fn in write order and returns the
// highest sequence number seen. A torn tail (partial frame or bad crc
// at the end of the newest segment) ends the replay cleanly; corruption
// anywhere else is an error.
func Replay(dir string, fn func(*Record) error) (uint64, error) {
	files, err := segmentFiles(dir)
	if err != nil {
		return 0, err
	}

	var lastSeq uint64
	for i, f := range files {
		last := i == len(files)-1
		seq, err := replaySegment(f.path, last, fn)
		if err != nil {
			return lastSeq, err
		}
		if seq > lastSeq {
			lastSeq = seq
		}
	}
	return lastSeq, nil
}

func replaySegment(path string, tolerateTorn bool, fn func(*Record) error) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "wal: open segment for replay")
	}
	defer f.Close()

	var (
		lastSeq uint64
		header  [8]byte
		body    []byte
	)
	for {
		if _, err := io.ReadFull(f, header[:]); err != nil {
			if err == io.EOF {
				return lastSeq, nil
			}
			if tolerateTorn {
				return lastSeq, nil
			}
			return lastSeq, ErrCorruptRecord
		}

		size := binary.LittleEndian.Uint32(header[:4])
		want := binary.LittleEndian.Uint32(header[4:])

		// A frame this large is garbage, not a record.
		if size > maxFrameSize {
			if tolerateTorn {
				return lastSeq, nil
			}
			return lastSeq, ErrCorruptRecord
		}

		if cap(body) < int(size) {
			body = make([]byte, size)
		}
		body = body[:size]
		if _, err := io.ReadFull(f, body); err != nil {
			if tolerateTorn {
				return lastSeq, nil
			}
			return lastSeq, ErrCorruptRecord
		}

		if crc32.ChecksumIEEE(body) != want {
			if tolerateTorn {
				return lastSeq, nil
			}
			return lastSeq, ErrCorruptRecord
		}

		var rec Record
		if err := unmarshalRecord(body, &rec); err != nil {
			return lastSeq, err
		}
		if err := fn(&rec); err != nil {
			return lastSeq, err
		}
		if rec.Seq > lastSeq {
			lastSeq = rec.Seq
		}
	}
}

// maxSeqInSegment scans one segment for its highest sequence number.
// Used by TruncateBefore.
func maxSeqInSegment(path string) (uint64, error) {
	return replaySegment(path, true, func(*Record) error { return nil })
}
