// Package wal is the order journal: a segmented append-only log of
// every accepted place and cancel command. The engine appends before it
// mutates a book; replay rebuilds books and the sequencer on restart.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	Dir         string
	SegmentSize int64
}

type WAL struct {
	dir        string
	segSize    int64
	current    *segment
	segIndex   int
	lastRotate time.Time
	scratch    []byte
}

func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "wal: create dir")
	}

	// Continue the newest existing segment rather than clobbering it.
	idx := 0
	if existing, err := segmentFiles(cfg.Dir); err == nil && len(existing) > 0 {
		idx = existing[len(existing)-1].index
	}

	seg, err := openSegment(cfg.Dir, idx)
	if err != nil {
		return nil, err
	}

	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 16 << 20
	}

	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		current:    seg,
		segIndex:   idx,
		lastRotate: time.Now(),
		scratch:    make([]byte, 0, 256),
	}, nil
}

// Append frames and writes one record:
//
//	[len:4][crc:4][protowire body]
//
// crc covers the body only. Length and crc are little-endian.
func (w *WAL) Append(r *Record) error {
	body := r.marshal(w.scratch[:0])
	w.scratch = body

	var header [8]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(header[4:], crc32.ChecksumIEEE(body))

	if err := w.current.append(header[:], body); err != nil {
		return errors.Wrap(err, "wal: append")
	}

	if w.current.offset >= w.segSize {
		return w.rotate()
	}
	return nil
}

func (w *WAL) Sync() error {
	return w.current.sync()
}

func (w *WAL) Close() error {
	return w.current.close()
}

func (w *WAL) rotate() error {
	_ = w.current.close()
	w.segIndex++

	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return err
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// TruncateBefore removes whole segments whose records are all <= seq.
// The active segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) error {
	files, err := segmentFiles(w.dir)
	if err != nil {
		return err
	}

	for _, f := range files {
		if f.index == w.segIndex {
			continue
		}
		maxSeq, err := maxSeqInSegment(f.path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(f.path)
		}
	}
	return nil
}

type segment struct {
	file   *os.File
	offset int64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
}

func openSegment(dir string, index int) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "wal: open segment")
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "wal: stat segment")
	}
	return &segment{file: f, offset: st.Size()}, nil
}

func (s *segment) append(header, body []byte) error {
	n, err := s.file.Write(header)
	s.offset += int64(n)
	if err != nil {
		return err
	}
	n, err = s.file.Write(body)
	s.offset += int64(n)
	return err
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

type segmentFile struct {
	path  string
	index int
}

func segmentFiles(dir string) ([]segmentFile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if err != nil {
		return nil, err
	}
	out := make([]segmentFile, 0, len(paths))
	for _, p := range paths {
		var idx int
		if _, err := fmt.Sscanf(filepath.Base(p), "segment-%06d.wal", &idx); err != nil {
			continue
		}
		out = append(out, segmentFile{path: p, index: idx})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out, nil
}
