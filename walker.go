// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package bzseeker

import (
	"bytes"
	"fmt"
	"io"

	"github.com/srg91/bzseeker/internal/bzip2"
)

// The walker answers two questions about the container: where is the
// nearest block magic at or before a position, and where is the next one
// after it. Scans happen in windows of two block sizes: comfortably larger
// than any compressed block, so a missing magic inside a window means the
// block structure is broken, not that the window was too small.

// window returns the scan window size in bytes.
func (s *Seeker) window() int64 {
	return 2 * int64(s.blockSize)
}

// readAt reads length bytes at off, clamped to the file.
func (s *Seeker) readAt(off, length int64) ([]byte, error) {
	if off < 0 {
		length += off
		off = 0
	}
	if off+length > s.size {
		length = s.size - off
	}
	if length <= 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	n, err := s.r.ReadAt(buf, off)
	if err == io.EOF && int64(n) == length {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// findBackward returns the offset of the last block magic starting at or
// before pos, or -1. The scan window extends just past pos so that a magic
// beginning exactly there, or straddling it, is still seen; together with
// the strictly-after forward scan this partitions every byte offset into
// exactly one block.
func (s *Seeker) findBackward(pos int64) (int64, error) {
	end := pos + int64(len(bzip2.BlockMagic))
	if end > s.size {
		end = s.size
	}
	limit := s.window()
	if end < limit {
		limit = end
	}
	buf, err := s.readAt(end-limit, limit)
	if err != nil {
		return -1, err
	}
	idx := bytes.LastIndex(buf, bzip2.BlockMagic[:])
	if idx < 0 {
		return -1, nil
	}
	return end - limit + int64(idx), nil
}

// findForward returns the offset of the first block magic in the window
// starting at pos, or -1.
func (s *Seeker) findForward(pos int64) (int64, error) {
	buf, err := s.readAt(pos, s.window())
	if err != nil {
		return -1, err
	}
	idx := bytes.Index(buf, bzip2.BlockMagic[:])
	if idx < 0 {
		return -1, nil
	}
	return pos + int64(idx), nil
}

// startOfBlock returns the offset of the block magic at or before pos. When
// the scan window reaches the start of the file without a match, the first
// block sits immediately after the stream header.
func (s *Seeker) startOfBlock(pos int64) (int64, error) {
	off, err := s.findBackward(pos)
	if err != nil {
		return 0, err
	}
	if off > 0 {
		return off, nil
	}
	if pos <= s.window()-int64(len(bzip2.BlockMagic)) {
		return bzip2.HeaderLen, nil
	}
	return 0, fmt.Errorf("%w: no block magic within %d bytes before offset %d",
		ErrCorrupted, s.window(), pos)
}

// endOfBlock returns the offset of the next block magic strictly after pos,
// or the file size when the scan runs off the end of the stream; trimming
// the trailing CRC is the decoder's business. fromBlockStart skips the magic
// pos itself points at.
func (s *Seeker) endOfBlock(pos int64, fromBlockStart bool) (int64, error) {
	if fromBlockStart {
		pos += int64(len(bzip2.BlockMagic))
	} else {
		// Strictly after pos: a probe landing exactly on a magic must
		// not report that same magic as the block's end.
		pos++
	}
	off, err := s.findForward(pos)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return s.size, nil
	}
	return off, nil
}

// archiveLimits probes the container once at open: the first block must
// follow the header immediately, and at least one more block magic must be
// reachable from the end of the file. The returned range bounds every valid
// seek position.
func (s *Seeker) archiveLimits() (Range, error) {
	buf, err := s.readAt(bzip2.HeaderLen, int64(len(bzip2.BlockMagic)))
	if err != nil {
		return Range{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if !bytes.Equal(buf, bzip2.BlockMagic[:]) {
		return Range{}, fmt.Errorf("%w: the first block does not follow the stream header", ErrCorrupted)
	}

	end, err := s.findBackward(s.size)
	if err != nil {
		return Range{}, err
	}
	if end < bzip2.HeaderLen {
		return Range{}, fmt.Errorf("%w: no final block magic found", ErrCorrupted)
	}
	return Range{Start: bzip2.HeaderLen, End: end}, nil
}
