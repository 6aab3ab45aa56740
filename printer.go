// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package bzseeker

import (
	"bytes"
	"io"
	"time"

	strftime "github.com/twmb/go-strftime"
)

// OutputDate writes every line bearing date to w, starting from the
// compressed block at offset start and advancing through successive blocks
// until the date no longer appears. The date string sought is rendered from
// the parsed timestamp, not taken from the user input, so the output always
// respects the canonical rendering of the format pattern. A non-empty format
// overrides the active pattern.
func (s *Seeker) OutputDate(w io.Writer, date string, start int64, format string) error {
	if format != "" {
		if err := s.SetFormat(format); err != nil {
			return err
		}
	}
	stamp, err := s.toStamp(date)
	if err != nil {
		return err
	}

	end, err := s.endOfBlock(start, true)
	if err != nil {
		return err
	}
	block := Range{Start: start, End: end}

	rest, err := s.printBlock(w, block, stamp, nil)
	for err == nil && len(rest) > 0 && block.End < s.size {
		next := Range{Start: block.End}
		next.End, err = s.endOfBlock(next.Start, true)
		if err != nil {
			return err
		}
		block = next
		rest, err = s.printBlock(w, block, stamp, rest)
	}
	return err
}

// printBlock emits the matching lines of one decoded block. A trailing line
// fragment without a terminating newline is returned as the remainder so the
// caller can carry it into the next block.
func (s *Seeker) printBlock(w io.Writer, blk Range, stamp int64, rest []byte) ([]byte, error) {
	block, err := s.readBlock(blk.Start, blk.End)
	if err != nil {
		return nil, err
	}
	date := strftime.AppendFormat(nil, s.format, time.Unix(stamp, 0))

	searchFrom := 0
	if len(rest) > 0 {
		nl := bytes.IndexByte(block, '\n')
		if nl < 0 {
			// The whole block is still part of the carried line.
			return append(append([]byte{}, rest...), block...), nil
		}
		joined := append(append([]byte{}, rest...), block[:nl]...)
		if bytes.Contains(joined, date) {
			if err := emitLine(w, joined); err != nil {
				return nil, err
			}
		}
		// The head fragment belongs to the line just handled; search
		// beyond it so no line is emitted twice.
		searchFrom = nl + 1
	}

	pos := bytes.Index(block[searchFrom:], date)
	if pos < 0 {
		return nil, nil
	}
	pos += searchFrom
	offset := bytes.LastIndexByte(block[:pos], '\n') + 1

	for offset < len(block) {
		nl := bytes.IndexByte(block[offset:], '\n')
		if nl < 0 {
			// The final line of the block was cut mid-way; hand it to
			// the next block so it is emitted at most once, joined
			// with its continuation.
			remainder := make([]byte, len(block)-offset)
			copy(remainder, block[offset:])
			return remainder, nil
		}
		line := block[offset : offset+nl]
		offset += nl + 1
		if !bytes.Contains(line, date) {
			return nil, nil
		}
		if err := emitLine(w, line); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func emitLine(w io.Writer, line []byte) error {
	if _, err := w.Write(line); err != nil {
		return err
	}
	_, err := w.Write([]byte{'\n'})
	return err
}
