// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package bzseeker

import (
	"bytes"
	"regexp"
	"time"
)

// A decoded block almost never starts or ends on a log-line boundary, so its
// very first and very last lines are usually fragments. The extractor works
// on the head of the block up to the second newline and on the tail from the
// penultimate newline: each slice contains one line bounded by newlines on
// both sides, plus the adjacent fragment which simply fails to match when it
// is incomplete.

// blockStamps extracts the timestamps of the first and last complete lines
// of a decoded block. 0 means no recognizable timestamp.
func (s *Seeker) blockStamps(block []byte) (startStamp, endStamp int64) {
	return blockStamps(s.lineRE, s.layout, block)
}

func blockStamps(re *regexp.Regexp, layout string, block []byte) (startStamp, endStamp int64) {
	head := block
	if first := bytes.IndexByte(block, '\n'); first >= 0 {
		if second := bytes.IndexByte(block[first+1:], '\n'); second >= 0 {
			head = block[:first+1+second]
		}
	}

	tail := block
	if last := bytes.LastIndexByte(block, '\n'); last > 0 {
		if pen := bytes.LastIndexByte(block[:last-1], '\n'); pen >= 0 {
			tail = block[pen:]
		}
	}

	return stampFromLine(re, layout, head, false), stampFromLine(re, layout, tail, true)
}

// stampFromLine finds a date in line and converts it into seconds since
// epoch. With reverse set the last match wins instead of the first. Any
// failure yields the 0 sentinel.
func stampFromLine(re *regexp.Regexp, layout string, line []byte, reverse bool) int64 {
	if len(line) == 0 {
		return 0
	}
	matches := re.FindAll(line, -1)
	if len(matches) == 0 {
		return 0
	}
	match := matches[0]
	if reverse {
		match = matches[len(matches)-1]
	}
	t, err := time.ParseInLocation(layout, string(match), time.Local)
	if err != nil {
		return 0
	}
	if stamp := t.Unix(); stamp > 0 {
		return stamp
	}
	return 0
}
