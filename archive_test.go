// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package bzseeker

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	dbzip2 "github.com/dsnet/compress/bzip2"
)

// buildArchive compresses each chunk as its own single-block stream and
// splices the streams after a shared header. Every block magic lands on a
// byte boundary, which is the archive shape the seeker targets.
func buildArchive(t *testing.T, chunks [][]byte) []byte {
	t.Helper()
	var out bytes.Buffer
	for i, chunk := range chunks {
		var stream bytes.Buffer
		w, err := dbzip2.NewWriter(&stream, &dbzip2.WriterConfig{Level: dbzip2.BestSpeed})
		if err != nil {
			t.Fatalf("bzip2 writer: %v", err)
		}
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("compress chunk %v: %v", i, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close chunk %v: %v", i, err)
		}
		raw := stream.Bytes()
		if i == 0 {
			out.Write(raw)
		} else {
			out.Write(raw[4:])
		}
	}
	return out.Bytes()
}

// monthLog renders a log covering every day of January 2020, a few hundred
// lines per day.
func monthLog() []byte {
	var b bytes.Buffer
	paths := []string{"/index.html", "/status", "/metrics", "/login", "/api/v1/items"}
	for day := 1; day <= 31; day++ {
		for hour := 0; hour < 24; hour++ {
			for minute := 0; minute < 60; minute += 3 {
				i := day*1440 + hour*60 + minute
				fmt.Fprintf(&b, "2020-01-%02d %02d:%02d:00 web-%d GET %s 200\n",
					day, hour, minute, i%7, paths[i%len(paths)])
			}
		}
	}
	return b.Bytes()
}

// dayLog renders one day's worth of lines.
func dayLog(day int) []byte {
	var b bytes.Buffer
	for hour := 0; hour < 24; hour++ {
		for minute := 0; minute < 60; minute += 3 {
			fmt.Fprintf(&b, "2020-01-%02d %02d:%02d:00 web-%d GET /status 200\n",
				day, hour, minute, (hour+minute)%7)
		}
	}
	return b.Bytes()
}

// monthChunks splits a month log at mid-day boundaries: every cut lands
// inside a noon line, past its timestamp, so blocks end mid-line (the
// fragment carry is exercised) while each day between two boundaries lies
// wholly inside one block.
func monthChunks(log []byte) [][]byte {
	var chunks [][]byte
	prev := 0
	for _, day := range []int{2, 5, 8, 11, 14, 16, 19, 22, 25, 28} {
		marker := fmt.Sprintf("2020-01-%02d 12:00", day)
		idx := bytes.Index(log, []byte(marker))
		cut := idx + 30
		chunks = append(chunks, log[prev:cut])
		prev = cut
	}
	return append(chunks, log[prev:])
}

// grepLines returns the lines of data containing needle, in order.
func grepLines(data []byte, needle string) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, needle) {
			out = append(out, line)
		}
	}
	return out
}

func newTestSeeker(t *testing.T, archive []byte, opts ...Option) *Seeker {
	t.Helper()
	s, err := NewSeekerAt(bytes.NewReader(archive), int64(len(archive)), opts...)
	if err != nil {
		t.Fatalf("NewSeekerAt: %v", err)
	}
	return s
}
