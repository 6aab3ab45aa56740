// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package bzseeker

import (
	"bytes"
	"errors"
	"testing"

	"github.com/srg91/bzseeker/internal/bzip2"
)

func TestSeekFindsDate(t *testing.T) {
	archive := buildArchive(t, monthChunks(monthLog()))
	s := newTestSeeker(t, archive)

	for _, date := range []string{"2020-01-02", "2020-01-15", "2020-01-28"} {
		rng, err := s.Seek(date, "")
		if err != nil {
			t.Fatalf("seek %v: %v", date, err)
		}
		if rng == nil {
			t.Fatalf("seek %v: no block found", date)
		}
		if rng.Start < bzip2.HeaderLen || rng.Start >= rng.End || rng.End > int64(len(archive)) {
			t.Fatalf("seek %v: bad range %+v", date, rng)
		}
		block, err := s.readBlock(rng.Start, rng.End)
		if err != nil {
			t.Fatalf("seek %v: decode returned block: %v", date, err)
		}
		if !bytes.Contains(block, []byte(date)) {
			t.Errorf("seek %v: decoded block does not contain the date", date)
		}
	}
}

func TestSeekMiss(t *testing.T) {
	archive := buildArchive(t, monthChunks(monthLog()))
	s := newTestSeeker(t, archive)

	for _, date := range []string{"2019-12-31", "2020-02-01", "2021-06-01"} {
		rng, err := s.Seek(date, "")
		if err != nil {
			t.Fatalf("seek %v: %v", date, err)
		}
		if rng != nil {
			t.Errorf("seek %v: expected a miss, got %+v", date, rng)
		}
	}
}

func TestSeekIdempotent(t *testing.T) {
	archive := buildArchive(t, monthChunks(monthLog()))
	s := newTestSeeker(t, archive)

	first, err := s.Seek("2020-01-20", "")
	if err != nil || first == nil {
		t.Fatalf("first seek: %+v, %v", first, err)
	}
	second, err := s.Seek("2020-01-20", "")
	if err != nil || second == nil {
		t.Fatalf("second seek: %+v, %v", second, err)
	}
	if *first != *second {
		t.Errorf("seek is not idempotent: %+v vs %+v", first, second)
	}
}

// Day-aligned blocks carry the same date on their first and last lines, so
// every probe is inconclusive for the search loop and hits come from the
// post-loop probe.
func TestSeekSingleDateBlocks(t *testing.T) {
	chunks := make([][]byte, 0, 5)
	for day := 1; day <= 5; day++ {
		chunks = append(chunks, dayLog(day))
	}
	archive := buildArchive(t, chunks)
	s := newTestSeeker(t, archive)

	rng, err := s.Seek("2020-01-03", "")
	if err != nil || rng == nil {
		t.Fatalf("seek mid day: %+v, %v", rng, err)
	}
	block, err := s.readBlock(rng.Start, rng.End)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Contains(block, []byte("2020-01-03")) {
		t.Errorf("returned block does not contain the date")
	}

	// The final day lives in the block whose end reaches EOF; the decoder
	// trims the stream CRC.
	rng, err = s.Seek("2020-01-05", "")
	if err != nil || rng == nil {
		t.Fatalf("seek final day: %+v, %v", rng, err)
	}
	if rng.End != int64(len(archive)) {
		t.Errorf("final block end = %v, want file size %v", rng.End, len(archive))
	}
	block, err = s.readBlock(rng.Start, rng.End)
	if err != nil {
		t.Fatalf("decode final block: %v", err)
	}
	if !bytes.Contains(block, []byte("2020-01-05")) {
		t.Errorf("final block does not contain the date")
	}

	if rng, err := s.Seek("2020-01-06", ""); err != nil || rng != nil {
		t.Errorf("seek past the archive: %+v, %v", rng, err)
	}
	if rng, err := s.Seek("2019-12-25", ""); err != nil || rng != nil {
		t.Errorf("seek before the archive: %+v, %v", rng, err)
	}
}

func TestSeekSingleBlockArchive(t *testing.T) {
	archive := buildArchive(t, [][]byte{append(dayLog(1), dayLog(2)...)})
	s := newTestSeeker(t, archive)

	if limits := s.Limits(); limits.Start != limits.End {
		t.Fatalf("single block limits: %+v", limits)
	}
	rng, err := s.Seek("2020-01-02", "")
	if err != nil || rng == nil {
		t.Fatalf("seek: %+v, %v", rng, err)
	}
	if rng.Start != bzip2.HeaderLen || rng.End != int64(len(archive)) {
		t.Errorf("range %+v, want the whole stream", rng)
	}
	if rng, err := s.Seek("2020-01-03", ""); err != nil || rng != nil {
		t.Errorf("miss in single block: %+v, %v", rng, err)
	}
}

func TestNewSeekerRejectsBadHeader(t *testing.T) {
	archive := buildArchive(t, [][]byte{dayLog(1)})

	broken := append([]byte{}, archive...)
	broken[0] = 'X'
	if _, err := NewSeekerAt(bytes.NewReader(broken), int64(len(broken))); !errors.Is(err, ErrCorrupted) {
		t.Errorf("bad signature: got %v", err)
	}

	// A valid header whose following bytes are not the block magic.
	broken = append([]byte{}, archive...)
	broken[5] ^= 0xff
	if _, err := NewSeekerAt(bytes.NewReader(broken), int64(len(broken))); !errors.Is(err, ErrCorrupted) {
		t.Errorf("bad first magic: got %v", err)
	}
}

func TestSeekBadDate(t *testing.T) {
	archive := buildArchive(t, [][]byte{dayLog(1)})
	s := newTestSeeker(t, archive)

	if _, err := s.Seek("15.01.2020", ""); !errors.Is(err, ErrDateParse) {
		t.Errorf("unparseable date: got %v", err)
	}
	if _, err := s.Seek("2020-01-01", "%w"); !errors.Is(err, ErrDateParse) {
		t.Errorf("unparseable format: got %v", err)
	}
}

func TestSeekFormatOverride(t *testing.T) {
	archive := buildArchive(t, monthChunks(monthLog()))
	s := newTestSeeker(t, archive)

	rng, err := s.Seek("2020-01-15 10:30", "%Y-%m-%d %H:%M")
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	if rng == nil {
		t.Fatal("no block found for a minute-level target")
	}
	block, err := s.readBlock(rng.Start, rng.End)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Contains(block, []byte("2020-01-15 10:30")) {
		t.Errorf("returned block does not contain the target time")
	}
	if s.Format() != "%Y-%m-%d %H:%M" {
		t.Errorf("format override did not stick: %v", s.Format())
	}
}

// An archive cut mid-way through the final block's compressed payload: dates
// in earlier blocks stay reachable, and decoding the torn block fails with a
// clean structural error rather than yielding wrong bytes.
func TestSeekTruncatedFinalBlock(t *testing.T) {
	archive := buildArchive(t, monthChunks(monthLog()))
	offsets := scanOffsets(t, archive)
	lastStart := offsets[len(offsets)-1]
	if int64(len(archive))-lastStart < 200 {
		t.Fatalf("fixture: final block holds only %v bytes", int64(len(archive))-lastStart)
	}
	truncated := archive[:lastStart+150]
	s := newTestSeeker(t, truncated)

	rng, err := s.Seek("2020-01-03", "")
	if err != nil {
		t.Fatalf("seek in truncated archive: %v", err)
	}
	if rng == nil {
		t.Fatalf("date in an earlier block not found")
	}
	block, err := s.readBlock(rng.Start, rng.End)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Contains(block, []byte("2020-01-03")) {
		t.Errorf("returned block does not contain the date")
	}

	data, err := s.readBlock(lastStart, int64(len(truncated)))
	if err == nil {
		t.Fatalf("torn final block decoded %v bytes without error", len(data))
	}
	if !errors.Is(err, ErrCorrupted) {
		t.Errorf("torn final block: got %v", err)
	}
}

func TestLimits(t *testing.T) {
	archive := buildArchive(t, monthChunks(monthLog()))
	s := newTestSeeker(t, archive)

	limits := s.Limits()
	if limits.Start != bzip2.HeaderLen {
		t.Errorf("limits start = %v, want %v", limits.Start, bzip2.HeaderLen)
	}
	want := int64(bytes.LastIndex(archive, bzip2.BlockMagic[:]))
	if limits.End != want {
		t.Errorf("limits end = %v, want %v", limits.End, want)
	}
	if s.BlockSize() != 100*1024 {
		t.Errorf("block size = %v, want %v", s.BlockSize(), 100*1024)
	}
}
