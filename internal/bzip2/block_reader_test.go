// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package bzip2

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	dbzip2 "github.com/dsnet/compress/bzip2"
)

func compressStream(t *testing.T, payload []byte) []byte {
	t.Helper()
	var stream bytes.Buffer
	w, err := dbzip2.NewWriter(&stream, &dbzip2.WriterConfig{Level: dbzip2.BestSpeed})
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return stream.Bytes()
}

func testPayload(n int) []byte {
	var b bytes.Buffer
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "line %06d: the quick brown fox jumps over the lazy dog\n", i)
	}
	return b.Bytes()
}

func TestBlockReaderRoundTrip(t *testing.T) {
	payload := testPayload(20 * 1024)
	stream := compressStream(t, payload)

	blockSize, err := ParseHeader(stream)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	got, err := io.ReadAll(NewBlockReader(blockSize, stream[HeaderLen:]))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("decoded %v bytes, want %v", len(got), len(payload))
	}
}

// The reader stops at the block's end-of-block symbol, so trailing bytes -
// the stream trailer, or a truncated CRC - never disturb it.
func TestBlockReaderIgnoresTrailer(t *testing.T) {
	payload := testPayload(4 * 1024)
	stream := compressStream(t, payload)

	got, err := io.ReadAll(NewBlockReader(100*1024, stream[HeaderLen:len(stream)-4]))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("decoded %v bytes, want %v", len(got), len(payload))
	}
}

// A payload cut mid-way must fail: the bit reader records the starved read
// even when the phantom bits happen to parse, so truncation can never pass
// as a successful decode.
func TestBlockReaderTruncatedPayload(t *testing.T) {
	payload := testPayload(20 * 1024)
	stream := compressStream(t, payload)

	cut := stream[:len(stream)/2]
	data, err := io.ReadAll(NewBlockReader(100*1024, cut[HeaderLen:]))
	if err == nil {
		t.Fatalf("decoded %v bytes from a truncated payload without error", len(data))
	}
}

func TestBlockReaderBadMagic(t *testing.T) {
	_, err := io.ReadAll(NewBlockReader(100*1024, []byte{0, 1, 2, 3, 4, 5, 6, 7}))
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(StructuralError); !ok {
		t.Errorf("got %T: %v", err, err)
	}

	_, err = io.ReadAll(NewBlockReader(100*1024, []byte{0x31}))
	if err == nil {
		t.Fatal("expected an error for a short block")
	}
}

func TestBlockReaderCorruptBlock(t *testing.T) {
	payload := testPayload(20 * 1024)
	stream := compressStream(t, payload)

	broken := append([]byte{}, stream...)
	for i := 200; i < 208; i++ {
		broken[i] ^= 0x5a
	}
	if _, err := io.ReadAll(NewBlockReader(100*1024, broken[HeaderLen:])); err == nil {
		t.Error("expected an error for a corrupted block")
	}
}

func TestParseHeader(t *testing.T) {
	for _, tc := range []struct {
		header string
		size   int
		ok     bool
	}{
		{"BZh1", 100 * 1024, true},
		{"BZh9", 900 * 1024, true},
		{"BZh0", 0, false},
		{"BZx9", 0, false},
		{"XXh9", 0, false},
		{"BZ", 0, false},
		{"", 0, false},
	} {
		size, err := ParseHeader([]byte(tc.header))
		if tc.ok != (err == nil) {
			t.Errorf("ParseHeader(%q): err = %v", tc.header, err)
			continue
		}
		if tc.ok && size != tc.size {
			t.Errorf("ParseHeader(%q) = %v, want %v", tc.header, size, tc.size)
		}
	}
}
