// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

// Package bzip2 implements decompression of individual bzip2 blocks.
//
// Unlike compress/bzip2 it does not consume a whole stream: given the
// advertised block size from the stream header and the raw bytes of one
// compressed block (starting at the 48-bit block magic), BlockReader
// decodes that block in isolation. This is what makes random access into
// a bzip2 container possible at block granularity.
//
// The entropy decoding core is derived from the standard library's
// compress/bzip2 package.
package bzip2

import "fmt"

var (
	// FileMagic is the bzip2 stream magic number, "BZ".
	FileMagic = []byte{0x42, 0x5a}

	// BlockMagic prefixes every compressed block (the first 48 bits of pi,
	// BCD-encoded).
	BlockMagic = [6]byte{0x31, 0x41, 0x59, 0x26, 0x53, 0x59}

	// EOSMagic marks the end of the stream (sqrt(pi), BCD-encoded). The
	// 32-bit stream CRC follows it.
	EOSMagic = [6]byte{0x17, 0x72, 0x45, 0x38, 0x50, 0x90}
)

// HeaderLen is the size of the stream header: "BZh" plus a block-size digit.
const HeaderLen = 4

// A StructuralError is returned when the bzip2 data is found to be
// syntactically invalid.
type StructuralError string

func (s StructuralError) Error() string {
	return "bzip2 data invalid: " + string(s)
}

// ParseHeader validates a stream header and returns the maximum number of
// uncompressed bytes a single block of the stream may hold.
//
//	.magic:16              = 'BZ' signature/magic number
//	.version:8             = 'h' for Bzip2 ('H'uffman coding)
//	.hundred_k_blocksize:8 = '1'..'9' block-size 100 kB-900 kB (uncompressed)
func ParseHeader(buf []byte) (int, error) {
	if len(buf) < HeaderLen {
		return -1, StructuralError(fmt.Sprintf("stream header is too small: %v", len(buf)))
	}
	if buf[0] != FileMagic[0] || buf[1] != FileMagic[1] {
		return -1, StructuralError(fmt.Sprintf("wrong file magic: %x", buf[0:2]))
	}
	if buf[2] != 'h' {
		return -1, StructuralError(fmt.Sprintf("wrong version: %c", buf[2]))
	}
	if s := buf[3]; s < '1' || s > '9' {
		return -1, StructuralError(fmt.Sprintf("bad block size: %c", s))
	}
	return 100 * 1024 * int(buf[3]-'0'), nil
}
