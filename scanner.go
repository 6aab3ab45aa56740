// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package bzseeker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/srg91/bzseeker/internal/bzip2"
)

type scannerOpts struct {
	maxOverhead int
}

// ScannerOption represents an option to NewScanner.
type ScannerOption func(*scannerOpts)

// ScanOverhead sets the number of bytes, beyond two uncompressed block
// sizes, that the scanner assumes is sufficient to capture a whole
// compressed block. It should only ever be needed if the scanner is unable
// to find a block magic.
func ScanOverhead(b int) ScannerOption {
	return func(o *scannerOpts) {
		o.maxOverhead = b
	}
}

// Block is one compressed block located by the Scanner.
type Block struct {
	Offset int64  // absolute file offset of the block magic
	Data   []byte // compressed bytes from the magic up to the next magic or the stream trailer
	Last   bool   // final data block of the stream
}

// Scanner walks an archive front to back over a plain io.Reader, without
// random access, yielding each compressed block. Like the Seeker it assumes
// block magics are byte-aligned.
type Scanner struct {
	rd          io.Reader
	brd         *bufio.Reader
	err         error
	block       Block
	blockSize   int
	offset      int64
	first, done bool
	maxOverhead int
}

// NewScanner returns a new instance of Scanner.
func NewScanner(rd io.Reader, opts ...ScannerOption) *Scanner {
	o := scannerOpts{
		// Allow enough overhead for the bzip2 per-block coding tables.
		maxOverhead: 30 * 1024,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &Scanner{
		rd:          rd,
		first:       true,
		maxOverhead: o.maxOverhead,
	}
}

func (sc *Scanner) scanHeader() bool {
	var header [bzip2.HeaderLen]byte
	if _, err := io.ReadFull(sc.rd, header[:]); err != nil {
		sc.err = fmt.Errorf("%w: failed to read stream header: %v", ErrCorrupted, err)
		return false
	}
	sc.blockSize, sc.err = bzip2.ParseHeader(header[:])
	if sc.err != nil {
		sc.err = fmt.Errorf("%w: %v", ErrCorrupted, sc.err)
		return false
	}
	sc.brd = bufio.NewReaderSize(sc.rd, 2*sc.blockSize+sc.maxOverhead)
	sc.offset = bzip2.HeaderLen

	buf, err := sc.brd.Peek(len(bzip2.BlockMagic))
	if err != nil || !bytes.Equal(buf, bzip2.BlockMagic[:]) {
		sc.err = fmt.Errorf("%w: the first block does not follow the stream header", ErrCorrupted)
		return false
	}
	return true
}

// Scan returns true if there is a block to be returned.
func (sc *Scanner) Scan(ctx context.Context) bool {
	if sc.err != nil || sc.done {
		return false
	}
	select {
	case <-ctx.Done():
		sc.err = ctx.Err()
		return false
	default:
	}
	if sc.first {
		if !sc.scanHeader() {
			return false
		}
		sc.first = false
	}

	lookahead := 2*sc.blockSize + sc.maxOverhead
	eof := false
	buf, err := sc.brd.Peek(lookahead)
	if err != nil {
		if err != io.EOF {
			sc.err = err
			return false
		}
		eof = true
	}
	if len(buf) <= len(bzip2.BlockMagic) {
		sc.err = fmt.Errorf("%w: stream ends inside a block magic", ErrCorrupted)
		return false
	}

	// buf begins at the current block's magic; look for the next one.
	if idx := bytes.Index(buf[len(bzip2.BlockMagic):], bzip2.BlockMagic[:]); idx >= 0 {
		sz := len(bzip2.BlockMagic) + idx
		sc.emit(buf[:sz], false)
		sc.brd.Discard(sz)
		return true
	}
	if !eof {
		sc.err = fmt.Errorf("%w: no block magic within %d bytes at offset %d",
			ErrCorrupted, lookahead, sc.offset)
		return false
	}

	// Final block: strip the stream trailer. The end-of-stream magic is
	// byte-aligned in the archives the seeker targets; fall back to
	// dropping the 4 CRC bytes when it is not.
	data := buf
	if idx := bytes.LastIndex(buf, bzip2.EOSMagic[:]); idx > 0 {
		data = buf[:idx]
	} else if len(buf) > 4 {
		data = buf[:len(buf)-4]
	}
	sc.emit(data, true)
	sc.done = true
	return true
}

func (sc *Scanner) emit(raw []byte, last bool) {
	data := make([]byte, len(raw))
	copy(data, raw)
	sc.block = Block{Offset: sc.offset, Data: data, Last: last}
	sc.offset += int64(len(raw))
}

// BlockSize returns the uncompressed block capacity advertised by the
// stream header. It is valid after the first successful Scan.
func (sc *Scanner) BlockSize() int {
	return sc.blockSize
}

// Block returns the current compressed block.
func (sc *Scanner) Block() Block {
	return sc.block
}

// Err returns any error encountered by the scanner.
func (sc *Scanner) Err() error {
	return sc.err
}
