// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package bzip2

import (
	"bytes"
	"io"
)

// BlockReader is an io.Reader over the decompressed payload of a single
// bzip2 block.
type BlockReader struct {
	dec *blockDecoder
	err error
}

// NewBlockReader returns a reader for one compressed block. src must begin
// with the block magic; anything after the block's entropy-coded payload
// (the next block, the stream trailer, a truncated CRC) is ignored.
// blockSize is the uncompressed block capacity advertised by the stream
// header, as returned by ParseHeader.
func NewBlockReader(blockSize int, src []byte) io.Reader {
	if len(src) < len(BlockMagic) {
		return &BlockReader{err: StructuralError("block is shorter than its magic number")}
	}
	if !bytes.Equal(src[:len(BlockMagic)], BlockMagic[:]) {
		return &BlockReader{err: StructuralError("no block magic at start of block")}
	}
	dec := &blockDecoder{
		blockSize: blockSize,
		tt:        make([]uint32, blockSize),
		br:        newBitReader(bytes.NewBuffer(src[len(BlockMagic):])),
	}
	err := dec.readBlock()
	// The bit reader swallows read errors and serves phantom bits, so a
	// truncated payload may parse without a structural complaint; its
	// recorded error is what tells truncation apart from success.
	if brErr := dec.br.Err(); brErr != nil {
		err = brErr
	}
	if err != nil {
		return &BlockReader{err: err}
	}
	return &BlockReader{dec: dec}
}

// Read implements io.Reader.
func (br *BlockReader) Read(buf []byte) (n int, err error) {
	if br.err != nil {
		return 0, br.err
	}
	n = br.dec.readFromBlock(buf)
	if brErr := br.dec.br.Err(); brErr != nil {
		br.err = brErr
		return 0, brErr
	}
	if n > 0 || len(buf) == 0 {
		br.dec.blockCRC.update(buf[:n])
		return n, nil
	}
	if br.dec.blockCRC.val != br.dec.wantBlockCRC {
		br.err = StructuralError("block checksum mismatch")
		return 0, br.err
	}
	br.err = io.EOF
	return 0, io.EOF
}
