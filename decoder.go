// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package bzseeker

import (
	"fmt"
	"io"

	"github.com/srg91/bzseeker/internal/bzip2"
)

// readBlock materializes the decompressed payload of the compressed block
// spanning [start, end). A terminal read, one whose end reaches the file
// size, stops short of the 4-byte stream CRC. Decoder state is built fresh
// per block, primed with the block size from the stream header, so nothing
// carries over between reads.
func (s *Seeker) readBlock(start, end int64) ([]byte, error) {
	if end >= s.size {
		end = s.size - 4
	}
	if end <= start {
		return nil, nil
	}
	raw, err := s.readAt(start, end-start)
	if err != nil {
		return nil, fmt.Errorf("%w: reading block at %d: %v", ErrCorrupted, start, err)
	}
	data, err := io.ReadAll(bzip2.NewBlockReader(s.blockSize, raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding block at %d: %v", ErrCorrupted, start, err)
	}
	return data, nil
}
