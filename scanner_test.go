// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package bzseeker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/srg91/bzseeker/internal/bzip2"
)

func TestScanBlocks(t *testing.T) {
	ctx := context.Background()
	chunks := monthChunks(monthLog())
	archive := buildArchive(t, chunks)

	sc := NewScanner(bytes.NewReader(archive))
	var blocks []Block
	for sc.Scan(ctx) {
		blocks = append(blocks, sc.Block())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(blocks) != len(chunks) {
		t.Fatalf("scanned %v blocks, want %v", len(blocks), len(chunks))
	}
	if sc.BlockSize() != 100*1024 {
		t.Errorf("block size = %v, want %v", sc.BlockSize(), 100*1024)
	}

	for i, block := range blocks {
		if i > 0 && block.Offset <= blocks[i-1].Offset {
			t.Fatalf("block %v offset %v is not increasing", i, block.Offset)
		}
		if last := i == len(blocks)-1; block.Last != last {
			t.Errorf("block %v: Last = %v, want %v", i, block.Last, last)
		}
		data, err := io.ReadAll(bzip2.NewBlockReader(sc.BlockSize(), block.Data))
		if err != nil {
			t.Fatalf("decode block %v: %v", i, err)
		}
		if !bytes.Equal(data, chunks[i]) {
			t.Errorf("block %v decodes to %v bytes, want %v", i, len(data), len(chunks[i]))
		}
	}
}

func TestScanRejectsGarbage(t *testing.T) {
	sc := NewScanner(bytes.NewReader([]byte("certainly not a bzip2 stream")))
	if sc.Scan(context.Background()) {
		t.Fatal("scan succeeded on garbage")
	}
	if !errors.Is(sc.Err(), ErrCorrupted) {
		t.Errorf("got %v", sc.Err())
	}
}

func TestInspectOrdersBlocks(t *testing.T) {
	ctx := context.Background()
	chunks := monthChunks(monthLog())
	archive := buildArchive(t, chunks)

	insp, err := NewInspector(InspectConcurrency(4))
	if err != nil {
		t.Fatalf("NewInspector: %v", err)
	}
	var infos []BlockInfo
	err = insp.Inspect(ctx, bytes.NewReader(archive), func(info BlockInfo) error {
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if len(infos) != len(chunks) {
		t.Fatalf("inspected %v blocks, want %v", len(infos), len(chunks))
	}

	total := 0
	for i, info := range infos {
		if info.Seq != uint64(i+1) {
			t.Fatalf("block %v: seq %v out of order", i, info.Seq)
		}
		if info.Size != len(chunks[i]) {
			t.Errorf("block %v: size %v, want %v", i, info.Size, len(chunks[i]))
		}
		if info.StartStamp == 0 || info.EndStamp == 0 || info.StartStamp > info.EndStamp {
			t.Errorf("block %v: bad stamp span %v..%v", i, info.StartStamp, info.EndStamp)
		}
		total += info.Size
	}
	if want := len(monthLog()); total != want {
		t.Errorf("decompressed %v bytes in total, want %v", total, want)
	}
}

func TestInspectReportsProgress(t *testing.T) {
	ctx := context.Background()
	chunks := monthChunks(monthLog())
	archive := buildArchive(t, chunks)

	ch := make(chan Progress, len(chunks)+1)
	insp, err := NewInspector(InspectConcurrency(2), InspectProgress(ch))
	if err != nil {
		t.Fatalf("NewInspector: %v", err)
	}
	err = insp.Inspect(ctx, bytes.NewReader(archive), func(BlockInfo) error { return nil })
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	close(ch)
	next := uint64(1)
	for p := range ch {
		if p.Block != next {
			t.Fatalf("progress for block %v, want %v", p.Block, next)
		}
		next++
	}
	if next != uint64(len(chunks)+1) {
		t.Errorf("got %v progress events, want %v", next-1, len(chunks))
	}
}

func TestInspectCorruptBlock(t *testing.T) {
	ctx := context.Background()
	chunks := monthChunks(monthLog())
	archive := buildArchive(t, chunks)
	offsets := scanOffsets(t, archive)

	broken := append([]byte{}, archive...)
	at := offsets[1] + 50
	for i := int64(0); i < 8; i++ {
		broken[at+i] ^= 0xa5
	}

	insp, err := NewInspector(InspectConcurrency(4))
	if err != nil {
		t.Fatalf("NewInspector: %v", err)
	}
	err = insp.Inspect(ctx, bytes.NewReader(broken), func(BlockInfo) error { return nil })
	if err == nil {
		t.Fatal("inspect succeeded on a corrupted block")
	}
}
