// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package bzseeker

import (
	"container/heap"
	"context"
	"fmt"
	"io"
	"regexp"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"github.com/srg91/bzseeker/dtreg"
	"github.com/srg91/bzseeker/internal/bzip2"
)

// BlockInfo describes one decoded block of an inspected archive.
type BlockInfo struct {
	Seq            uint64 // 1-based position in the stream
	Offset         int64  // absolute file offset of the block magic
	CompressedSize int
	Size           int // decompressed size
	StartStamp     int64
	EndStamp       int64
}

// Progress reports one correctly ordered inspection event, for driving a
// progress display.
type Progress struct {
	Block      uint64
	Offset     int64
	Compressed int
	Size       int
}

type inspectorOpts struct {
	concurrency int
	format      string
	locale      dtreg.Locale
	logger      *zerolog.Logger
	progressCh  chan<- Progress
}

// InspectorOption represents an option to NewInspector.
type InspectorOption func(*inspectorOpts)

// InspectConcurrency sets the number of blocks decoded in parallel.
func InspectConcurrency(n int) InspectorOption {
	return func(o *inspectorOpts) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// InspectFormat sets the date format pattern used to extract block
// timestamps.
func InspectFormat(format string) InspectorOption {
	return func(o *inspectorOpts) {
		o.format = format
	}
}

// InspectLocale sets the locale used to expand composite directives.
func InspectLocale(locale dtreg.Locale) InspectorOption {
	return func(o *inspectorOpts) {
		o.locale = locale
	}
}

// InspectLogger installs a debug logger.
func InspectLogger(logger *zerolog.Logger) InspectorOption {
	return func(o *inspectorOpts) {
		o.logger = logger
	}
}

// InspectProgress sets the channel progress updates are sent over.
func InspectProgress(ch chan<- Progress) InspectorOption {
	return func(o *inspectorOpts) {
		o.progressCh = ch
	}
}

// Inspector enumerates the blocks of an archive, decoding them concurrently
// and reporting them in stream order. Unlike the Seeker it needs no random
// access: any io.Reader will do.
type Inspector struct {
	concurrency int
	format      string
	lineRE      *regexp.Regexp
	layout      string
	logger      *zerolog.Logger
	progressCh  chan<- Progress
}

// NewInspector creates an inspector.
func NewInspector(opts ...InspectorOption) (*Inspector, error) {
	o := inspectorOpts{
		concurrency: runtime.GOMAXPROCS(-1),
		format:      DefaultFormat,
		locale:      dtreg.DefaultLocale,
	}
	for _, fn := range opts {
		fn(&o)
	}
	tr := dtreg.NewTranslator(o.locale)
	re, err := tr.Regexp(o.format)
	if err != nil {
		return nil, fmt.Errorf("%w: bad format %q: %v", ErrDateParse, o.format, err)
	}
	layout, err := tr.Layout(o.format)
	if err != nil {
		return nil, fmt.Errorf("%w: bad format %q: %v", ErrDateParse, o.format, err)
	}
	return &Inspector{
		concurrency: o.concurrency,
		format:      o.format,
		lineRE:      re,
		layout:      layout,
		logger:      o.logger,
		progressCh:  o.progressCh,
	}, nil
}

type inspectDesc struct {
	seq       uint64
	offset    int64
	blockSize int
	raw       []byte

	data []byte
	err  error
}

func (d *inspectDesc) decompress() {
	d.data, d.err = io.ReadAll(bzip2.NewBlockReader(d.blockSize, d.raw))
}

// Inspect scans rd and invokes fn once per block, in stream order, and
// returns the first scanner, decoder or callback error. A scanner error ends
// the scan; after a decoder or callback error the remaining blocks are still
// scanned and decoded, but fn is not called for them.
func (in *Inspector) Inspect(ctx context.Context, rd io.Reader, fn func(BlockInfo) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workCh := make(chan *inspectDesc, in.concurrency)
	doneCh := make(chan *inspectDesc, in.concurrency)

	var workWg sync.WaitGroup
	workWg.Add(in.concurrency)
	for i := 0; i < in.concurrency; i++ {
		go func() {
			defer workWg.Done()
			in.worker(ctx, workCh, doneCh)
		}()
	}
	go func() {
		workWg.Wait()
		close(doneCh)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- in.assemble(doneCh, fn)
	}()

	sc := NewScanner(rd)
	seq := uint64(0)
	var scanErr error
	for sc.Scan(ctx) {
		block := sc.Block()
		seq++
		desc := &inspectDesc{
			seq:       seq,
			offset:    block.Offset,
			blockSize: sc.BlockSize(),
			raw:       block.Data,
		}
		select {
		case workCh <- desc:
		case <-ctx.Done():
			scanErr = ctx.Err()
		}
		if scanErr != nil {
			break
		}
	}
	if scanErr == nil {
		scanErr = sc.Err()
	}
	close(workCh)

	err := <-errCh
	if scanErr != nil {
		return scanErr
	}
	return err
}

func (in *Inspector) worker(ctx context.Context, input <-chan *inspectDesc, output chan<- *inspectDesc) {
	for {
		select {
		case desc, ok := <-input:
			if !ok {
				return
			}
			desc.decompress()
			select {
			case output <- desc:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// assemble reorders decoded blocks by sequence number and runs the callback.
// After the first error it keeps draining so the workers can finish, but
// stops reporting.
func (in *Inspector) assemble(ch <-chan *inspectDesc, fn func(BlockInfo) error) error {
	h := &inspectHeap{}
	heap.Init(h)
	expected := uint64(1)
	var firstErr error

	for desc := range ch {
		heap.Push(h, desc)
		for h.Len() > 0 && (*h)[0].seq == expected {
			min := heap.Pop(h).(*inspectDesc)
			expected++
			if firstErr != nil {
				continue
			}
			if min.err != nil {
				firstErr = fmt.Errorf("%w: block %d at offset %d: %v",
					ErrCorrupted, min.seq, min.offset, min.err)
				continue
			}
			startStamp, endStamp := blockStamps(in.lineRE, in.layout, min.data)
			info := BlockInfo{
				Seq:            min.seq,
				Offset:         min.offset,
				CompressedSize: len(min.raw),
				Size:           len(min.data),
				StartStamp:     startStamp,
				EndStamp:       endStamp,
			}
			if in.logger != nil {
				in.logger.Debug().
					Uint64("seq", info.Seq).
					Int64("offset", info.Offset).
					Int("compressed", info.CompressedSize).
					Int("size", info.Size).
					Msg("inspected block")
			}
			if err := fn(info); err != nil {
				firstErr = err
				continue
			}
			if in.progressCh != nil {
				in.progressCh <- Progress{
					Block:      info.Seq,
					Offset:     info.Offset,
					Compressed: info.CompressedSize,
					Size:       info.Size,
				}
			}
		}
	}
	return firstErr
}

type inspectHeap []*inspectDesc

func (h inspectHeap) Len() int           { return len(h) }
func (h inspectHeap) Less(i, j int) bool { return h[i].seq < h[j].seq }
func (h inspectHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *inspectHeap) Push(x interface{}) {
	// Push and Pop use pointer receivers because they modify the slice's
	// length, not just its contents.
	*h = append(*h, x.(*inspectDesc))
}

func (h *inspectHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
