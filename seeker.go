// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

// Package bzseeker locates log lines bearing a given calendar date inside a
// bzip2-compressed log file without decompressing the whole archive. It
// binary-searches the container at block granularity: block boundaries are
// found by scanning for the bzip2 block magic, a candidate block is
// decompressed in isolation, and the timestamps of its first and last
// complete log lines steer the search.
//
// Block magics are assumed to sit on byte boundaries. The bzip2 format
// permits bit-level placement, so archives whose blocks are bit-packed
// mid-byte are out of reach; archives assembled from single-block streams
// (the common rotation setup this tool targets) always qualify.
package bzseeker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/srg91/bzseeker/dtreg"
	"github.com/srg91/bzseeker/internal/bzip2"
)

// DefaultFormat is the date format pattern used when a caller does not
// supply one.
const DefaultFormat = "%Y-%m-%d"

var (
	// ErrCorrupted reports that the archive does not have the layout the
	// seeker relies on: a bad stream header, a missing block magic, or a
	// block that fails to decompress.
	ErrCorrupted = errors.New("archive block structure is corrupted")

	// ErrDateParse reports that a date or a date format pattern cannot be
	// understood.
	ErrDateParse = errors.New("cannot parse date")
)

// Range is a pair of absolute file offsets with Start <= End. A compressed
// block range spans from one block magic inclusive to the next exclusive.
type Range struct {
	Start, End int64
}

type options struct {
	format string
	locale dtreg.Locale
	logger *zerolog.Logger
}

// Option configures a Seeker.
type Option func(*options)

// WithFormat sets the initial date format pattern.
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithLocale sets the locale used to expand composite directives such as %c.
func WithLocale(locale dtreg.Locale) Option {
	return func(o *options) {
		o.locale = locale
	}
}

// WithLogger installs a debug logger. Probe decisions and block ranges are
// logged at debug level; a nil logger disables logging.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Seeker is an open seek session over one archive. It owns the file offset
// bookkeeping and the active line regex, so it must not be used from more
// than one goroutine; open independent Seekers for parallelism.
type Seeker struct {
	r      io.ReaderAt
	size   int64
	closer io.Closer

	blockSize int // uncompressed block capacity from the stream header
	limits    Range

	tr     *dtreg.Translator
	format string
	layout string
	lineRE *regexp.Regexp

	logger *zerolog.Logger
}

// NewSeeker opens the archive at path.
func NewSeeker(path string, opts ...Option) (*Seeker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	s, err := NewSeekerAt(f, info.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewSeekerAt opens a seek session over an already-open archive of the given
// size. The caller retains ownership of r.
func NewSeekerAt(r io.ReaderAt, size int64, opts ...Option) (*Seeker, error) {
	o := options{
		format: DefaultFormat,
		locale: dtreg.DefaultLocale,
	}
	for _, fn := range opts {
		fn(&o)
	}

	s := &Seeker{
		r:      r,
		size:   size,
		tr:     dtreg.NewTranslator(o.locale),
		logger: o.logger,
	}

	header, err := s.readAt(0, bzip2.HeaderLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	s.blockSize, err = bzip2.ParseHeader(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	if err := s.SetFormat(o.format); err != nil {
		return nil, err
	}

	s.limits, err = s.archiveLimits()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying file when the Seeker opened it itself.
func (s *Seeker) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// Limits returns the byte-offset window of valid seek positions: from the
// first block magic to the last one.
func (s *Seeker) Limits() Range {
	return s.limits
}

// BlockSize returns the uncompressed block capacity advertised by the
// stream header.
func (s *Seeker) BlockSize() int {
	return s.blockSize
}

// Format returns the active date format pattern.
func (s *Seeker) Format() string {
	return s.format
}

// SetFormat replaces the active date format pattern and recompiles the line
// regex. It runs before any byte-level work of a call that overrides the
// pattern.
func (s *Seeker) SetFormat(format string) error {
	re, err := s.tr.Regexp(format)
	if err != nil {
		return fmt.Errorf("%w: bad format %q: %v", ErrDateParse, format, err)
	}
	layout, err := s.tr.Layout(format)
	if err != nil {
		return fmt.Errorf("%w: bad format %q: %v", ErrDateParse, format, err)
	}
	s.format = format
	s.lineRE = re
	s.layout = layout
	return nil
}

// toStamp converts a date under the active format into seconds since epoch.
func (s *Seeker) toStamp(date string) (int64, error) {
	t, err := time.ParseInLocation(s.layout, date, time.Local)
	if err != nil {
		return 0, fmt.Errorf("%w: %q with the %q format", ErrDateParse, date, s.format)
	}
	return t.Unix(), nil
}

// Seek returns the byte range of the compressed block containing the first
// occurrence of date, or nil when the date does not appear in the archive.
// A non-empty format overrides the active pattern for this and subsequent
// calls.
func (s *Seeker) Seek(date, format string) (*Range, error) {
	if format != "" {
		if err := s.SetFormat(format); err != nil {
			return nil, err
		}
	}
	stamp, err := s.toStamp(date)
	if err != nil {
		return nil, err
	}
	return s.blockWithDate(stamp)
}

// blockWithDate binary-searches the archive for the block whose first/last
// line timestamps bracket stamp.
func (s *Seeker) blockWithDate(stamp int64) (*Range, error) {
	rmin, rmax := s.limits.Start, s.limits.End
	prevStart := int64(-1)

	for rmin < rmax {
		middle := rmin + (rmax-rmin)/2

		blockStart, err := s.startOfBlock(middle)
		if err != nil {
			return nil, err
		}
		blockEnd, err := s.endOfBlock(middle, false)
		if err != nil {
			return nil, err
		}
		if blockStart >= rmax {
			break
		}
		if blockStart == prevStart {
			// The window is no longer narrowing; happens when a
			// probed block yields no usable timestamps.
			s.debug().Int64("start", blockStart).Msg("probe made no progress, giving up")
			return nil, nil
		}
		prevStart = blockStart

		block, err := s.readBlock(blockStart, blockEnd)
		if err != nil {
			return nil, err
		}
		startStamp, endStamp := s.blockStamps(block)
		s.debug().
			Int64("rmin", rmin).
			Int64("rmax", rmax).
			Int64("start", blockStart).
			Int64("end", blockEnd).
			Int64("startStamp", startStamp).
			Int64("endStamp", endStamp).
			Msg("probe")

		// A block whose first and last lines carry the same date gives
		// the search no gradient; it can only be hit via its neighbors.
		if startStamp != endStamp && startStamp <= stamp && stamp <= endStamp {
			return &Range{Start: blockStart, End: blockEnd}, nil
		}

		if startStamp < stamp {
			rmin = blockEnd
		} else {
			rmax = blockStart
		}
	}

	if rmin == rmax {
		blockStart := rmin
		blockEnd, err := s.endOfBlock(blockStart, true)
		if err != nil {
			return nil, err
		}
		block, err := s.readBlock(blockStart, blockEnd)
		if err != nil {
			return nil, err
		}
		startStamp, endStamp := s.blockStamps(block)
		s.debug().
			Int64("start", blockStart).
			Int64("end", blockEnd).
			Int64("startStamp", startStamp).
			Int64("endStamp", endStamp).
			Msg("final probe")
		if startStamp <= stamp && stamp <= endStamp {
			return &Range{Start: blockStart, End: blockEnd}, nil
		}
	}
	return nil, nil
}

// debug returns a debug event on the configured logger, or a no-op event.
func (s *Seeker) debug() *zerolog.Event {
	if s.logger == nil {
		nop := zerolog.Nop()
		return nop.Debug()
	}
	return s.logger.Debug()
}
