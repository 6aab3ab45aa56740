// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

// Command bzseek locates log lines bearing a given calendar date inside
// bzip2-compressed log files without decompressing the whole archive.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"cloudeng.io/cmdutil"
	"cloudeng.io/cmdutil/subcmd"
	"cloudeng.io/errors"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v2"
	"github.com/srg91/bzseeker"
	strftime "github.com/twmb/go-strftime"
	"golang.org/x/crypto/ssh/terminal"
)

type seekFlags struct {
	OffsetOnly bool `subcmd:"offset-only,false,'print the byte offsets of the matching block instead of its lines'"`
	Hex        bool `subcmd:"hex,false,'render offsets in hexadecimal'"`
	Verbose    bool `subcmd:"verbose,false,'verbose debug/trace information'"`
}

type inspectFlags struct {
	Concurrency int    `subcmd:"concurrency,4,'number of blocks decoded concurrently'"`
	Format      string `subcmd:"format,,'date format pattern used for block timestamps'"`
	Progress    bool   `subcmd:"progress,true,'display a progress bar'"`
	Verbose     bool   `subcmd:"verbose,false,'verbose debug/trace information'"`
}

var cmdSet *subcmd.CommandSet

func init() {
	seekCmd := subcmd.NewCommand("seek",
		subcmd.MustRegisterFlagStruct(&seekFlags{}, nil, nil),
		seek, subcmd.AtLeastNArguments(2))
	seekCmd.Document(`locate the lines bearing a date: seek FILE DATE [FORMAT]. The default format is %Y-%m-%d.`)

	inspectCmd := subcmd.NewCommand("inspect",
		subcmd.MustRegisterFlagStruct(&inspectFlags{}, map[string]interface{}{
			"format": bzseeker.DefaultFormat,
		}, nil),
		inspect, subcmd.AtLeastNArguments(1))
	inspectCmd.Document(`list every compressed block of the archives with its offsets, sizes and timestamp span. Files may be local, on S3 or a URL.`)

	cmdSet = subcmd.NewCommandSet(seekCmd, inspectCmd)
	cmdSet.Document(`seek dates in bzip2-compressed log files.`)

	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

func main() {
	cmdSet.MustDispatch(context.Background())
}

func debugLogger(verbose bool) *zerolog.Logger {
	if !verbose {
		return nil
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()
	return &logger
}

func seek(ctx context.Context, values interface{}, args []string) error {
	cl := values.(*seekFlags)
	if len(args) > 3 {
		return fmt.Errorf("at most three arguments expected: FILE DATE [FORMAT]")
	}
	archive, date := args[0], args[1]

	opts := []bzseeker.Option{}
	if len(args) == 3 {
		opts = append(opts, bzseeker.WithFormat(args[2]))
	}
	if logger := debugLogger(cl.Verbose); logger != nil {
		opts = append(opts, bzseeker.WithLogger(logger))
	}

	skr, err := bzseeker.NewSeeker(archive, opts...)
	if err != nil {
		return err
	}
	errs := &errors.M{}
	block, err := skr.Seek(date, "")
	if err == nil && block == nil {
		err = fmt.Errorf("cannot find the date %v in this archive", date)
	}
	if err != nil {
		errs.Append(err)
		errs.Append(skr.Close())
		return errs.Err()
	}

	if cl.OffsetOnly {
		mask := "%d"
		if cl.Hex {
			mask = "0x%x"
		}
		fmt.Printf("Start offset of the block in the archive: "+mask+"\n", block.Start)
		fmt.Printf("End offset of the block in the archive: "+mask+"\n", block.End)
	} else {
		errs.Append(skr.OutputDate(os.Stdout, date, block.Start, ""))
	}
	errs.Append(skr.Close())
	return errs.Err()
}

func inspect(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*inspectFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	for _, name := range args {
		if err := inspectOne(ctx, cl, name); err != nil {
			return err
		}
	}
	return nil
}

func inspectOne(ctx context.Context, cl *inspectFlags, name string) error {
	rd, size, cleanup, err := openFileOrURL(ctx, name)
	if err != nil {
		return err
	}
	errs := &errors.M{}

	inOpts := []bzseeker.InspectorOption{
		bzseeker.InspectConcurrency(cl.Concurrency),
		bzseeker.InspectFormat(cl.Format),
	}
	if logger := debugLogger(cl.Verbose); logger != nil {
		inOpts = append(inOpts, bzseeker.InspectLogger(logger))
	}

	var (
		progressBarWg sync.WaitGroup
		progressBarCh chan bzseeker.Progress
	)
	if cl.Progress && size > 0 && terminal.IsTerminal(int(os.Stderr.Fd())) {
		progressBarCh = make(chan bzseeker.Progress, cl.Concurrency)
		inOpts = append(inOpts, bzseeker.InspectProgress(progressBarCh))
		progressBarWg.Add(1)
		go func() {
			defer progressBarWg.Done()
			progressBar(ctx, os.Stderr, progressBarCh, size)
		}()
	}

	insp, err := bzseeker.NewInspector(inOpts...)
	if err != nil {
		errs.Append(err)
		errs.Append(cleanup(ctx))
		return errs.Err()
	}

	fmt.Printf("=== %v ===\n", name)
	fmt.Printf("%5v %12v %12v %12v  %v .. %v\n",
		"Block", "Offset", "Compressed", "Size", "First", "Last")
	err = insp.Inspect(ctx, rd, func(info bzseeker.BlockInfo) error {
		fmt.Printf("%5d %12d %12d %12d  %v .. %v\n",
			info.Seq, info.Offset, info.CompressedSize, info.Size,
			renderStamp(info.StartStamp, cl.Format),
			renderStamp(info.EndStamp, cl.Format))
		return nil
	})
	errs.Append(err)
	errs.Append(cleanup(ctx))

	if progressBarCh != nil {
		close(progressBarCh)
		progressBarWg.Wait()
	}
	return errs.Err()
}

func renderStamp(stamp int64, format string) string {
	if stamp == 0 {
		return "-"
	}
	return string(strftime.AppendFormat(nil, format, time.Unix(stamp, 0)))
}

func progressBar(ctx context.Context, progressBarWr io.Writer, ch chan bzseeker.Progress, size int64) {
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetBytes64(size),
		progressbar.OptionSetWriter(progressBarWr),
		progressbar.OptionSetPredictTime(true))
	bar.RenderBlank()
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				fmt.Fprintf(progressBarWr, "\n")
				return
			}
			bar.Add(p.Compressed)
		case <-ctx.Done():
			return
		}
	}
}

func openFileOrURL(ctx context.Context, name string) (io.Reader, int64, func(context.Context) error, error) {
	if strings.HasPrefix(name, "http") {
		resp, err := http.Get(name)
		if err != nil {
			return nil, 0, nil, err
		}
		return resp.Body,
			resp.ContentLength,
			func(context.Context) error {
				resp.Body.Close()
				return nil
			},
			nil
	}
	info, err := file.Stat(ctx, name)
	if err != nil {
		return nil, 0, nil, err
	}
	f, err := file.Open(ctx, name)
	if err != nil {
		return nil, 0, nil, err
	}
	return f.Reader(ctx), info.Size(), f.Close, nil
}
