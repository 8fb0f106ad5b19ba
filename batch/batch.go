// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package batch processes many files with a bounded pool of workers,
// isolating the failure of each file from the others.
package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danjacques/godemocut/errcode"
	"github.com/danjacques/godemocut/protocol"
	"github.com/danjacques/godemocut/support/bufferpool"
	"github.com/danjacques/godemocut/support/logging"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Worker count limits.
const (
	MinThreads = 1
	MaxThreads = 16
)

// ClampThreads clamps a requested worker count to [MinThreads, MaxThreads].
func ClampThreads(n int) int {
	switch {
	case n < MinThreads:
		return MinThreads
	case n > MaxThreads:
		return MaxThreads
	default:
		return n
	}
}

// Batches partitions a list of files into batches of bounded size.
type Batches struct {
	fileCount int
	size      int
	next      int
}

// NewBatches partitions fileCount files into batches of at most size files.
// If size is not positive, all files form a single batch.
func NewBatches(fileCount, size int) *Batches {
	if size <= 0 || size > fileCount {
		size = fileCount
	}
	return &Batches{fileCount: fileCount, size: size}
}

// Count returns the number of batches.
func (b *Batches) Count() int {
	if b.fileCount == 0 {
		return 0
	}
	return (b.fileCount + b.size - 1) / b.size
}

// PrepareNextBatch advances to the next batch, returning its index. It
// returns false when every batch has been prepared.
func (b *Batches) PrepareNextBatch() (int, bool) {
	if b.next >= b.Count() {
		return 0, false
	}
	i := b.next
	b.next++
	return i, true
}

// Info returns the index of the first file of batch i and the number of files
// it holds.
func (b *Batches) Info(i int) (first, count int) {
	first = i * b.size
	count = b.size
	if rem := b.fileCount - first; rem < count {
		count = rem
	}
	return
}

// Observer receives progress notifications. Calls are serialized.
type Observer interface {
	// Progress reports that completed of total files are done.
	Progress(completed, total int)
	// Message reports a human-readable status message.
	Message(msg string)
}

// File is a single file being processed.
type File struct {
	// Index is the file's index in the list passed to Run.
	Index int
	Path  string

	// Buffer is a message buffer owned by the file's worker until the file
	// completes.
	Buffer []byte

	// Logger is annotated with the file being processed.
	Logger logging.L

	// BytesRead should be set to the number of input bytes consumed.
	BytesRead int64
}

// FileFunc processes a single file. It should return promptly with ctx's
// error once ctx is cancelled.
type FileFunc func(ctx context.Context, f *File) error

// Result is the outcome of a Run.
type Result struct {
	// Codes holds the outcome of each file, by index.
	Codes []errcode.Code
	// Errors holds the error of each failed file, by index.
	Errors []error

	BytesRead int64
	Duration  time.Duration
}

// Failed returns the number of files that did not succeed.
func (r *Result) Failed() int {
	n := 0
	for _, c := range r.Codes {
		if c != errcode.None {
			n++
		}
	}
	return n
}

// Runner processes files in batches.
type Runner struct {
	// Threads is the number of concurrent workers. It is clamped to
	// [MinThreads, MaxThreads].
	Threads int
	// BatchSize is the maximum number of files per batch. If not positive,
	// all files form one batch.
	BatchSize int

	// Observer, if not nil, receives progress notifications.
	Observer Observer
	// Logger, if not nil, is used to log progress.
	Logger logging.L

	// WithFile, if not nil, returns the logger for a file.
	WithFile func(path string) logging.L

	buffers bufferpool.Pool
	mu      sync.Mutex
}

// Run processes files with fn.
//
// Batches run one after another; the files of a batch run concurrently. A
// failing file does not affect any other. Once ctx is cancelled no further
// file is started and the files not started are marked errcode.Skipped.
//
// Run itself only fails if it is misconfigured. File failures are reported
// in the Result.
func (r *Runner) Run(ctx context.Context, files []string, fn FileFunc) (*Result, error) {
	if fn == nil {
		return nil, errors.New("no file function")
	}
	logger := logging.Must(r.Logger)
	threads := ClampThreads(r.Threads)
	r.buffers.Size = protocol.MaxMessageLength

	res := Result{
		Codes:  make([]errcode.Code, len(files)),
		Errors: make([]error, len(files)),
	}
	start := time.Now()
	var completed int32

	batches := NewBatches(len(files), r.BatchSize)
	for {
		bi, ok := batches.PrepareNextBatch()
		if !ok {
			break
		}
		first, count := batches.Info(bi)
		logger.Debugf("Starting batch %d/%d (%d files, %d workers).", bi+1, batches.Count(), count, threads)
		if batches.Count() > 1 {
			r.message(fmt.Sprintf("Processing batch %d of %d", bi+1, batches.Count()))
		}

		var g errgroup.Group
		g.SetLimit(threads)
		for i := first; i < first+count; i++ {
			i := i
			if ctx.Err() != nil {
				res.Codes[i], res.Errors[i] = errcode.Skipped, ctx.Err()
				continue
			}

			g.Go(func() error {
				f := File{
					Index:  i,
					Path:   files[i],
					Logger: r.fileLogger(files[i], logger),
				}
				err := r.runFile(ctx, &f, fn)
				res.Codes[i], res.Errors[i] = errcode.Of(err), err
				atomic.AddInt64(&res.BytesRead, f.BytesRead)
				if err != nil {
					f.Logger.Warnf("Failed to process file: %s", err)
					r.message(fmt.Sprintf("%s: %s", files[i], errcode.Of(err)))
				}
				r.progress(int(atomic.AddInt32(&completed, 1)), len(files))
				return nil
			})
		}

		// File functions never return errors to the group.
		_ = g.Wait()
	}

	res.Duration = time.Since(start)
	return &res, nil
}

func (r *Runner) runFile(ctx context.Context, f *File, fn FileFunc) (err error) {
	// Wait for a slot before checking for cancellation, so no file starts
	// after ctx is cancelled.
	if err := ctx.Err(); err != nil {
		return errcode.Wrap(err, errcode.Skipped)
	}

	buf := r.buffers.Get()
	defer buf.Release()
	f.Buffer = buf.Bytes()

	defer func() {
		if rv := recover(); rv != nil {
			err = errcode.Wrap(errors.Errorf("panic: %v", rv), errcode.Crashed)
		}
	}()
	return fn(ctx, f)
}

func (r *Runner) fileLogger(path string, base logging.L) logging.L {
	if r.WithFile != nil {
		if l := r.WithFile(path); l != nil {
			return l
		}
	}
	return base
}

func (r *Runner) progress(completed, total int) {
	if r.Observer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Observer.Progress(completed, total)
}

func (r *Runner) message(msg string) {
	if r.Observer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Observer.Message(msg)
}
