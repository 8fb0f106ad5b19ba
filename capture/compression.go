// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package capture

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danjacques/godemocut/protocol"
	"github.com/danjacques/godemocut/support/dataio"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// fileBufferSize is the buffer size used for file I/O (256KB).
const fileBufferSize = 1024 * 256

// Compression is a compression scheme that wraps a capture file.
type Compression int

const (
	// CompressionNone is an uncompressed capture.
	CompressionNone Compression = iota
	// CompressionGzip is a gzip-compressed capture (".gz").
	CompressionGzip
	// CompressionSnappy is a snappy-framed capture (".sz").
	CompressionSnappy
	// CompressionZstd is a zstd-compressed capture (".zst").
	CompressionZstd
)

var compressionNames = []string{"none", "gzip", "snappy", "zstd"}
var compressionSuffixes = []string{"", ".gz", ".sz", ".zst"}

func (c Compression) String() string {
	if c >= 0 && int(c) < len(compressionNames) {
		return compressionNames[c]
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(c))
}

// Suffix returns the file name suffix of the compression scheme.
func (c Compression) Suffix() string {
	if c >= 0 && int(c) < len(compressionSuffixes) {
		return compressionSuffixes[c]
	}
	return ""
}

// SplitCompression returns the compression scheme implied by a file name, and
// the file name without the compression suffix.
func SplitCompression(name string) (Compression, string) {
	lower := strings.ToLower(name)
	for c := CompressionGzip; c <= CompressionZstd; c++ {
		if suffix := c.Suffix(); strings.HasSuffix(lower, suffix) {
			return c, name[:len(name)-len(suffix)]
		}
	}
	return CompressionNone, name
}

// IsCaptureFile returns true if name looks like a (possibly compressed)
// capture file of a supported revision.
func IsCaptureFile(name string) bool {
	_, base := SplitCompression(name)
	_, err := protocol.FromExtension(base)
	return err == nil
}

// File is an open capture file.
type File struct {
	*Reader

	// Path is the path of the file.
	Path string
	// Protocol is the file's protocol, from its extension.
	Protocol *protocol.Protocol
	// Size is the size of the file on disk.
	Size int64

	fd     *os.File
	gzipR  *gzip.Reader
	zstdR  *zstd.Decoder
	closed bool
}

// Open opens the capture file at path.
func Open(path string) (*File, error) {
	comp, base := SplitCompression(path)
	proto, err := protocol.FromExtension(base)
	if err != nil {
		return nil, err
	}

	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening capture")
	}
	f := File{
		Path:     path,
		Protocol: proto,
		fd:       fd,
	}
	if st, err := fd.Stat(); err == nil {
		f.Size = st.Size()
	}

	var r io.Reader = bufio.NewReaderSize(fd, fileBufferSize)
	switch comp {
	case CompressionNone:

	case CompressionGzip:
		if f.gzipR, err = gzip.NewReader(r); err != nil {
			_ = fd.Close()
			return nil, errors.Wrap(err, "creating gzip reader")
		}
		r = f.gzipR

	case CompressionSnappy:
		r = snappy.NewReader(r)

	case CompressionZstd:
		if f.zstdR, err = zstd.NewReader(r); err != nil {
			_ = fd.Close()
			return nil, errors.Wrap(err, "creating zstd reader")
		}
		r = f.zstdR
	}

	if comp != CompressionNone {
		r = bufio.NewReader(r)
	}
	f.Reader = NewReader(dataio.MakeReader(r))
	return &f, nil
}

// Close closes the file.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if f.zstdR != nil {
		f.zstdR.Close()
	}
	if f.gzipR != nil {
		_ = f.gzipR.Close()
	}
	return f.fd.Close()
}

type compressedWriter struct {
	io.Writer

	closer  io.Closer
	bw      *bufio.Writer
	snappyW *snappy.Writer
	gzipW   *gzip.Writer
	zstdW   *zstd.Encoder
}

// NewCompressedWriter returns a WriteCloser that compresses data written to it
// using comp before writing it to base. Closing it flushes all pending data
// and closes base.
//
// level is the gzip compression level; a negative value selects the default.
func NewCompressedWriter(base io.WriteCloser, comp Compression, level int) (io.WriteCloser, error) {
	w := compressedWriter{
		bw:     bufio.NewWriterSize(base, fileBufferSize),
		closer: base,
	}

	switch comp {
	case CompressionNone:
		w.Writer = w.bw

	case CompressionGzip:
		if level < 0 {
			level = gzip.DefaultCompression
		}
		gw, err := gzip.NewWriterLevel(w.bw, level)
		if err != nil {
			return nil, errors.Wrap(err, "creating gzip writer")
		}
		w.gzipW = gw
		w.Writer = gw

	case CompressionSnappy:
		w.snappyW = snappy.NewBufferedWriter(w.bw)
		w.Writer = w.snappyW

	case CompressionZstd:
		zw, err := zstd.NewWriter(w.bw, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, errors.Wrap(err, "creating zstd writer")
		}
		w.zstdW = zw
		w.Writer = zw

	default:
		return nil, errors.Errorf("unknown compression: %s", comp)
	}
	return &w, nil
}

func (w *compressedWriter) Close() (err error) {
	// Always close our underlying base.
	defer func() {
		closeErr := w.closer.Close()
		if err == nil {
			err = closeErr
		}
	}()

	switch {
	case w.snappyW != nil:
		err = w.snappyW.Close()
	case w.gzipW != nil:
		err = w.gzipW.Close()
	case w.zstdW != nil:
		err = w.zstdW.Close()
	}
	if err != nil {
		return
	}

	err = w.bw.Flush()
	return
}
