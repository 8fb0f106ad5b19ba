// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"time"

	"github.com/danjacques/godemocut/errcode"
	"github.com/danjacques/godemocut/parser"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	filesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "democut_files_processed",
		Help: "Count of files processed, by job and outcome.",
	}, []string{"job", "outcome"})

	fileDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "democut_file_duration_seconds",
		Help:    "Time spent processing a single file, by job.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"job"})

	messagesParsed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "democut_messages_parsed",
		Help: "Count of capture messages decoded.",
	})

	invalidSnapshots = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "democut_invalid_snapshots",
		Help: "Count of snapshots that delta from an unavailable frame.",
	})

	bytesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "democut_bytes_read",
		Help: "Count of capture bytes decoded.",
	})

	cutsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "democut_cuts_written",
		Help: "Count of output captures written.",
	})

	bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "democut_bytes_written",
		Help: "Count of capture bytes written to outputs, before compression.",
	})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "democut_cache_lookups",
		Help: "Count of cut section cache lookups, by result.",
	}, []string{"result"})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		// Files
		filesProcessed,
		fileDuration,

		// Decoding
		messagesParsed,
		invalidSnapshots,
		bytesRead,

		// Output
		cutsWritten,
		bytesWritten,

		cacheLookups,
	)
}

func observeFile(job string, start time.Time, err error) {
	filesProcessed.WithLabelValues(job, errcode.Of(err).String()).Inc()
	fileDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

func observeParser(p *parser.Parser, read int64) {
	messagesParsed.Add(float64(p.MessageCount))
	invalidSnapshots.Add(float64(p.InvalidSnapshots))
	bytesRead.Add(float64(read))
}

func observeCut(cut *parser.CutInfo) {
	cutsWritten.Inc()
	bytesWritten.Add(float64(cut.BytesWritten()))
}
