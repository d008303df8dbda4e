// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package middleware

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// compressionMinBytes is the smallest response body Compression will
// bother gzip-encoding. Most of this API's JSON envelopes (health
// checks, control-action acks) are well under this, and gzip framing
// overhead would make them larger, not smaller.
const compressionMinBytes = 1024

// gzipWriterPool pools gzip writers so a burst of compressible
// responses doesn't allocate a fresh deflate state per request.
var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		return gzip.NewWriter(nil)
	},
}

// gzipResponseWriter buffers the handler's output so Compression can
// decide whether it's worth gzip-encoding once the full body is known,
// rather than committing to a streaming encoding before the size is
// known.
type gzipResponseWriter struct {
	http.ResponseWriter
	buf        bytes.Buffer
	statusCode int
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	w.statusCode = status
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

// Compression gzip-encodes a handler's response when the client
// advertises support for it and the body clears compressionMinBytes.
// WebSocket upgrades are passed through untouched, since a gzip
// encoding has no meaning on a hijacked connection.
func Compression(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next(w, r)
			return
		}
		if r.Header.Get("Upgrade") == "websocket" {
			next(w, r)
			return
		}

		buffered := &gzipResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(buffered, r)

		body := buffered.buf.Bytes()
		if len(body) < compressionMinBytes {
			w.WriteHeader(buffered.statusCode)
			_, _ = w.Write(body)
			return
		}

		gz, _ := gzipWriterPool.Get().(*gzip.Writer)
		defer gzipWriterPool.Put(gz)

		var out bytes.Buffer
		gz.Reset(&out)
		if _, err := gz.Write(body); err != nil {
			// Compression failed; fall back to the uncompressed body
			// rather than losing the response.
			w.WriteHeader(buffered.statusCode)
			_, _ = w.Write(body)
			return
		}
		_ = gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Length", strconv.Itoa(out.Len()))
		w.WriteHeader(buffered.statusCode)
		_, _ = w.Write(out.Bytes())
	}
}
