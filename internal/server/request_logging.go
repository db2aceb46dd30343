package server

import (
	"net/http"
	"time"
)

// statusRecorder captures what a handler wrote for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap lets http.ResponseController reach Flush and deadlines underneath.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbePath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.Status(),
			"bytes_out", rw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}
		if r.ContentLength > 0 {
			fields = append(fields, "bytes_in", r.ContentLength)
		}
		if r.Pattern != "" {
			fields = append(fields, "route", r.Pattern)
		}
		if id := r.PathValue("id"); id != "" {
			fields = append(fields, "id", id)
		}

		switch status := rw.Status(); {
		case status >= 500:
			s.log().Error("request complete", fields...)
		case status == http.StatusTooManyRequests:
			s.log().Warn("request complete", fields...)
		default:
			s.log().Debug("request complete", fields...)
		}
	})
}
