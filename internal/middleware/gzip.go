package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

var compressResponse = chimiddleware.Compress(gzip.BestSpeed, "application/json", "text/html", "text/plain")

type gzipBody struct {
	zr   *gzip.Reader
	orig io.ReadCloser
}

func (b *gzipBody) Read(p []byte) (int, error) {
	return b.zr.Read(p)
}

func (b *gzipBody) Close() error {
	if err := b.zr.Close(); err != nil {
		_ = b.orig.Close()
		return err
	}
	return b.orig.Close()
}

// GzipMiddleware распаковывает тела запросов с Content-Encoding: gzip и сжимает
// ответы для клиентов, принимающих gzip.
func GzipMiddleware(next http.Handler) http.Handler {
	compressed := compressResponse(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, "invalid gzip body", http.StatusBadRequest)
				return
			}
			r.Body = &gzipBody{zr: zr, orig: r.Body}
			r.Header.Del("Content-Encoding")
			r.Header.Del("Content-Length")
			r.ContentLength = -1
		}

		compressed.ServeHTTP(w, r)
	})
}
