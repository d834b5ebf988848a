// Package web serves the monitor page.
package web

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DevEnv names the environment variable that makes the handler read the page
// from the source tree on every request.
const DevEnv = "NBMSG_MONITOR_DEV"

//go:embed dist/index.html
var indexPage []byte

var indexETag = etagOf(indexPage)

// Handler serves the monitor page at "/" and "/index.html". Anything else
// under the prefix it is mounted on is a 404, so API typos do not render
// the page.
func Handler() http.Handler {
	return http.HandlerFunc(servePage)
}

func servePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	page, etag, err := loadPage()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("ETag", etag)

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if r.Method == http.MethodHead {
		return
	}

	_, _ = w.Write(page)
}

func loadPage() ([]byte, string, error) {
	if !isDevelopmentMode() {
		return indexPage, indexETag, nil
	}

	page, err := os.ReadFile(devPagePath())
	if err != nil {
		return nil, "", err
	}

	return page, etagOf(page), nil
}

func devPagePath() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("error getting path")
	}

	return filepath.Join(filepath.Dir(file), "dist", "index.html")
}

func etagOf(page []byte) string {
	sum := sha256.Sum256(page)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

func isDevelopmentMode() bool {
	v, ok := os.LookupEnv(DevEnv)
	if !ok {
		return false
	}

	return strings.EqualFold(v, "true") || v == "1"
}
