// Package fetcher retrieves distfiles over HTTP(S), verifying their SHA-256
// digest before they're considered present, and pipelines one fetch ahead of
// the build executor consuming them.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/tav/redpill/pkg/display"
	"github.com/tav/redpill/pkg/errs"
)

// Fetcher downloads distfiles and verifies their digest, matching
// download_distfile/_download_distfile's verify-then-write contract: the
// digest is always checked, and a mismatch is a fatal download error
// regardless of whether dest already existed.
type Fetcher struct {
	client *http.Client
	disp   display.Display
	group  singleflight.Group
}

// New returns a Fetcher that reports progress through disp.
func New(disp display.Display) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 0},
		disp:   disp,
	}
}

// Spec describes one distfile to retrieve.
type Spec struct {
	Name   string // package name, for progress messages
	URL    string
	SHA256 string // hex-encoded, compared case-insensitively
	Dest   string // final path on disk
}

// Fetch downloads spec.URL to spec.Dest, verifying its SHA-256 digest
// against spec.SHA256. If dest already exists and its digest matches, the
// download is skipped. The file is written to a temporary sibling and
// renamed into place only after the digest check passes, so a failed or
// interrupted fetch never leaves a corrupt distfile at Dest. Concurrent
// Fetch calls for the same Dest (the one-ahead pipeline only ever holds one,
// but a caller racing it with a stray second enqueue is otherwise possible)
// collapse into a single download via singleflight.
func (f *Fetcher) Fetch(ctx context.Context, spec Spec) error {
	_, err, _ := f.group.Do(spec.Dest, func() (any, error) {
		return nil, f.fetch(ctx, spec)
	})
	return err
}

func (f *Fetcher) fetch(ctx context.Context, spec Spec) error {
	if ok, err := matchesDigest(spec.Dest, spec.SHA256); err == nil && ok {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(spec.Dest), 0o755); err != nil {
		return errs.Wrap(errs.Download, fmt.Sprintf("creating distfile directory for %s", spec.Name), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(spec.Dest), ".fetch-*")
	if err != nil {
		return errs.Wrap(errs.Download, fmt.Sprintf("creating temp file for %s", spec.Name), err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := f.download(ctx, spec, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.Download, fmt.Sprintf("closing distfile for %s", spec.Name), err)
	}

	ok, err := matchesDigest(tmpPath, spec.SHA256)
	if err != nil {
		return errs.Wrap(errs.Download, fmt.Sprintf("verifying digest for %s", spec.Name), err)
	}
	if !ok {
		return errs.New(errs.Download, fmt.Sprintf("Got an invalid hash digest for %s", filepath.Base(spec.Dest)))
	}

	if err := os.Rename(tmpPath, spec.Dest); err != nil {
		return errs.Wrap(errs.Download, fmt.Sprintf("installing distfile for %s", spec.Name), err)
	}
	return nil
}

func (f *Fetcher) download(ctx context.Context, spec Spec, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return errs.Wrap(errs.Download, fmt.Sprintf("building request for %s", spec.Name), err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.Download, fmt.Sprintf("fetching %s", spec.Name), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.Download, fmt.Sprintf("fetching %s: bad status: %s", spec.Name, resp.Status))
	}

	pw := &progressWriter{disp: f.disp, name: spec.Name, total: resp.ContentLength, start: time.Now()}
	_, err = io.Copy(io.MultiWriter(w, pw), resp.Body)
	if err != nil {
		return errs.Wrap(errs.Download, fmt.Sprintf("fetching %s", spec.Name), err)
	}
	return nil
}

// matchesDigest reports whether the file at path hashes to want, a
// hex-encoded SHA-256 digest compared case-insensitively per spec.
func matchesDigest(path, want string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), want), nil
}

type progressWriter struct {
	disp    display.Display
	name    string
	total   int64
	written int64
	start   time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.written += int64(n)
	if pw.disp == nil {
		return n, nil
	}

	elapsed := time.Since(pw.start).Seconds()
	var speed float64
	if elapsed > 0 {
		speed = float64(pw.written) / elapsed
	}
	if pw.total > 0 {
		pw.disp.Progress("%s: %s / %s (%s/s)", pw.name,
			humanize.Bytes(uint64(pw.written)), humanize.Bytes(uint64(pw.total)), humanize.Bytes(uint64(speed)))
	} else {
		pw.disp.Progress("%s: %s downloaded (%s/s)", pw.name,
			humanize.Bytes(uint64(pw.written)), humanize.Bytes(uint64(speed)))
	}
	return n, nil
}
