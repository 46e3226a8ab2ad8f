package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func digestOf(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func TestFetchVerifiesDigest(t *testing.T) {
	const body = "package contents"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "foo-1.0.tar.bz2")

	f := New(nil)
	err := f.Fetch(context.Background(), Spec{
		Name:   "foo",
		URL:    srv.URL,
		SHA256: digestOf(body),
		Dest:   dest,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != body {
		t.Fatalf("got %q, want %q", got, body)
	}
}

func TestFetchRejectsBadDigest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("actual contents"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "foo-1.0.tar.bz2")

	f := New(nil)
	err := f.Fetch(context.Background(), Spec{
		Name:   "foo",
		URL:    srv.URL,
		SHA256: digestOf("wrong contents"),
		Dest:   dest,
	})
	if err == nil {
		t.Fatal("expected an error for mismatched digest")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("dest should not exist after a failed fetch, stat err = %v", statErr)
	}
}

func TestFetchSkipsExistingMatchingFile(t *testing.T) {
	const body = "already here"
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "foo-1.0.tar.bz2")
	if err := os.WriteFile(dest, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New(nil)
	err := f.Fetch(context.Background(), Spec{
		Name:   "foo",
		URL:    srv.URL,
		SHA256: digestOf(body),
		Dest:   dest,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if called {
		t.Fatal("expected Fetch to skip the network request for an already-valid file")
	}
}

func TestPipelineStartWait(t *testing.T) {
	const body = "pipelined"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "bar-1.0.tar.bz2")

	f := New(nil)
	p := NewPipeline(context.Background(), f)
	p.Start(Spec{Name: "bar", URL: srv.URL, SHA256: digestOf(body), Dest: dest})
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != body {
		t.Fatalf("got %q, want %q", got, body)
	}
}
