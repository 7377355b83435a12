package internal

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestUploadPostsMultipartAndReturnsRef(t *testing.T) {
	var gotFilename, gotUsername string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/images" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotUsername = r.FormValue("username")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"img-123"}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(path, []byte("not really a png"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	relay, err := NewImageRelay(server.URL, 0)
	if err != nil {
		t.Fatalf("NewImageRelay: %v", err)
	}
	ref, err := relay.Upload(path, "alice")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ref != server.URL+"/api/images/img-123" {
		t.Fatalf("unexpected ref: %s", ref)
	}
	if gotFilename != "photo.png" || gotUsername != "alice" {
		t.Fatalf("unexpected form data: file=%s user=%s", gotFilename, gotUsername)
	}
	if !IsImageRef(ref) {
		t.Fatalf("ref should be recognized as image reference: %s", ref)
	}
}

func TestUploadRejectsNonImages(t *testing.T) {
	relay, err := NewImageRelay("ws://localhost:8080", 0)
	if err != nil {
		t.Fatalf("NewImageRelay: %v", err)
	}
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("text"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := relay.Upload(path, "alice"); err == nil {
		t.Fatalf("expected rejection for non-image")
	}
}

func TestUploadRejectsOversizedImages(t *testing.T) {
	relay, err := NewImageRelay("ws://localhost:8080", 8)
	if err != nil {
		t.Fatalf("NewImageRelay: %v", err)
	}
	path := filepath.Join(t.TempDir(), "big.png")
	if err := os.WriteFile(path, []byte("way more than eight bytes"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := relay.Upload(path, "alice"); err == nil {
		t.Fatalf("expected rejection for oversized image")
	}
}

func TestIsImageFile(t *testing.T) {
	for _, path := range []string{"a.png", "b.JPG", "c.jpeg", "d.gif", "e.webp"} {
		if !IsImageFile(path) {
			t.Fatalf("%s should be an image", path)
		}
	}
	for _, path := range []string{"a.txt", "b.pdf", "noext"} {
		if IsImageFile(path) {
			t.Fatalf("%s should not be an image", path)
		}
	}
}
