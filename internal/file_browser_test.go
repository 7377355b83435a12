package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBrowseDirectoryListsOnlyImagesAndDirs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"photo.png", "notes.txt", "pic.JPG", ".hidden.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "albums"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	items, err := browseDirectory(dir)
	if err != nil {
		t.Fatalf("browseDirectory: %v", err)
	}

	var names []string
	for _, item := range items {
		names = append(names, item.Name)
	}
	// parent entry, then dirs, then image files
	want := []string{"..", "albums", "photo.png", "pic.JPG"}
	if len(names) != len(want) {
		t.Fatalf("unexpected listing: %v", names)
	}
	for idx := range want {
		if names[idx] != want[idx] {
			t.Fatalf("position %d: expected %s, got %s", idx, want[idx], names[idx])
		}
	}
}

func TestFormatFileSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 << 20, "3.0 MB"},
	}
	for _, tc := range cases {
		if got := formatFileSize(tc.in); got != tc.want {
			t.Fatalf("%d: expected %s, got %s", tc.in, tc.want, got)
		}
	}
}
