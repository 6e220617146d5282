package storage

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *VideoStore {
	t.Helper()
	store, err := NewVideoStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewVideoStore: %v", err)
	}
	return store
}

func TestSaveSanitizesFilename(t *testing.T) {
	store := newTestStore(t)

	name, err := store.Save("../evil file$.webm", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "evil_file_.webm" {
		t.Fatalf("sanitized name %q, want %q", name, "evil_file_.webm")
	}

	data, err := os.ReadFile(filepath.Join(store.dir, name))
	if err != nil {
		t.Fatalf("saved file not readable: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("saved content %q", data)
	}
	if _, err := os.Stat(filepath.Join(store.dir, "..", "evil file$.webm")); err == nil {
		t.Fatal("file escaped the uploads directory")
	}
}

func TestSaveGeneratesNameWhenEmpty(t *testing.T) {
	store := newTestStore(t)

	name, err := store.Save("", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(name, "video-") || !strings.HasSuffix(name, ".webm") {
		t.Fatalf("generated name %q", name)
	}
}

func TestListNewestFirstSkipsNonVideos(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"old.webm", "mid.mp4", "new.webm"} {
		path := filepath.Join(store.dir, name)
		if err := os.WriteFile(path, []byte("v"), 0o644); err != nil {
			t.Fatal(err)
		}
		ts := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(path, ts, ts); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(store.dir, "notes.txt"), []byte("n"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("listed %d files, want 3", len(files))
	}
	for i, want := range []string{"new.webm", "mid.mp4", "old.webm"} {
		if files[i].Name != want {
			t.Fatalf("files[%d] = %q, want %q", i, files[i].Name, want)
		}
	}
	if files[0].URL != "/uploads/new.webm" {
		t.Fatalf("url %q", files[0].URL)
	}
}

func TestDeleteCountsMissingAsNeither(t *testing.T) {
	store := newTestStore(t)

	for _, name := range []string{"a.webm", "b.webm"} {
		if err := os.WriteFile(filepath.Join(store.dir, name), []byte("v"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	deleted, errors := store.Delete([]string{"a.webm", "missing.webm", "b.webm"})
	if deleted != 2 || errors != 0 {
		t.Fatalf("deleted=%d errors=%d, want 2 and 0", deleted, errors)
	}
	files, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("%d files left after delete", len(files))
	}
}

func TestWriteZipRoundTrip(t *testing.T) {
	store := newTestStore(t)

	contents := map[string]string{
		"first.webm":  "aaaa",
		"second.webm": "bbbb",
	}
	for name, body := range contents {
		if err := os.WriteFile(filepath.Join(store.dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	count, err := store.WriteZip(&buf)
	if err != nil {
		t.Fatalf("WriteZip: %v", err)
	}
	if count != 2 {
		t.Fatalf("archived %d files, want 2", count)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("archive holds %d entries, want 2", len(zr.File))
	}
	for _, f := range zr.File {
		want, ok := contents[f.Name]
		if !ok {
			t.Fatalf("unexpected archive entry %q", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if string(body) != want {
			t.Fatalf("entry %q holds %q, want %q", f.Name, body, want)
		}
	}
}

func TestWriteZipEmptyStore(t *testing.T) {
	store := newTestStore(t)

	var buf bytes.Buffer
	count, err := store.WriteZip(&buf)
	if err != nil {
		t.Fatalf("WriteZip: %v", err)
	}
	if count != 0 {
		t.Fatalf("archived %d files from empty store", count)
	}
}
