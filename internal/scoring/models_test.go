package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
)

func TestModelManagerList(t *testing.T) {
	m := NewModelManager(t.TempDir(), nil)

	list := m.List()
	if len(list) == 0 {
		t.Fatal("List() returned no checkpoints")
	}

	for i := 1; i < len(list); i++ {
		if list[i-1].Name >= list[i].Name {
			t.Errorf("List() not sorted: %s before %s", list[i-1].Name, list[i].Name)
		}
	}
}

func TestModelManagerLookup(t *testing.T) {
	m := NewModelManager(t.TempDir(), nil)

	cp, err := m.Lookup("wmt22-comet-da")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if cp.Metric != "comet" {
		t.Errorf("Metric = %s, want comet", cp.Metric)
	}

	_, err = m.Lookup("no-such-model")
	if err == nil {
		t.Fatal("Lookup() expected error for unknown checkpoint")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("Lookup() error = %v, want not found", err)
	}
}

func TestModelManagerStatus(t *testing.T) {
	dir := t.TempDir()
	m := NewModelManager(dir, nil)

	if m.Installed("wmt22-comet-da") {
		t.Error("Installed() = true for empty directory")
	}

	// Create all files of one checkpoint
	cp, _ := m.Lookup("wmt22-comet-da")
	for _, f := range cp.Files {
		path := filepath.Join(dir, cp.Name, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("weights"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if !m.Installed("wmt22-comet-da") {
		t.Error("Installed() = false after creating files")
	}

	var found bool
	for _, st := range m.Status() {
		if st.Checkpoint.Name != "wmt22-comet-da" {
			continue
		}
		found = true
		if !st.Installed || st.SizeBytes == 0 {
			t.Errorf("Status() = %+v, want installed with nonzero size", st)
		}
	}
	if !found {
		t.Fatal("Status() missing wmt22-comet-da")
	}
}

func TestModelManagerDownload(t *testing.T) {
	content := []byte("fake checkpoint bytes")
	sum := sha256.Sum256(content)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := NewModelManager(dir, nil)
	m.baseURL = srv.URL
	m.manifest = []Checkpoint{{
		Name:   "tiny",
		RepoID: "test/tiny",
		Metric: "comet",
		Files:  []string{"model.bin"},
		SHA256: map[string]string{"model.bin": hex.EncodeToString(sum[:])},
	}}

	var progressCalls int
	err := m.Download(context.Background(), "tiny", func(file string, downloaded, total int64) {
		progressCalls++
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if progressCalls == 0 {
		t.Error("Download() never reported progress")
	}

	got, err := os.ReadFile(filepath.Join(dir, "tiny", "model.bin"))
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if string(got) != string(content) {
		t.Error("downloaded content mismatch")
	}

	if !m.Installed("tiny") {
		t.Error("Installed() = false after download")
	}

	// Remove cleans up
	if err := m.Remove("tiny"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if m.Installed("tiny") {
		t.Error("Installed() = true after Remove()")
	}
}

func TestModelManagerChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("corrupted"))
	}))
	defer srv.Close()

	m := NewModelManager(t.TempDir(), nil)
	m.baseURL = srv.URL
	m.manifest = []Checkpoint{{
		Name:   "tiny",
		RepoID: "test/tiny",
		Metric: "comet",
		Files:  []string{"model.bin"},
		SHA256: map[string]string{"model.bin": "00ff00ff"},
	}}

	err := m.Download(context.Background(), "tiny", nil)
	if err == nil {
		t.Fatal("Download() expected checksum error")
	}
}
