package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestMemoryFileSystem_CreateAndRead(t *testing.T) {
	m := NewMemoryFileSystem()

	w, err := m.Create("exports/export_all.csv")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w.Write([]byte(`"imei"` + "\n"))
	w.Write([]byte(`"123"` + "\n"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := m.ReadFile("exports/export_all.csv")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "\"imei\"\n\"123\"\n" {
		t.Errorf("got %q", string(data))
	}

	info, err := m.Stat("exports/export_all.csv")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != int64(len(data)) || info.IsDir() {
		t.Errorf("unexpected info: size=%d dir=%v", info.Size(), info.IsDir())
	}
}

func TestMemoryFileSystem_MissingFile(t *testing.T) {
	m := NewMemoryFileSystem()

	if _, err := m.ReadFile("nope.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile error = %v, want ErrNotExist", err)
	}
	if _, err := m.Stat("nope.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat error = %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_MkdirAllCreatesParents(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.MkdirAll("out/reports/2025", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, dir := range []string{"out", "out/reports", "out/reports/2025"} {
		info, err := m.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected %s to be a directory (err=%v)", dir, err)
		}
	}
}

func TestMemoryFileSystem_AddFileCopies(t *testing.T) {
	m := NewMemoryFileSystem()
	src := []byte("abc")
	m.AddFile("capture.json", src)
	src[0] = 'z'

	data, _ := m.ReadFile("capture.json")
	if string(data) != "abc" {
		t.Errorf("AddFile should copy input, got %q", string(data))
	}
}

func TestOSFileSystem_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	osfs := OSFileSystem{}

	if err := osfs.MkdirAll(filepath.Join(dir, "a", "b"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	path := filepath.Join(dir, "a", "b", "f.txt")
	w, err := osfs.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w.Write([]byte("hello"))
	w.Close()

	data, err := osfs.ReadFile(path)
	if err != nil || string(data) != "hello" {
		t.Errorf("ReadFile = %q, %v", string(data), err)
	}
	if _, err := osfs.Stat(path); err != nil {
		t.Errorf("Stat failed: %v", err)
	}
	if err := osfs.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := osfs.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat after Remove = %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_Remove(t *testing.T) {
	m := NewMemoryFileSystem()
	m.AddFile("exports/partial.csv", []byte(`"imei"`))

	if err := m.Remove("exports/partial.csv"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := m.Stat("exports/partial.csv"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat after Remove = %v, want ErrNotExist", err)
	}
	if err := m.Remove("exports/partial.csv"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("second Remove = %v, want ErrNotExist", err)
	}
}
