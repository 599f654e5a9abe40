package sink

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
		errMsg  string
	}{
		{name: "valid simple path", path: "foo/bar.go"},
		{name: "valid single file", path: "Widgets_GetWidgetPipeline.go"},
		{name: "empty path", path: "", wantErr: true, errMsg: "empty"},
		{name: "absolute path", path: "/abs/path.go", wantErr: true, errMsg: "absolute paths not allowed"},
		{name: "windows drive", path: "C:/x.go", wantErr: true, errMsg: "absolute paths not allowed"},
		{name: "traversal", path: "foo/../bar.go", wantErr: true, errMsg: "path traversal not allowed"},
		{name: "leading traversal", path: "../bar.go", wantErr: true, errMsg: "path traversal not allowed"},
		{name: "dot prefix", path: "./foo.go", wantErr: true, errMsg: "not clean"},
		{name: "double slash", path: "foo//bar.go", wantErr: true, errMsg: "not clean"},
		{name: "trailing slash", path: "foo/", wantErr: true, errMsg: "not clean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("ValidatePath(%q) error = %q, want it to contain %q", tt.path, err, tt.errMsg)
			}
		})
	}
}

// storeTests runs the Store contract against a fresh store from newStore.
func storeTests(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("write and read", func(t *testing.T) {
		s := newStore(t)
		if err := s.WriteFile(ctx, "a.go", []byte("package a")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		got, err := s.ReadFile(ctx, "a.go")
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if string(got) != "package a" {
			t.Errorf("ReadFile() = %q, want %q", got, "package a")
		}
	})

	t.Run("read missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ReadFile(ctx, "missing.go")
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("ReadFile() error = %v, want fs.ErrNotExist", err)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		s := newStore(t)
		_ = s.WriteFile(ctx, "a.go", []byte("first"))
		if err := s.WriteFile(ctx, "a.go", []byte("second")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		got, _ := s.ReadFile(ctx, "a.go")
		if string(got) != "second" {
			t.Errorf("ReadFile() = %q, want %q", got, "second")
		}
	})

	t.Run("list filters by suffix", func(t *testing.T) {
		s := newStore(t)
		for _, p := range []string{"b.go", "a.go", "notes.txt", "sub/c.go"} {
			if err := s.WriteFile(ctx, p, []byte(p)); err != nil {
				t.Fatalf("WriteFile(%q) error = %v", p, err)
			}
		}
		got, err := s.List(ctx, ".go")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if strings.Join(got, ",") != "a.go,b.go" {
			t.Errorf("List() = %v, want [a.go b.go]", got)
		}
	})

	t.Run("remove", func(t *testing.T) {
		s := newStore(t)
		_ = s.WriteFile(ctx, "a.go", []byte("x"))
		if err := s.Remove(ctx, "a.go"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if _, err := s.ReadFile(ctx, "a.go"); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("ReadFile() after Remove error = %v, want fs.ErrNotExist", err)
		}
		if err := s.Remove(ctx, "a.go"); err != nil {
			t.Errorf("Remove() of missing file error = %v", err)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		s := newStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := s.WriteFile(cctx, "a.go", []byte("x")); err == nil {
			t.Error("WriteFile() with cancelled context should return error")
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		s := newStore(t)
		if err := s.WriteFile(ctx, "../escape.go", []byte("x")); err == nil {
			t.Error("WriteFile() with invalid path should return error")
		}
	})
}

func TestMemorySink(t *testing.T) {
	storeTests(t, func(*testing.T) Store { return NewMemorySink() })

	t.Run("Get returns copy", func(t *testing.T) {
		s := NewMemorySink()
		_ = s.WriteFile(context.Background(), "test.go", []byte("original"))
		got := s.Get("test.go")
		got[0] = 'X'
		if got2 := s.Get("test.go"); string(got2) != "original" {
			t.Errorf("Get() = %q, want %q (modification leaked)", got2, "original")
		}
	})

	t.Run("Reset clears all files", func(t *testing.T) {
		s := NewMemorySink()
		_ = s.WriteFile(context.Background(), "a.go", []byte("a"))
		s.Reset()
		if n := len(s.Files()); n != 0 {
			t.Errorf("Files() after Reset() length = %d, want 0", n)
		}
	})
}

func TestMemorySink_Concurrent(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			path := "file" + string(rune('a'+id%26)) + ".go"
			if err := s.WriteFile(ctx, path, []byte(path)); err != nil {
				t.Errorf("WriteFile() error = %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.List(ctx, ".go")
			_ = s.Files()
		}()
	}
	wg.Wait()

	if len(s.Files()) == 0 {
		t.Error("no files written during concurrent test")
	}
}

func TestFilesystemSink(t *testing.T) {
	storeTests(t, func(t *testing.T) Store { return NewFilesystemSink(t.TempDir()) })

	t.Run("creates directories", func(t *testing.T) {
		dir := t.TempDir()
		s := NewFilesystemSink(filepath.Join(dir, "internal", "pipelines"))
		if err := s.WriteFile(context.Background(), "x.go", []byte("x")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "internal", "pipelines", "x.go")); err != nil {
			t.Errorf("file not created: %v", err)
		}
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		dir := t.TempDir()
		s := NewFilesystemSink(dir)
		_ = s.WriteFile(context.Background(), "x.go", []byte("x"))
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".blueprint-") {
				t.Errorf("temp file %s left behind", e.Name())
			}
		}
	})

	t.Run("no overwrite", func(t *testing.T) {
		s := NewFilesystemSink(t.TempDir())
		s.Overwrite = false
		ctx := context.Background()
		if err := s.WriteFile(ctx, "x.go", []byte("1")); err != nil {
			t.Fatalf("first WriteFile() error = %v", err)
		}
		err := s.WriteFile(ctx, "x.go", []byte("2"))
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("second WriteFile() error = %v, want already exists", err)
		}
	})

	t.Run("list of missing root is empty", func(t *testing.T) {
		s := NewFilesystemSink(filepath.Join(t.TempDir(), "missing"))
		got, err := s.List(context.Background(), ".go")
		if err != nil || len(got) != 0 {
			t.Errorf("List() = %v, %v; want empty, nil", got, err)
		}
	})
}
