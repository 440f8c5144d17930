package storage_test

import (
	"bytes"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"

	"tangled.org/atscan.net/perfhint/internal/storage"
)

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Printf(format string, v ...interface{}) {
	l.t.Logf(format, v...)
}

func (l *testLogger) Println(v ...interface{}) {
	l.t.Log(v...)
}

type record struct {
	SessionID int32  `json:"session_id"`
	Summary   string `json:"summary"`
}

// ====================================================================================
// COMPRESSION TESTS
// ====================================================================================

func TestFrameConcatenation(t *testing.T) {
	a := storage.CompressFrame([]byte("first\n"))
	b := storage.CompressFrame([]byte("second\n"))

	out, err := storage.DecompressAll(append(a, b...))
	if err != nil {
		t.Fatalf("DecompressAll failed: %v", err)
	}
	if string(out) != "first\nsecond\n" {
		t.Errorf("got %q", out)
	}
}

// ====================================================================================
// ARCHIVE TESTS
// ====================================================================================

func TestArchiveAppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	archive, err := storage.OpenArchive(dir, &testLogger{t: t})
	if err != nil {
		t.Fatalf("OpenArchive failed: %v", err)
	}

	t.Run("EmptyArchive", func(t *testing.T) {
		got, err := storage.Load[record](archive.Path())
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no records, got %d", len(got))
		}
	})

	for i := int32(0); i < 5; i++ {
		if err := archive.Append(record{SessionID: i, Summary: "JankFramesInBuckets: 0%-0%-0%-0%-0%-0"}); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	if archive.Appended() != 5 {
		t.Errorf("Appended() = %d, want 5", archive.Appended())
	}

	got, err := storage.Load[record](archive.Path())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("loaded %d records, want 5", len(got))
	}
	for i, r := range got {
		if r.SessionID != int32(i) {
			t.Errorf("record %d has session %d", i, r.SessionID)
		}
	}

	raw, err := storage.ReadAll(archive.Path())
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if n := bytes.Count(raw, []byte("\n")); n != 5 {
		t.Errorf("raw archive has %d lines, want 5", n)
	}
}

func TestArchiveReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := storage.OpenArchive(dir, nil)
	if err != nil {
		t.Fatalf("OpenArchive failed: %v", err)
	}
	if err := first.Append(record{SessionID: 1}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	second, err := storage.OpenArchive(dir, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := second.Append(record{SessionID: 2}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	count := 0
	if err := second.Each(func(line []byte) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	if count != 2 {
		t.Errorf("archive holds %d records after reopen, want 2", count)
	}
}

func TestArchiveConcurrentAppend(t *testing.T) {
	archive, err := storage.OpenArchive(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("OpenArchive failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int32) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := archive.Append(record{SessionID: id}); err != nil {
					t.Errorf("Append failed: %v", err)
				}
			}
		}(int32(i))
	}
	wg.Wait()

	got, err := storage.Load[record](archive.Path())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 80 {
		t.Errorf("loaded %d records, want 80", len(got))
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := storage.Load[record](filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
