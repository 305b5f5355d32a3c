package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testDoc struct {
	Name  string         `json:"name"`
	Items map[string]int `json:"items,omitempty"`
}

func TestFileLoadMissing(t *testing.T) {
	f := NewFile[testDoc](filepath.Join(t.TempDir(), "missing.json"))

	doc, err := f.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil for missing file, got %+v", doc)
	}
}

func TestFileCreateLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "doc.json")
	f := NewFile[testDoc](path)

	_, changed, err := f.Update(func(d *testDoc) error {
		d.Name = "inverter"
		d.Items = map[string]int{"a": 1, "b": 2}
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !changed {
		t.Error("expected the first update to write")
	}

	out, err := f.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if out.Name != "inverter" || out.Items["b"] != 2 {
		t.Errorf("loaded %+v", out)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestFileUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	f := NewFile[testDoc](path)

	t.Run("creates on first change", func(t *testing.T) {
		doc, changed, err := f.Update(func(d *testDoc) error {
			d.Name = "first"
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if !changed || doc.Name != "first" {
			t.Errorf("changed=%v doc=%+v", changed, doc)
		}
	})

	t.Run("no write when unchanged", func(t *testing.T) {
		before, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}

		_, changed, err := f.Update(func(d *testDoc) error { return nil })
		if err != nil {
			t.Fatal(err)
		}
		if changed {
			t.Error("expected no change")
		}

		after, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if !os.SameFile(before, after) {
			t.Error("file was replaced although content did not change")
		}
	})

	t.Run("error aborts write", func(t *testing.T) {
		boom := errors.New("boom")
		_, _, err := f.Update(func(d *testDoc) error {
			d.Name = "discarded"
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		doc, err := f.Load()
		if err != nil {
			t.Fatal(err)
		}
		if doc.Name != "first" {
			t.Errorf("expected first, got %q", doc.Name)
		}
	})
}

func TestFileNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	f := NewFile[testDoc](filepath.Join(dir, "doc.json"))

	for i := 0; i < 5; i++ {
		if _, _, err := f.Update(func(d *testDoc) error {
			d.Name += "x"
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only doc.json, got %d entries", len(entries))
	}
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	f := NewFile[testDoc](path)
	if _, err := f.Load(); err == nil {
		t.Error("expected decode error")
	}
	if _, _, err := f.Update(func(d *testDoc) error { return nil }); err == nil {
		t.Error("expected decode error from Update")
	}
}
