package vfs

import "testing"

func TestCreateFileInsertionOrder(t *testing.T) {
	tr := New()
	for _, name := range []string{"c.py", "a.py", "b.py"} {
		if err := tr.CreateFile(name); err != nil {
			t.Fatalf("CreateFile(%s): %v", name, err)
		}
	}
	got := make([]string, len(tr.Root))
	for i, n := range tr.Root {
		got[i] = n.Name
	}
	want := []string{"c.py", "a.py", "b.py"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("insertion order not preserved: got %v want %v", got, want)
		}
	}
}

func TestCreateFileNameCollision(t *testing.T) {
	tr := New()
	if err := tr.CreateFile("a.py"); err != nil {
		t.Fatal(err)
	}
	if err := tr.CreateFile("a.py"); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if len(tr.Root) != 1 {
		t.Fatalf("expected exactly one node, got %d", len(tr.Root))
	}
}

func TestCreateDirThenFileThenDelete(t *testing.T) {
	tr := New()
	if err := tr.CreateDir("pkg"); err != nil {
		t.Fatal(err)
	}
	if err := tr.CreateFile("pkg/main.py"); err != nil {
		t.Fatal(err)
	}
	node, err := tr.Find("pkg/main.py")
	if err != nil {
		t.Fatal(err)
	}
	if node.Type != TypeFile || node.Name != "main.py" {
		t.Fatalf("unexpected node: %+v", node)
	}
	if err := tr.DeleteFile("pkg/main.py"); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Find("pkg/main.py"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	tr := New()
	for _, bad := range []string{"../etc/passwd", "/etc/passwd", "a//b", "", "a/../b"} {
		if err := tr.CreateFile(bad); err != ErrInvalidPath {
			t.Fatalf("path %q: expected ErrInvalidPath, got %v", bad, err)
		}
	}
}

func TestCreateFileMissingParent(t *testing.T) {
	tr := New()
	if err := tr.CreateFile("missing/a.py"); err != ErrParentMissing {
		t.Fatalf("expected ErrParentMissing, got %v", err)
	}
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	tr := New()
	_ = tr.CreateDir("a")
	_ = tr.CreateFile("a/b.py")
	_ = tr.CreateFile("top.py")

	blob, err := tr.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	back, err := Unmarshal(blob)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := back.Find("a/b.py"); err != nil {
		t.Fatalf("round-tripped tree missing a/b.py: %v", err)
	}
	if _, err := back.Find("top.py"); err != nil {
		t.Fatalf("round-tripped tree missing top.py: %v", err)
	}
}

func TestUnmarshalEmptyBlob(t *testing.T) {
	tr, err := Unmarshal(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Root) != 0 {
		t.Fatalf("expected empty tree, got %d nodes", len(tr.Root))
	}
}
