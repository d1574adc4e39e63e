package localfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scenecast/internal/ports"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l := New(root)

	key := ports.RenderVideoKey("job-1")
	out, err := l.PutObject(ctx, ports.PutObjectInput{ObjectKey: key, Reader: strings.NewReader("mp4 bytes"), ContentType: "video/mp4"})
	if err != nil {
		t.Fatal(err)
	}
	if out.ObjectKey != key || out.Size != 9 {
		t.Errorf("out = %+v", out)
	}

	rc, ct, size, err := l.GetObject(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "mp4 bytes" || size != 9 || ct != "video/mp4" {
		t.Errorf("got %q ct=%q size=%d", body, ct, size)
	}

	entries, _ := os.ReadDir(filepath.Join(root, "renders", "job-1"))
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}

	if err := l.DeleteObject(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := l.GetObject(ctx, key); !errors.Is(err, ports.ErrObjectNotFound) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("after delete err = %v", err)
	}
	if err := l.DeleteObject(ctx, key); !errors.Is(err, ports.ErrObjectNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	l := New(t.TempDir())
	for _, key := range []string{"", "../x", "/etc/passwd", "a/../../x"} {
		if _, err := l.PutObject(context.Background(), ports.PutObjectInput{ObjectKey: key, Reader: strings.NewReader("x")}); err == nil {
			t.Errorf("key %q accepted", key)
		}
	}
}
