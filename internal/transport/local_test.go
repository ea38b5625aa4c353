package transport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"media-pipeline/pkg/models"
)

func upload(t *testing.T, dir, name string) models.FileUpload {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	return models.FileUpload{Path: p, MediaType: models.MediaTypeVideo}
}

func TestSendTextAppendsToLog(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root)
	ctx := context.Background()

	id1, err := l.SendText(ctx, 7, "first")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := l.SendText(ctx, 7, "second")
	if err != nil {
		t.Fatal(err)
	}
	if id2 <= id1 {
		t.Errorf("ids not increasing: %d then %d", id1, id2)
	}

	data, err := os.ReadFile(filepath.Join(root, "chat_7", "messages.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "first") || !strings.Contains(string(data), "second") {
		t.Errorf("log = %q", data)
	}
}

func TestSendVideoCopiesFile(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root)

	f := upload(t, t.TempDir(), "clip.mp4")
	id, err := l.SendVideo(context.Background(), 7, f)
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Error("zero message id")
	}
	if _, err := os.Stat(filepath.Join(root, "chat_7", "clip.mp4")); err != nil {
		t.Errorf("file not delivered: %v", err)
	}
}

func TestSendMediaGroupOrder(t *testing.T) {
	l := NewLocal(t.TempDir())
	src := t.TempDir()

	files := []models.FileUpload{
		upload(t, src, "a.jpg"),
		upload(t, src, "b.jpg"),
		upload(t, src, "c.jpg"),
	}
	ids, err := l.SendMediaGroup(context.Background(), 7, files)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %v", ids)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("ids out of order: %v", ids)
		}
	}
}

func TestForwardMessages(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root)
	ctx := context.Background()

	f := upload(t, t.TempDir(), "clip.mp4")
	id, err := l.SendVideo(ctx, 7, f)
	if err != nil {
		t.Fatal(err)
	}

	if err := l.ForwardMessages(ctx, 8, []int64{id}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "chat_8", "clip.mp4")); err != nil {
		t.Errorf("forward did not deliver: %v", err)
	}
}

func TestForwardUnknownMessage(t *testing.T) {
	l := NewLocal(t.TempDir())

	if err := l.ForwardMessages(context.Background(), 7, []int64{999}); err == nil {
		t.Error("expected error for unknown message id")
	}
}

func TestEditTextUnknownMessage(t *testing.T) {
	l := NewLocal(t.TempDir())

	if err := l.EditText(context.Background(), 7, 999, "x"); err == nil {
		t.Error("expected error for unknown message id")
	}
}
