package uploader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-pipeline/pkg/models"
)

type call struct {
	method  string
	caption string
	count   int
}

type fakeTransport struct {
	calls     []call
	nextID    int64
	videoErr  error
	groupErr  error
	docErr    error
	failFirst int // first N calls return RetryAfterError
}

func (f *fakeTransport) maybeFlood() error {
	if f.failFirst > 0 {
		f.failFirst--
		return &models.RetryAfterError{RetryAfter: time.Millisecond}
	}
	return nil
}

func (f *fakeTransport) record(method, caption string, count int) int64 {
	f.calls = append(f.calls, call{method, caption, count})
	f.nextID++
	return f.nextID
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	return f.record("text", text, 1), nil
}
func (f *fakeTransport) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	return nil
}
func (f *fakeTransport) SendVideo(ctx context.Context, chatID int64, file models.FileUpload) (int64, error) {
	if err := f.maybeFlood(); err != nil {
		return 0, err
	}
	if f.videoErr != nil {
		return 0, f.videoErr
	}
	return f.record("video", file.Caption, 1), nil
}
func (f *fakeTransport) SendAudio(ctx context.Context, chatID int64, file models.FileUpload) (int64, error) {
	return f.record("audio", file.Caption, 1), nil
}
func (f *fakeTransport) SendPhoto(ctx context.Context, chatID int64, file models.FileUpload) (int64, error) {
	return f.record("photo", file.Caption, 1), nil
}
func (f *fakeTransport) SendDocument(ctx context.Context, chatID int64, file models.FileUpload) (int64, error) {
	if f.docErr != nil {
		return 0, f.docErr
	}
	return f.record("document", file.Caption, 1), nil
}
func (f *fakeTransport) SendMediaGroup(ctx context.Context, chatID int64, files []models.FileUpload) ([]int64, error) {
	if err := f.maybeFlood(); err != nil {
		return nil, err
	}
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	caption := ""
	if len(files) > 0 {
		caption = files[0].Caption
	}
	first := f.record("group", caption, len(files))
	ids := []int64{first}
	for i := 1; i < len(files); i++ {
		f.nextID++
		ids = append(ids, f.nextID)
	}
	return ids, nil
}
func (f *fakeTransport) ForwardMessages(ctx context.Context, chatID int64, messageIDs []int64) error {
	return nil
}

func testConfig() *models.Config {
	cfg := &models.Config{}
	cfg.Transport.BatchLimit = 10
	cfg.Transport.MaxFileSizeMB = 2048
	cfg.Transport.CallsPerSecond = 1000
	return cfg
}

func tmpFiles(t *testing.T, n int, mediaType models.MediaType) []models.FileUpload {
	t.Helper()
	dir := t.TempDir()
	out := make([]models.FileUpload, n)
	for i := range out {
		p := filepath.Join(dir, filepath.Base(t.Name())+string(rune('a'+i))+".bin")
		if err := os.WriteFile(p, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
		// Width keeps enrichVideos from probing a fake file.
		out[i] = models.FileUpload{Path: p, MediaType: mediaType, Width: 1}
	}
	return out
}

func TestDeliverSingleVideo(t *testing.T) {
	ft := &fakeTransport{}
	u := NewUploader(testConfig(), ft)

	ids, err := u.Deliver(context.Background(), 1, tmpFiles(t, 1, models.MediaTypeVideo), "a title")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Fatalf("ids = %v, want one", ids)
	}
	if len(ft.calls) != 1 || ft.calls[0].method != "video" {
		t.Errorf("calls = %v, want single video send", ft.calls)
	}
	if ft.calls[0].caption != "a title" {
		t.Errorf("caption = %q", ft.calls[0].caption)
	}
}

func TestDeliverGroupCaptionOnFirstOnly(t *testing.T) {
	ft := &fakeTransport{}
	u := NewUploader(testConfig(), ft)

	ids, err := u.Deliver(context.Background(), 1, tmpFiles(t, 3, models.MediaTypeImage), "album")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %v, want three", ids)
	}
	if len(ft.calls) != 1 || ft.calls[0].method != "group" || ft.calls[0].count != 3 {
		t.Fatalf("calls = %v, want one group of 3", ft.calls)
	}
	if ft.calls[0].caption != "album" {
		t.Errorf("group caption = %q", ft.calls[0].caption)
	}
}

func TestDeliverChunksAtBatchLimit(t *testing.T) {
	ft := &fakeTransport{}
	u := NewUploader(testConfig(), ft)

	ids, err := u.Deliver(context.Background(), 1, tmpFiles(t, 23, models.MediaTypeImage), "big album")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 23 {
		t.Fatalf("ids = %d, want 23", len(ids))
	}
	// 10 + 10 + 3: two full groups and one remainder group.
	if len(ft.calls) != 3 {
		t.Fatalf("calls = %d, want 3 chunks", len(ft.calls))
	}
	if ft.calls[0].count != 10 || ft.calls[1].count != 10 || ft.calls[2].count != 3 {
		t.Errorf("chunk sizes = %v", ft.calls)
	}
	// Caption only on the very first chunk.
	if ft.calls[0].caption != "big album" || ft.calls[1].caption != "" || ft.calls[2].caption != "" {
		t.Errorf("captions = %v", ft.calls)
	}
}

func TestDeliverRetriesOnFloodControl(t *testing.T) {
	ft := &fakeTransport{failFirst: 2}
	u := NewUploader(testConfig(), ft)

	ids, err := u.Deliver(context.Background(), 1, tmpFiles(t, 1, models.MediaTypeVideo), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("ids = %v, want one after retries", ids)
	}
}

func TestDeliverDocumentFallback(t *testing.T) {
	ft := &fakeTransport{videoErr: errors.New("unsupported codec")}
	u := NewUploader(testConfig(), ft)

	ids, err := u.Deliver(context.Background(), 1, tmpFiles(t, 1, models.MediaTypeVideo), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Fatalf("ids = %v", ids)
	}
	if ft.calls[len(ft.calls)-1].method != "document" {
		t.Errorf("calls = %v, want document fallback", ft.calls)
	}
}

func TestDeliverAbandonsGoneChat(t *testing.T) {
	ft := &fakeTransport{groupErr: &models.ChatGoneError{ChatID: 1}}
	u := NewUploader(testConfig(), ft)

	_, err := u.Deliver(context.Background(), 1, tmpFiles(t, 2, models.MediaTypeImage), "")
	if !models.IsChatGone(err) {
		t.Errorf("got %v, want chat-gone error", err)
	}
}

func TestDeliverSkipsOversize(t *testing.T) {
	cfg := testConfig()
	cfg.Transport.MaxFileSizeMB = 1
	ft := &fakeTransport{}
	u := NewUploader(cfg, ft)

	files := tmpFiles(t, 2, models.MediaTypeVideo)
	big := make([]byte, 2*1024*1024)
	if err := os.WriteFile(files[0].Path, big, 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := u.Deliver(context.Background(), 1, files, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("ids = %v, want only the small file delivered", ids)
	}
}

func TestDeliverNoFiles(t *testing.T) {
	u := NewUploader(testConfig(), &fakeTransport{})

	_, err := u.Deliver(context.Background(), 1, nil, "")
	if !errors.Is(err, models.ErrNoFiles) {
		t.Errorf("got %v, want ErrNoFiles", err)
	}
}
