package stores

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestAttachmentStore(t *testing.T) *AttachmentStore {
	t.Helper()
	store := newTestStore(t)
	attachments, err := NewAttachmentStore(store.DB(), filepath.Join(t.TempDir(), "uploads"), "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("failed to create attachment store: %v", err)
	}
	return attachments
}

func TestAttachmentSaveAndGet(t *testing.T) {
	attachments := newTestAttachmentStore(t)

	rec, err := attachments.Save("user-1", "photo.png", "image/png", []byte("fake png bytes"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if rec.Key == "" {
		t.Errorf("expected a content key")
	}
	if !strings.HasPrefix(rec.URL, "http://localhost:8080/files/") {
		t.Errorf("unexpected URL %s", rec.URL)
	}
	if rec.Size != int64(len("fake png bytes")) {
		t.Errorf("expected size %d, got %d", len("fake png bytes"), rec.Size)
	}

	// Bytes must land on disk under the served directory.
	diskName := strings.TrimPrefix(rec.URL, "http://localhost:8080/files/")
	data, err := os.ReadFile(filepath.Join(attachments.Dir(), diskName))
	if err != nil {
		t.Fatalf("attachment not written to disk: %v", err)
	}
	if string(data) != "fake png bytes" {
		t.Errorf("disk bytes do not match upload")
	}

	fetched, err := attachments.Get(rec.Key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if fetched.Filename != "photo.png" || fetched.MimeType != "image/png" {
		t.Errorf("fetched record does not match: %+v", fetched)
	}
}

func TestAttachmentKeyIsContentAddressed(t *testing.T) {
	attachments := newTestAttachmentStore(t)

	a, err := attachments.Save("user-1", "one.txt", "text/plain", []byte("same bytes"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	b, err := attachments.Save("user-2", "two.txt", "text/plain", []byte("same bytes"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if a.Key != b.Key {
		t.Errorf("identical bytes should share a key: %s vs %s", a.Key, b.Key)
	}
	if a.URL == b.URL {
		t.Errorf("distinct uploads should not share a disk path")
	}
}

func TestAttachmentSaveRejectsEmpty(t *testing.T) {
	attachments := newTestAttachmentStore(t)
	if _, err := attachments.Save("user-1", "empty.txt", "text/plain", nil); err == nil {
		t.Errorf("empty attachment should be rejected")
	}
}

func TestAttachmentDeleteOwnerOnly(t *testing.T) {
	attachments := newTestAttachmentStore(t)

	rec, err := attachments.Save("user-1", "doc.pdf", "application/pdf", []byte("pdf"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := attachments.Delete(rec.Key, "someone-else"); err == nil {
		t.Errorf("only the owner may delete an attachment")
	}
	if err := attachments.Delete(rec.Key, "user-1"); err != nil {
		t.Errorf("owner delete failed: %v", err)
	}
	if _, err := attachments.Get(rec.Key); err == nil {
		t.Errorf("deleted attachment should not be readable")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"photo.png":        "photo.png",
		"../../etc/passwd": "passwd",
		"weird name!.txt":  "weird_name_.txt",
		"":                 "upload",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
