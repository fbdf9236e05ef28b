package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"imaging-gateway/retrieval"
	"imaging-gateway/scp"
)

type boolGate bool

func (g boolGate) HasSpaceToStore() bool { return bool(g) }

type captureNotifier struct {
	mu    sync.Mutex
	infos []*retrieval.FileStorageInfo
}

func (n *captureNotifier) Queue(ctx context.Context, info *retrieval.FileStorageInfo) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, info)
	return nil
}

func TestWriterStore(t *testing.T) {
	root := t.TempDir()
	notifier := &captureNotifier{}
	w := NewWriter(root, boolGate(true), notifier, nil)

	info, err := w.Store(context.Background(), "GATEWAY/MODALITY", "1.2.3.4", "corr-1", []byte("DICM"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	want := filepath.Join(root, "GATEWAY", "MODALITY", "1.2.3.4.dcm")
	if info.FilePath != want {
		t.Errorf("path = %q, want %q", info.FilePath, want)
	}
	data, err := os.ReadFile(info.FilePath)
	if err != nil || string(data) != "DICM" {
		t.Errorf("file contents = %q, %v", data, err)
	}
	if len(notifier.infos) != 1 || notifier.infos[0].CorrelationID != "corr-1" {
		t.Errorf("notifications = %+v", notifier.infos)
	}
}

func TestWriterStoreRefusedWhenFull(t *testing.T) {
	w := NewWriter(t.TempDir(), boolGate(false), &captureNotifier{}, nil)
	_, err := w.Store(context.Background(), "g", "n", "corr-1", []byte("DICM"))
	if !errors.Is(err, scp.ErrInsufficientStorage) {
		t.Errorf("err = %v, want ErrInsufficientStorage", err)
	}
}

func TestHandleCStoreRequestLayout(t *testing.T) {
	root := t.TempDir()
	notifier := &captureNotifier{}
	w := NewWriter(root, boolGate(true), notifier, nil)

	assocID := uuid.New()
	req := &scp.CStoreRequest{
		SOPClassUID:    "1.2.840.10008.5.1.4.1.1.2",
		SOPInstanceUID: "1.2.3.4.5",
		TransferSyntax: "1.2.840.10008.1.2.1",
		Data:           strings.NewReader("DICM"),
	}
	if err := w.HandleCStoreRequest(context.Background(), req, "GATEWAY", "MODALITY", assocID); err != nil {
		t.Fatalf("HandleCStoreRequest: %v", err)
	}

	want := filepath.Join(root, "GATEWAY", "MODALITY", "1.2.3.4.5.dcm")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected instance at %s: %v", want, err)
	}
	if len(notifier.infos) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.infos))
	}
	if notifier.infos[0].CorrelationID != assocID.String() {
		t.Errorf("correlation = %q, want association ID", notifier.infos[0].CorrelationID)
	}
}
