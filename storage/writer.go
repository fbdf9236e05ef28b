package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"imaging-gateway/retrieval"
	"imaging-gateway/scp"
)

// SpaceChecker is the slice of the admission gate the writer needs.
type SpaceChecker interface {
	HasSpaceToStore() bool
}

// Writer lands inbound DICOM payloads on disk, mirrors them to the
// archive when one is configured, and queues a notification per file.
type Writer struct {
	root     string
	gate     SpaceChecker
	notifier retrieval.Notifier
	archive  *Archive
}

// NewWriter builds a Writer rooted at root. archive may be nil.
func NewWriter(root string, gate SpaceChecker, notifier retrieval.Notifier, archive *Archive) *Writer {
	return &Writer{root: root, gate: gate, notifier: notifier, archive: archive}
}

// Store writes one payload under {root}/{group}, notifies, and mirrors
// to the archive best-effort. It returns where the file landed.
func (w *Writer) Store(ctx context.Context, group, name, correlationID string, data []byte) (*retrieval.FileStorageInfo, error) {
	if w.gate != nil && !w.gate.HasSpaceToStore() {
		return nil, fmt.Errorf("storing %s: %w", name, scp.ErrInsufficientStorage)
	}
	dir := filepath.Join(w.root, group)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	info := retrieval.NewFileStorageInfo(correlationID, dir, name, ".dcm")
	if err := os.WriteFile(info.FilePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", info.FilePath, err)
	}

	if w.archive != nil {
		object := filepath.ToSlash(filepath.Join(group, name+".dcm"))
		if err := w.archive.Put(ctx, object, bytes.NewReader(data)); err != nil {
			log.Printf("Storage: archiving %s: %v", object, err)
		}
	}

	if w.notifier != nil {
		if err := w.notifier.Queue(ctx, info); err != nil {
			return nil, fmt.Errorf("queueing notification for %s: %w", info.FilePath, err)
		}
	}
	return info, nil
}

// HandleCStoreRequest persists one received composite instance. Files
// land under {root}/{calledAE}/{callingAE}/{sopInstanceUID}.dcm.
func (w *Writer) HandleCStoreRequest(ctx context.Context, req *scp.CStoreRequest, calledAE, callingAE string, associationID uuid.UUID) error {
	data, err := io.ReadAll(req.Data)
	if err != nil {
		return fmt.Errorf("reading instance %s: %w", req.SOPInstanceUID, err)
	}
	group := filepath.Join(calledAE, callingAE)
	_, err = w.Store(ctx, group, req.SOPInstanceUID, associationID.String(), data)
	return err
}
