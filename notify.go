package main

import (
	"context"
	"fmt"
	"log"

	"imaging-gateway/retrieval"
)

// FileNotificationQueue is the in-process queue carrying one event per
// stored or retrieved file. Downstream consumers read Notifications().
type FileNotificationQueue struct {
	ch chan *retrieval.FileStorageInfo
}

// NewFileNotificationQueue builds a queue with the given buffer depth.
func NewFileNotificationQueue(depth int) *FileNotificationQueue {
	return &FileNotificationQueue{ch: make(chan *retrieval.FileStorageInfo, depth)}
}

// Queue publishes one notification, blocking when the buffer is full
// until there is room or ctx ends.
func (q *FileNotificationQueue) Queue(ctx context.Context, info *retrieval.FileStorageInfo) error {
	select {
	case q.ch <- info:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queueing file notification: %w", ctx.Err())
	}
}

// Notifications exposes the consumer side of the queue.
func (q *FileNotificationQueue) Notifications() <-chan *retrieval.FileStorageInfo {
	return q.ch
}

// drainNotifications logs queued events until ctx ends. It stands in
// for a downstream dispatcher.
func drainNotifications(ctx context.Context, q *FileNotificationQueue) {
	for {
		select {
		case info := <-q.Notifications():
			log.Printf("Notify: file ready: correlation=%s path=%s application=%s",
				info.CorrelationID, info.FilePath, info.ApplicationID)
		case <-ctx.Done():
			return
		}
	}
}
