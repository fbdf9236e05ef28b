package retrieval

import "path/filepath"

// FileStorageInfo identifies one retrieved artifact on disk and is the
// payload handed to the notification queue.
type FileStorageInfo struct {
	CorrelationID   string `json:"correlation_id"`
	StorageRootPath string `json:"storage_root_path"`
	FilePath        string `json:"file_path"`
	ApplicationID   string `json:"application_id,omitempty"`
}

// NewFileStorageInfo builds the on-disk location for one artifact. ext
// includes the leading dot.
func NewFileStorageInfo(correlationID, root, name, ext string) *FileStorageInfo {
	return &FileStorageInfo{
		CorrelationID:   correlationID,
		StorageRootPath: root,
		FilePath:        filepath.Join(root, name+ext),
	}
}

// SetApplication stamps the owning application onto the notification.
func (f *FileStorageInfo) SetApplication(applicationID string) {
	f.ApplicationID = applicationID
}
