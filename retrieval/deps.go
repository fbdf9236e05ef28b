package retrieval

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// Repository hands out queued inference requests and records their
// outcomes.
type Repository interface {
	// Take blocks until a queued request is available or ctx ends.
	Take(ctx context.Context) (*InferenceRequest, error)
	// Update records the terminal status of a processed request.
	Update(ctx context.Context, req *InferenceRequest, status string) error
}

// Notifier receives one notification per retrieved file.
type Notifier interface {
	Queue(ctx context.Context, info *FileStorageInfo) error
}

// FileSystem is the slice of filesystem behavior the orchestrator
// needs. It exists so tests can run against an in-memory tree.
type FileSystem interface {
	// ListFiles walks root recursively and returns every regular file
	// under it. A missing root is not an error; it returns nil.
	ListFiles(root string) ([]string, error)
	WriteFile(path string, data []byte) error
	MkdirAll(path string) error
}

// SpaceChecker gates retrieval work on available storage.
type SpaceChecker interface {
	HasSpaceToRetrieve() bool
	AvailableFreeSpace() uint64
}

// SecretSource resolves a named secret to its payload.
type SecretSource interface {
	Resolve(ctx context.Context, name string) (string, error)
}

type osFileSystem struct{}

// OSFileSystem returns the real-disk FileSystem implementation.
func OSFileSystem() FileSystem { return osFileSystem{} }

func (osFileSystem) ListFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (osFileSystem) WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func (osFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}
