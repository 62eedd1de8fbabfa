// Package archive persists the raw source of every published template
// version outside the database, for audit and disaster recovery.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Archiver stores raw template sources.
type Archiver interface {
	// ArchiveTemplate writes the raw source of one published version
	// and returns the location it was written to.
	ArchiveTemplate(ctx context.Context, templateID, version, raw string) (string, error)
}

// LocalFileArchiver writes template sources to the local filesystem,
// one file per published version.
type LocalFileArchiver struct {
	basePath string
}

// NewLocalFileArchiver creates an archiver rooted at basePath. An
// empty basePath defaults to ~/.agentmint/archive.
func NewLocalFileArchiver(basePath string) (*LocalFileArchiver, error) {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		basePath = filepath.Join(home, ".agentmint", "archive")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalFileArchiver{basePath: basePath}, nil
}

func (a *LocalFileArchiver) ArchiveTemplate(_ context.Context, templateID, version, raw string) (string, error) {
	dir := filepath.Join(a.basePath, templateID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create template archive directory: %w", err)
	}
	path := filepath.Join(dir, version+".src")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}
	log.Debug().Str("path", path).Msg("archived template source")
	return path, nil
}
