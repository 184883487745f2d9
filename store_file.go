package fundkrawler

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
)

// FileStore writes each snapshot as an indented JSON array below root.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at root, "." when empty.
func NewFileStore(root string) *FileStore {
	if root == "" {
		root = "."
	}
	return &FileStore{root: root}
}

// Write replaces the file at path with records. The file is written to a
// temporary sibling first so readers never see a partial snapshot.
func (s *FileStore) Write(_ context.Context, path string, records []*ThemeRecord) error {
	target := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	if records == nil {
		records = []*ThemeRecord{}
	}
	content, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records for %s: %w", path, err)
	}

	tmp, err := ioutil.TempFile(filepath.Dir(target), ".theme-*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Read loads the snapshot stored at path.
func (s *FileStore) Read(path string) ([]*ThemeRecord, error) {
	content, err := ioutil.ReadFile(s.resolve(path))
	if err != nil {
		return nil, err
	}
	var records []*ThemeRecord
	if err = json.Unmarshal(content, &records); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return records, nil
}

// Close does nothing; files are closed after every write.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) resolve(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}
