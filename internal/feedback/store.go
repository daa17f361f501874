package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	imagesDir   = "images"
	metadataDir = "metadata"
)

// FileStore keeps feedback as two files per id: the raw image under
// images/ and a JSON record under metadata/. Both are written through a
// temp file and rename, so readers never see a partial file.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve feedback directory: %w", err)
	}
	for _, dir := range []string{imagesDir, metadataDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create feedback directory: %w", err)
		}
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Root() string { return s.root }

// SaveImage writes the image bytes and returns the stored path.
func (s *FileStore) SaveImage(id string, data []byte) (string, error) {
	path := filepath.Join(s.root, imagesDir, id+extensionFor(data))
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func (s *FileStore) SaveMetadata(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	return writeFileAtomic(s.metadataPath(rec.ID), data)
}

func (s *FileStore) RemoveImage(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads the metadata record for id.
func (s *FileStore) Load(id string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(s.metadataPath(id))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to parse metadata %s: %w", id, err)
	}
	return rec, nil
}

func (s *FileStore) ReadImage(rec Record) ([]byte, error) {
	return os.ReadFile(s.imagePath(rec))
}

// imagePath locates a record's image under this store's root, so records
// stay readable when the store is moved or opened from another directory.
func (s *FileStore) imagePath(rec Record) string {
	return filepath.Join(s.root, imagesDir, filepath.Base(rec.ImagePath))
}

// List returns every valid record ordered by id, which is time ordered.
// Records that cannot be parsed or whose image is missing are counted as
// invalid and skipped.
func (s *FileStore) List() ([]Record, int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, metadataDir))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read metadata directory: %w", err)
	}

	var records []Record
	invalid := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}

		rec, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			invalid++
			continue
		}
		if _, err := os.Stat(s.imagePath(rec)); err != nil {
			invalid++
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, invalid, nil
}

func (s *FileStore) metadataPath(id string) string {
	return filepath.Join(s.root, metadataDir, id+".json")
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func extensionFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	return ".bin"
}
