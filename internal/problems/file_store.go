package problems

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rpattn/afsync/internal/domain"

	"github.com/natefinch/atomic"
)

const (
	markerDir  = "current_problems_by_id"
	archiveDir = "problem_archive"
	markerExt  = ".rej"
	archiveExt = ".txt"
	segmentSep = "__"
	dirPerm    = 0o750
	filePerm   = 0o640
)

// FileStore keeps one marker file per entity and one archive file per entry
// below root.
type FileStore struct {
	root string

	mu      sync.Mutex
	indexes map[domain.Kind]map[string]struct{}
}

// NewFileStore returns a store rooted at root. Directories are created on
// first write.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root, indexes: map[domain.Kind]map[string]struct{}{}}
}

// Root returns the directory the store writes to.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) markerPath(kind domain.Kind, id int64) string {
	return filepath.Join(s.root, markerDir, string(kind), strconv.FormatInt(id, 10)+markerExt)
}

func (s *FileStore) ListMarked(_ context.Context, kind domain.Kind) ([]int64, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, markerDir, string(kind)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list markers: %w", err)
	}

	var ids []int64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, markerExt) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, markerExt), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *FileStore) ReadMarker(_ context.Context, kind domain.Kind, id int64) (string, error) {
	data, err := os.ReadFile(s.markerPath(kind, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read marker: %w", err)
	}
	return string(data), nil
}

func (s *FileStore) WriteMarker(_ context.Context, kind domain.Kind, id int64, dump string) error {
	return s.writeFile(s.markerPath(kind, id), dump)
}

func (s *FileStore) AppendMarker(ctx context.Context, kind domain.Kind, id int64, dump string) error {
	current, err := s.ReadMarker(ctx, kind, id)
	if err != nil {
		return err
	}
	return s.writeFile(s.markerPath(kind, id), current+dump)
}

func (s *FileStore) DeleteMarker(_ context.Context, kind domain.Kind, id int64) error {
	if err := os.Remove(s.markerPath(kind, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete marker: %w", err)
	}
	return nil
}

// archiveKey identifies an entry regardless of its label.
func archiveKey(entry ArchiveEntry) string {
	return strings.Join([]string{
		entry.EntityID.String(),
		sanitize(entry.Source, 0),
		string(entry.State),
	}, segmentSep) + segmentSep + entry.Hash
}

func archiveName(entry ArchiveEntry) string {
	return strings.Join([]string{
		entry.EntityID.String(),
		sanitize(entry.Source, 0),
		string(entry.State),
		sanitize(entry.Label, maxLabelLength),
		entry.Hash,
	}, segmentSep) + archiveExt
}

// keyFromName drops the label segment of an archive file name.
func keyFromName(name string) (string, bool) {
	parts := strings.Split(strings.TrimSuffix(name, archiveExt), segmentSep)
	if len(parts) != 5 {
		return "", false
	}
	return strings.Join([]string{parts[0], parts[1], parts[2]}, segmentSep) + segmentSep + parts[4], true
}

func (s *FileStore) archiveIndex(kind domain.Kind) (map[string]struct{}, error) {
	if index, ok := s.indexes[kind]; ok {
		return index, nil
	}

	index := map[string]struct{}{}
	entries, err := os.ReadDir(filepath.Join(s.root, archiveDir, string(kind)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	for _, e := range entries {
		if key, ok := keyFromName(e.Name()); ok {
			index[key] = struct{}{}
		}
	}
	s.indexes[kind] = index
	return index, nil
}

func (s *FileStore) Archive(_ context.Context, entry ArchiveEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.archiveIndex(entry.Kind)
	if err != nil {
		return false, err
	}
	key := archiveKey(entry)
	if _, exists := index[key]; exists {
		return false, nil
	}

	path := filepath.Join(s.root, archiveDir, string(entry.Kind), archiveName(entry))
	if err := s.writeFile(path, entry.Body); err != nil {
		return false, err
	}
	index[key] = struct{}{}
	return true, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(content)); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	// atomic.WriteFile keeps the temp file mode for new files
	if err := os.Chmod(path, filePerm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", filepath.Base(path), err)
	}
	return nil
}
