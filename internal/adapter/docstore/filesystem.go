package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"campus-compass/internal/domain"
)

// FilesystemStore exposes the corpus directory tree. The root holds one
// folder per category; anything outside those folders is invisible.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates a store over the given corpus root.
func NewFilesystemStore(root string) *FilesystemStore {
	return &FilesystemStore{root: root}
}

var _ domain.DocumentStore = (*FilesystemStore)(nil)

// List returns every supported file under the category folders, sorted by
// path so pass order is stable.
func (s *FilesystemStore) List(ctx context.Context) ([]domain.DocumentRef, error) {
	var refs []domain.DocumentRef
	for _, category := range domain.Categories() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(s.root, string(category))
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read category folder %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if !domain.SupportedExtensions[ext] {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
			}
			refs = append(refs, domain.DocumentRef{
				Path:     filepath.Join(string(category), entry.Name()),
				Name:     entry.Name(),
				Category: category,
				ModTime:  info.ModTime(),
				Size:     info.Size(),
			})
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}

// Stat resolves a store-relative path. Returns nil, nil when the file does
// not exist or is not a supported document.
func (s *FilesystemStore) Stat(ctx context.Context, path string) (*domain.DocumentRef, error) {
	category, name, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if !domain.SupportedExtensions[strings.ToLower(filepath.Ext(name))] {
		return nil, nil
	}

	info, err := os.Stat(filepath.Join(s.root, path))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, nil
	}

	return &domain.DocumentRef{
		Path:     path,
		Name:     name,
		Category: category,
		ModTime:  info.ModTime(),
		Size:     info.Size(),
	}, nil
}

func (s *FilesystemStore) Read(ctx context.Context, path string) ([]byte, error) {
	if _, _, err := splitPath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// splitPath validates a store-relative path of the form <category>/<name>.
func splitPath(path string) (domain.Category, string, error) {
	cleaned := filepath.ToSlash(filepath.Clean(path))
	parts := strings.Split(cleaned, "/")
	if len(parts) != 2 {
		return "", "", domain.NewValidationError("path", fmt.Sprintf("expected <category>/<file>, got %q", path))
	}
	category := domain.Category(parts[0])
	if !category.Valid() {
		return "", "", domain.NewValidationError("path", fmt.Sprintf("unknown category %q", parts[0]))
	}
	return category, parts[1], nil
}
