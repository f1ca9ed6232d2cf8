package notes

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"notechat/internal/domain"
)

var noteExts = map[string]bool{".md": true, ".markdown": true, ".txt": true}

// IsNoteFile reports whether path has a note extension.
func IsNoteFile(path string) bool {
	return noteExts[strings.ToLower(filepath.Ext(path))]
}

// DirStore reads notes from files on disk. Each entry of paths may be a file,
// a directory (walked recursively) or a glob pattern.
type DirStore struct {
	paths []string
}

func NewDirStore(paths ...string) *DirStore {
	return &DirStore{paths: paths}
}

// List reads every matching file. Notes are ordered by path.
func (s *DirStore) List(ctx context.Context) ([]domain.Note, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Note, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := readNote(f)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *DirStore) files() ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		if _, ok := seen[p]; ok || !IsNoteFile(p) {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}
	for _, p := range s.paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("notes: %w", err)
			}
			if !info.IsDir() {
				add(m)
				continue
			}
			err = filepath.WalkDir(m, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					if path != m && strings.HasPrefix(d.Name(), ".") {
						return filepath.SkipDir
					}
					return nil
				}
				add(path)
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("notes: walk %s: %w", m, err)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func readNote(path string) (domain.Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Note{}, fmt.Errorf("notes: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.Note{}, fmt.Errorf("notes: %w", err)
	}
	base := filepath.Base(path)
	return domain.Note{
		ID:        path,
		Title:     strings.TrimSuffix(base, filepath.Ext(base)),
		Path:      path,
		Content:   string(data),
		UpdatedAt: info.ModTime(),
	}, nil
}
