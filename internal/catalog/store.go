package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrUnknownCatalog    = errors.New("unknown catalog")
	ErrCatalogUnreadable = errors.New("catalog unreadable")
	ErrEmptyColumns      = errors.New("empty columns")
)

// Store reads and rewrites the catalog files under Root. Writes are
// serialized and land atomically, the previous content kept as <file>.bak.
type Store struct {
	Root string
	log  *zap.Logger

	mu sync.Mutex
}

func NewStore(root string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{Root: root, log: log}
}

// Path returns the catalog file of a declared family.
func (s *Store) Path(kind string) (string, error) {
	f, ok := Lookup(kind)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCatalog, kind)
	}
	return filepath.Join(s.Root, f.Filename()), nil
}

// Read parses a catalog. A missing file is an empty table.
func (s *Store) Read(kind string) (*Table, error) {
	p, err := s.Path(kind)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Table{Columns: []string{}, Rows: []map[string]string{}}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogUnreadable, kind, err)
	}
	defer f.Close()

	t, err := ParseTable(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogUnreadable, kind, err)
	}
	return t, nil
}

// Write replaces a catalog with the given columns and rows. Columns are
// trimmed and blanks dropped; nothing left is ErrEmptyColumns.
func (s *Store) Write(kind string, columns []string, rows []map[string]string) error {
	p, err := s.Path(kind)
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return ErrEmptyColumns
	}

	var buf bytes.Buffer
	if err := WriteTable(&buf, cols, rows); err != nil {
		return err
	}
	return s.replace(p, buf.Bytes())
}

// ReadRaw returns the catalog file as stored. A missing file wraps fs.ErrNotExist.
func (s *Store) ReadRaw(kind string) ([]byte, error) {
	p, err := s.Path(kind)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", kind, err)
	}
	return b, nil
}

// WriteRaw stores content verbatim, trimmed and newline terminated.
func (s *Store) WriteRaw(kind, content string) error {
	p, err := s.Path(kind)
	if err != nil {
		return err
	}
	return s.replace(p, []byte(strings.TrimSpace(content)+"\n"))
}

func (s *Store) replace(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if old, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", old, 0o644); err != nil {
			s.log.Warn("catalog backup failed", zap.String("path", path), zap.Error(err))
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("catalog backup skipped", zap.String("path", path), zap.Error(err))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
