package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/zap"

	"configurateur/internal/metrics"
)

// Index maps normalized product identifiers to the family whose catalog
// declares them. It is rebuilt lazily whenever a catalog file's modification
// time changes.
//
// An identifier present in several catalogs resolves to the first family in
// declared order; catalog-lint reports those collisions.
type Index struct {
	root    string
	log     *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sig      []int64
	families map[string]string
}

type IndexOption func(*Index)

func WithLogger(log *zap.Logger) IndexOption {
	return func(ix *Index) {
		if log != nil {
			ix.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) IndexOption {
	return func(ix *Index) { ix.metrics = m }
}

func NewIndex(root string, opts ...IndexOption) *Index {
	ix := &Index{root: root, log: zap.NewNop()}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Snapshot returns the current identifier to family map, rebuilding it first
// when the catalogs changed. The returned map is shared and must not be
// modified; a rebuild swaps in a new map instead of touching it.
func (ix *Index) Snapshot() map[string]string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	sig := ix.signature()
	if len(ix.families) > 0 && slices.Equal(sig, ix.sig) {
		return ix.families
	}

	ix.families = ix.build()
	ix.sig = sig

	if ix.metrics != nil {
		ix.metrics.FamilyIndexBuildsTotal.Inc()
		ix.metrics.FamilyIndexSize.Set(float64(len(ix.families)))
	}
	ix.log.Debug("family index rebuilt", zap.Int("identifiers", len(ix.families)))
	return ix.families
}

// Resolve returns the likely family of id.
func (ix *Index) Resolve(id string) (string, bool) {
	id = NormalizeID(id)
	if id == "" {
		return "", false
	}
	fam, ok := ix.Snapshot()[id]
	return fam, ok
}

// signature is the ordered list of catalog mtimes, 0 for a missing file.
func (ix *Index) signature() []int64 {
	sig := make([]int64, len(declared))
	for i, f := range declared {
		if st, err := os.Stat(filepath.Join(ix.root, f.Filename())); err == nil {
			sig[i] = st.ModTime().UnixNano()
		}
	}
	return sig
}

func (ix *Index) build() map[string]string {
	out := make(map[string]string)
	for _, f := range declared {
		ids, err := readIdentifiers(filepath.Join(ix.root, f.Filename()), f)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				ix.log.Warn("catalog skipped in family index",
					zap.String("family", f.Name), zap.Error(err))
			}
			continue
		}
		for _, id := range ids {
			if _, taken := out[id]; !taken {
				out[id] = f.Name
			}
		}
	}
	return out
}

// readIdentifiers returns the normalized identifiers of one catalog file in
// row order, duplicates included. Rows without a usable id are skipped.
func readIdentifiers(path string, f Family) ([]string, error) {
	t, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	return identifiers(t, f), nil
}

func parseFile(path string) (*Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	t, err := ParseTable(fh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnreadable, err)
	}
	return t, nil
}

func identifiers(t *Table, f Family) []string {
	var ids []string
	for _, row := range t.Rows {
		for _, col := range f.IDColumns {
			v, ok := row[col]
			if !ok {
				continue
			}
			if f.isMappingColumn(col) && IsBlankLike(v) {
				continue
			}
			if id := NormalizeID(v); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
