package catalog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"configurateur/internal/metrics"
)

func bumpMtime(t *testing.T, path string, d time.Duration) {
	t.Helper()
	st, err := os.Stat(path)
	require.NoError(t, err)
	mt := st.ModTime().Add(d)
	require.NoError(t, os.Chtimes(path, mt, mt))
}

func TestIndex_ResolveFirstWriterWins(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "cameras.csv"), "id,name\n cam1 ,a\nSHARED,b\n,no id\n")
	writeFile(t, filepath.Join(root, "nvrs.csv"), "\xEF\xBB\xBFid;name\nNVR1;x\nshared;y\n")
	writeFile(t, filepath.Join(root, "switches.csv"), "name\nno id column\n")

	ix := NewIndex(root)

	fam, ok := ix.Resolve("CAM1")
	require.True(t, ok)
	assert.Equal(t, "cameras", fam)

	fam, ok = ix.Resolve(" nvr1")
	require.True(t, ok)
	assert.Equal(t, "nvrs", fam)

	fam, ok = ix.Resolve("shared")
	require.True(t, ok)
	assert.Equal(t, "cameras", fam, "earlier family wins on collision")

	_, ok = ix.Resolve("missing")
	assert.False(t, ok)
	_, ok = ix.Resolve("  ")
	assert.False(t, ok)

	assert.Len(t, ix.Snapshot(), 3)
}

func TestIndex_AccessoryMappingColumns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "cameras.csv"), "id\nCAM1\n")
	writeFile(t, filepath.Join(root, "accessories.csv"),
		"id,junction_box_id,wall_mount_id,ceiling_mount_id\n"+
			"CAM1,jb-1,WM-1,false\n"+
			"CAM2,—,wm-1,CM-9\n")

	snap := NewIndex(root).Snapshot()

	assert.Equal(t, "cameras", snap["CAM1"])
	assert.Equal(t, "accessories", snap["CAM2"])
	assert.Equal(t, "accessories", snap["JB-1"])
	assert.Equal(t, "accessories", snap["WM-1"])
	assert.Equal(t, "accessories", snap["CM-9"])
	assert.NotContains(t, snap, "FALSE")
	assert.NotContains(t, snap, "—")
}

func TestIndex_UnreadableCatalogContributesNothing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "cameras.csv"), 0o755))
	writeFile(t, filepath.Join(root, "hdds.csv"), "id\nHD1\n")

	ix := NewIndex(root)
	fam, ok := ix.Resolve("HD1")
	require.True(t, ok)
	assert.Equal(t, "hdds", fam)
}

func TestIndex_CacheHitAndInvalidation(t *testing.T) {
	root := t.TempDir()
	cams := filepath.Join(root, "cameras.csv")
	writeFile(t, cams, "id\nCAM1\n")

	m := metrics.New()
	ix := NewIndex(root, WithMetrics(m))

	first := ix.Snapshot()
	_ = ix.Snapshot()
	_, _ = ix.Resolve("CAM1")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FamilyIndexBuildsTotal), "unchanged sources reuse the build")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FamilyIndexSize))

	writeFile(t, cams, "id\nCAM1\nCAM2\n")
	bumpMtime(t, cams, 2*time.Second)
	second := ix.Snapshot()
	assert.Contains(t, second, "CAM2")
	assert.NotContains(t, first, "CAM2", "earlier snapshots are never mutated")

	// a new catalog appearing changes the signature too
	writeFile(t, filepath.Join(root, "signage.csv"), "id\nSIGN1\n")
	fam, ok := ix.Resolve("sign1")
	require.True(t, ok)
	assert.Equal(t, "signage", fam)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.FamilyIndexBuildsTotal))
}

func TestIndex_EmptyIndexIsRebuilt(t *testing.T) {
	root := t.TempDir()
	m := metrics.New()
	ix := NewIndex(root, WithMetrics(m))

	assert.Empty(t, ix.Snapshot())
	assert.Empty(t, ix.Snapshot())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FamilyIndexBuildsTotal), "an empty build is never treated as a cache hit")
}

func TestIndex_ConcurrentReaders(t *testing.T) {
	root := t.TempDir()
	cams := filepath.Join(root, "cameras.csv")
	writeFile(t, cams, "id\nCAM1\nCAM2\nCAM3\n")
	ix := NewIndex(root)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i == 0 && j%10 == 0 {
					mt := time.Now().Add(time.Duration(j) * time.Second)
					_ = os.Chtimes(cams, mt, mt)
				}
				snap := ix.Snapshot()
				assert.Len(t, snap, 3)
			}
		}(i)
	}
	wg.Wait()
}
