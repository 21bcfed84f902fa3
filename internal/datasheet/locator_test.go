package datasheet

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var declared = []string{"cameras", "nvrs", "hdds", "switches", "accessories", "screens", "enclosures", "signage"}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
}

func TestFind_ProbeVariants(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "cameras", "CAM1.pdf"))
	touch(t, filepath.Join(root, "cameras", "cam2.PDF"))
	touch(t, filepath.Join(root, "nvrs", "Nvr-8.pdf"))

	l := NewLocator(root, declared)

	tests := []struct {
		name   string
		family string
		id     string
		want   string
		ok     bool
	}{
		{"exact", "cameras", "CAM1", "CAM1.pdf", true},
		{"lower id finds upper file", "cameras", "cam1", "CAM1.pdf", true},
		{"upper id finds lower file with upper ext", "cameras", "CAM2", "cam2.PDF", true},
		{"mixed case via listing", "nvrs", "NVR-8", "Nvr-8.pdf", true},
		{"unknown id", "cameras", "CAM9", "", false},
		{"blank id", "cameras", "   ", "", false},
		{"missing family dir", "hdds", "CAM1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := l.Find(tt.family, tt.id)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, filepath.Base(got))
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestFind_IgnoresDirectoriesAndNesting(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cameras", "CAM1.pdf"), 0o755))
	touch(t, filepath.Join(root, "cameras", "deep", "CAM3.pdf"))

	l := NewLocator(root, declared)

	_, ok := l.Find("cameras", "CAM3")
	assert.False(t, ok, "nested documents are out of reach")

	_, ok = l.Find("cameras", "CAM1")
	assert.False(t, ok, "directories never match")
}

func TestFind_UnreadableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits not enforced")
	}
	root := t.TempDir()
	dir := filepath.Join(root, "cameras")
	touch(t, filepath.Join(dir, "Odd.pdf"))
	require.NoError(t, os.Chmod(dir, 0o300))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	l := NewLocator(root, declared)
	_, ok := l.Find("cameras", "ODD")
	assert.False(t, ok)
}

func TestProbeOrder(t *testing.T) {
	l := NewLocator(t.TempDir(), declared)

	order := l.ProbeOrder("switches")
	require.Len(t, order, len(declared)+1)
	assert.Equal(t, "switches", order[0])
	assert.Equal(t, []string{"cameras", "nvrs", "hdds", "accessories"}, order[1:5])
	assert.Equal(t, Unclassified, order[len(order)-1])

	order = l.ProbeOrder("")
	assert.Equal(t, Unclassified, order[0])
	assert.Len(t, order, len(declared)+1)
	assert.Equal(t, "cameras", order[1])
}

func TestSearch_FallsBackAcrossFamilies(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "hdds", "HD1.pdf"))
	touch(t, filepath.Join(root, Unclassified, "LOOSE.pdf"))

	l := NewLocator(root, declared)

	fam, p, ok := l.Search("cameras", "HD1")
	require.True(t, ok)
	assert.Equal(t, "hdds", fam)
	assert.Equal(t, filepath.Join(root, "hdds", "HD1.pdf"), p)

	fam, _, ok = l.Search("", "loose")
	require.True(t, ok)
	assert.Equal(t, Unclassified, fam)

	_, _, ok = l.Search("cameras", "NOPE")
	assert.False(t, ok)
}

func TestFind_RejectsIdsThatLeaveTheFamilyDir(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "data", "Fiche_tech")
	touch(t, filepath.Join(root, "cameras", "CAM1.pdf"))
	touch(t, filepath.Join(base, "SECRET", "KEYS.pdf"))
	touch(t, filepath.Join(root, "KEYS.pdf"))

	l := NewLocator(root, declared)

	for _, id := range []string{"../../../SECRET/KEYS", "../KEYS", `..\KEYS`, "sub/CAM1", "CAM1\x00"} {
		_, ok := l.Find("cameras", id)
		assert.False(t, ok, id)
		_, _, ok = l.Search("", id)
		assert.False(t, ok, id)
	}

	_, ok := l.Find("cameras", "CAM1")
	assert.True(t, ok)
}

func TestSafeID(t *testing.T) {
	for _, id := range []string{"CAM1", "IPC-B2.8", "a b", "x..y"} {
		assert.True(t, SafeID(id), id)
	}
	for _, id := range []string{"", "  ", ".", "..", "a/b", `a\b`, "../X", "a\x00"} {
		assert.False(t, SafeID(id), id)
	}
}
