package catalog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTable_CommaWithBOM(t *testing.T) {
	in := "\xEF\xBB\xBFid, name ,price\nCAM1,Bullet,120\nCAM2,Dome\n"
	tb, err := ParseTable(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "price"}, tb.Columns)
	require.Len(t, tb.Rows, 2)
	assert.Equal(t, map[string]string{"id": "CAM1", "name": "Bullet", "price": "120"}, tb.Rows[0])
	assert.Equal(t, "", tb.Rows[1]["price"], "short rows are padded")
}

func TestParseTable_SemicolonSniffed(t *testing.T) {
	in := "id;name;desc\nNVR1;Recorder;\"8 ch, 4K\"\n"
	tb, err := ParseTable(strings.NewReader(in))
	require.NoError(t, err)

	require.Len(t, tb.Rows, 1)
	assert.Equal(t, "8 ch, 4K", tb.Rows[0]["desc"])
}

func TestParseTable_Empty(t *testing.T) {
	tb, err := ParseTable(strings.NewReader("\xEF\xBB\xBF \n"))
	require.NoError(t, err)
	assert.Empty(t, tb.Columns)
	assert.Empty(t, tb.Rows)
	assert.False(t, tb.Has("id"))
}

func TestWriteTable_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rows := []map[string]string{
		{"id": "A", "name": "with, comma", "ignored": "x"},
		{"id": "B"},
	}
	require.NoError(t, WriteTable(&buf, []string{"id", "name"}, rows))
	assert.Equal(t, "id,name\nA,\"with, comma\"\nB,\n", buf.String())

	tb, err := ParseTable(&buf)
	require.NoError(t, err)
	assert.Equal(t, "with, comma", tb.Rows[0]["name"])
}

func TestIsBlankLike(t *testing.T) {
	for _, v := range []string{"", "  ", "false", "FALSE", "0", "None", "null", "—"} {
		assert.True(t, IsBlankLike(v), v)
	}
	for _, v := range []string{"JB-1", "00", "no"} {
		assert.False(t, IsBlankLike(v), v)
	}
}

func TestFamilies_DeclaredOrder(t *testing.T) {
	assert.Equal(t,
		[]string{"cameras", "nvrs", "hdds", "switches", "accessories", "screens", "enclosures", "signage"},
		Names())

	f, ok := Lookup("accessories")
	require.True(t, ok)
	assert.Equal(t, "accessories.csv", f.Filename())
	assert.Contains(t, f.IDColumns, "wall_mount_id")

	_, ok = Lookup("../etc/passwd")
	assert.False(t, ok)
}
