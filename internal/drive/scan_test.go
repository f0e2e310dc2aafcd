package drive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceID(t *testing.T) {
	id, ok := SourceID("id=1AbC_dEf")
	assert.True(t, ok)
	assert.Equal(t, "1AbC_dEf", id)

	_, ok = SourceID("/local/path")
	assert.False(t, ok)

	_, ok = SourceID("id=")
	assert.False(t, ok)
}

func TestParseLs(t *testing.T) {
	out := `
     1234 docs/report.pdf
       56 docs/with spaces in name.txt
   999999 z-last.bin
`
	files, err := ParseLs(out)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "docs/report.pdf", files[0].RelPath)
	assert.Equal(t, int64(1234), files[0].Size)
	assert.Equal(t, "docs/with spaces in name.txt", files[1].RelPath)
	assert.Equal(t, int64(56), files[1].Size)
	assert.Equal(t, "z-last.bin", files[2].RelPath)
}

func TestParseLsSkipsMalformedLines(t *testing.T) {
	out := "garbage\n   100 ok.txt\nnot-a-size path.txt\n"
	files, err := ParseLs(out)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "ok.txt", files[0].RelPath)
}

func TestParseLsOrdersByPath(t *testing.T) {
	out := "  1 z.txt\n  2 a.txt\n"
	files, err := ParseLs(out)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", files[0].RelPath)
	assert.Equal(t, "z.txt", files[1].RelPath)
}
