package docimport

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	d, err := Extract("shopping list.txt", []byte("  milk\neggs\n"))
	require.NoError(t, err)
	require.Equal(t, "shopping list", d.Title)
	require.Equal(t, "milk\neggs", d.Description)
	require.Nil(t, d.CodeName)
}

func TestExtractFrontmatter(t *testing.T) {
	src := "---\ntitle: Water the plants\ncode: counter\n---\nEvery second day.\n"
	d, err := Extract("plants.md", []byte(src))
	require.NoError(t, err)
	require.Equal(t, "Water the plants", d.Title)
	require.NotNil(t, d.CodeName)
	require.Equal(t, "counter", *d.CodeName)
	require.Equal(t, "Every second day.", d.Description)
}

func TestExtractFrontmatterWithoutTitleKeepsFileName(t *testing.T) {
	d, err := Extract("notes/ideas.md", []byte("---\ncode: ''\n---\nbody"))
	require.NoError(t, err)
	require.Equal(t, "ideas", d.Title)
	require.Nil(t, d.CodeName)
	require.Equal(t, "body", d.Description)
}

func TestExtractUnclosedFrontmatter(t *testing.T) {
	_, err := Extract("a.md", []byte("---\ntitle: x\nno end"))
	require.Error(t, err)
}

func TestExtractBadYAML(t *testing.T) {
	_, err := Extract("a.md", []byte("---\ntitle: [unclosed\n---\nbody"))
	require.Error(t, err)
}

func TestExtractRejectsBinary(t *testing.T) {
	_, err := Extract("image.png", []byte{0x89, 'P', 'N', 'G', 0xff, 0xfe, 0x00})
	require.True(t, errors.Is(err, ErrUnsupported), "err = %v", err)
}

func TestExtractRejectsMalformedPDF(t *testing.T) {
	_, err := Extract("scan.pdf", []byte("%PDF-1.4\nthis is not really a pdf"))
	require.True(t, errors.Is(err, ErrUnsupported), "err = %v", err)
}

func TestExtractRejectsOversized(t *testing.T) {
	_, err := Extract("big.txt", bytes.Repeat([]byte("a"), MaxSize+1))
	require.True(t, errors.Is(err, ErrUnsupported), "err = %v", err)
}

func TestExtractEmptyName(t *testing.T) {
	d, err := Extract("", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "Imported document", d.Title)
}
