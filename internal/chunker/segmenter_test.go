package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/asknotes/internal/model"
)

func TestSegmentTwoParagraphs(t *testing.T) {
	paras := Segment(model.Page{Number: 1, Text: "Page 1 text.\n\nSecond paragraph."})
	require.Len(t, paras, 2)
	require.Equal(t, "Page 1 text.", paras[0].Text)
	require.Equal(t, 1, paras[0].LineStart)
	require.Equal(t, 1, paras[0].LineEnd)
	require.Equal(t, "Second paragraph.", paras[1].Text)
	require.Equal(t, 3, paras[1].LineStart)
	require.Equal(t, 3, paras[1].LineEnd)
	require.Equal(t, 1, paras[1].Index)
}

func TestSegmentNoGapYieldsOneParagraph(t *testing.T) {
	text := "line one\nline two\nline three"
	paras := Segment(model.Page{Number: 4, Text: text})
	require.Len(t, paras, 1)
	require.Equal(t, text, paras[0].Text)
	require.Equal(t, 1, paras[0].LineStart)
	require.Equal(t, 3, paras[0].LineEnd)
	require.Equal(t, 4, paras[0].PageNumber)
}

func TestSegmentReconstructsPage(t *testing.T) {
	pages := []string{
		"Page 1 text.\n\nSecond paragraph.",
		"a\nb\n\n\n\nc  \n \t\nd",
		"single",
		"x\n\ny\n\nz\nw",
	}
	for _, text := range pages {
		paras := Segment(model.Page{Number: 1, Text: text})
		require.Equal(t, text, Reconstruct(paras))
	}
}

func TestSegmentTrimsBlankEdges(t *testing.T) {
	text := "\n\nbody line\n\n   \n"
	paras := Segment(model.Page{Number: 1, Text: text})
	require.Len(t, paras, 1)
	require.Equal(t, "body line", paras[0].Text)
	require.Equal(t, 3, paras[0].LineStart)
	require.Equal(t, strings.Trim(text, " \n"), Reconstruct(paras))
}
