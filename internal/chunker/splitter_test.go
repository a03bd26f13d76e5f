package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/asknotes/internal/model"
)

func longParagraph(sentences int) string {
	parts := make([]string, 0, sentences)
	for i := 0; i < sentences; i++ {
		parts = append(parts, fmt.Sprintf("Sentence %d talks about mitochondria and cellular respiration in detail.", i))
		if i%3 == 2 {
			parts = append(parts, "\n")
		}
	}
	return strings.Join(parts, " ")
}

func TestSplitShortParagraphUnchanged(t *testing.T) {
	s := NewSplitter(256, 40)
	p := model.Paragraph{Index: 0, PageNumber: 2, Text: "Short text.", LineStart: 5, LineEnd: 5}
	chunks := s.Split("bio", "cells.txt", p)
	require.Len(t, chunks, 1)
	require.Equal(t, "Short text.", chunks[0].Text)
	require.Equal(t, 2, chunks[0].PageNumber)
	require.Equal(t, 5, chunks[0].LineStart)
	require.Equal(t, "bio", chunks[0].SubjectID)
}

func TestSplitWindowBounds(t *testing.T) {
	for _, cfg := range [][2]int{{256, 40}, {32, 8}, {20, 30}, {10, 5}} {
		s := NewSplitter(cfg[0], cfg[1])
		require.LessOrEqual(t, s.Overlap(), s.Size()/2)
		p := model.Paragraph{Text: longParagraph(121), LineStart: 1, LineEnd: 41}
		chunks := s.Split("bio", "cells.txt", p)
		require.Greater(t, len(chunks), 1)
		wins := s.windows(p.Text)
		for i, c := range chunks {
			require.LessOrEqual(t, CountTokens(c.Text), s.Size())
			require.Equal(t, c.TokenCount, CountTokens(c.Text))
			require.GreaterOrEqual(t, c.LineStart, p.LineStart)
			require.LessOrEqual(t, c.LineEnd, p.LineEnd)
			if i == 0 {
				continue
			}
			prev := wins[i-1]
			cur := wins[i]
			require.Greater(t, cur.startByte, prev.startByte)
			overlap := 0
			if cur.startByte < prev.endByte {
				overlap = CountTokens(p.Text[cur.startByte:prev.endByte])
			}
			require.LessOrEqual(t, overlap, s.Size()/2)
		}
		require.True(t, strings.HasSuffix(p.Text, chunks[len(chunks)-1].Text))
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	s := NewSplitter(12, 2)
	text := "One two three four five six seven eight. Nine ten eleven twelve thirteen fourteen"
	chunks := s.Split("bio", "a.txt", model.Paragraph{Text: text, LineStart: 1, LineEnd: 1})
	require.Greater(t, len(chunks), 1)
	require.True(t, strings.HasSuffix(chunks[0].Text, "eight."))
}

func TestChunkIDStable(t *testing.T) {
	a := ChunkID("bio", "cells.pdf", 1, 0, 0)
	require.Equal(t, a, ChunkID("bio", "cells.pdf", 1, 0, 0))
	require.NotEqual(t, a, ChunkID("bio", "cells.pdf", 1, 0, 1))
	require.NotEqual(t, a, ChunkID("chem", "cells.pdf", 1, 0, 0))
}

func TestChunkDocumentTwoPages(t *testing.T) {
	doc := &model.Document{
		FileName:  "notes.txt",
		SubjectID: "bio",
		Pages: []model.Page{
			{Number: 1, Text: "Page 1 text.\n\nSecond paragraph."},
			{Number: 2, Text: "Page 2 text."},
		},
	}
	paras, chunks := NewSplitter(256, 40).ChunkDocument(doc)
	require.Len(t, paras, 3)
	require.Len(t, chunks, 3)
	require.Equal(t, []int{1, 1, 2}, []int{chunks[0].PageNumber, chunks[1].PageNumber, chunks[2].PageNumber})
	for _, c := range chunks {
		require.Equal(t, "notes.txt", c.FileName)
		require.Equal(t, "bio", c.SubjectID)
	}
}
