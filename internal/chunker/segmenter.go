package chunker

import (
	"regexp"
	"strings"

	"github.com/xxxsen/asknotes/internal/model"
)

// a blank-line gap: two or more newlines, whitespace-only lines count as blank
var gapRegex = regexp.MustCompile(`\n(?:[ \t]*\n)+`)

// Segment splits a page into paragraphs along blank-line gaps. Paragraph text is
// kept byte-exact so line numbers stay true to the source; whitespace-only
// pieces at the page edges are dropped.
func Segment(page model.Page) []model.Paragraph {
	text := page.Text
	gaps := gapRegex.FindAllStringIndex(text, -1)
	var paragraphs []model.Paragraph
	start := 0
	emit := func(end int, gap string) {
		piece := text[start:end]
		if strings.TrimSpace(piece) == "" {
			if len(paragraphs) > 0 && gap != "" {
				// keep the interior gap attached to the previous paragraph
				paragraphs[len(paragraphs)-1].Gap += piece + gap
			}
			return
		}
		lineStart := 1 + strings.Count(text[:start], "\n")
		lineEnd := lineStart + strings.Count(strings.TrimRight(piece, "\n"), "\n")
		paragraphs = append(paragraphs, model.Paragraph{
			Index:      len(paragraphs),
			PageNumber: page.Number,
			Text:       piece,
			Gap:        gap,
			LineStart:  lineStart,
			LineEnd:    lineEnd,
		})
	}
	for _, gap := range gaps {
		emit(gap[0], text[gap[0]:gap[1]])
		start = gap[1]
	}
	emit(len(text), "")
	if len(paragraphs) > 0 {
		paragraphs[len(paragraphs)-1].Gap = ""
	}
	return paragraphs
}

// Reconstruct joins paragraphs with their original gaps.
func Reconstruct(paragraphs []model.Paragraph) string {
	var sb strings.Builder
	for _, p := range paragraphs {
		sb.WriteString(p.Text)
		sb.WriteString(p.Gap)
	}
	return sb.String()
}
