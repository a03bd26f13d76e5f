package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xxxsen/asknotes/internal/model"
)

const (
	DefaultChunkSize    = 256
	DefaultChunkOverlap = 40
)

var chunkNamespace = uuid.MustParse("5b1e9f9c-4f7e-4a55-9d0c-8f4f3a6f2c11")

type Splitter struct {
	size    int
	overlap int
}

// NewSplitter builds a splitter producing windows of at most size tokens.
// The overlap is clamped to half the window size.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > size/2 {
		overlap = size / 2
	}
	return &Splitter{size: size, overlap: overlap}
}

func (s *Splitter) Size() int {
	return s.size
}

func (s *Splitter) Overlap() int {
	return s.overlap
}

type window struct {
	startByte int
	endByte   int
	tokens    int
}

// windows cuts the token stream. A cut prefers the last sentence end found
// beyond the middle of the window, falling back to a hard cut at size tokens.
func (s *Splitter) windows(text string) []window {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= s.size {
		return []window{{startByte: 0, endByte: len(text), tokens: len(tokens)}}
	}
	var out []window
	for begin := 0; begin < len(tokens); {
		end := begin + s.size
		if end >= len(tokens) {
			end = len(tokens)
		} else {
			for i := end - 1; i-begin+1 > s.size/2; i-- {
				if isSentenceEnd(text, tokens[i]) {
					end = i + 1
					break
				}
			}
		}
		out = append(out, window{
			startByte: tokens[begin].start,
			endByte:   tokens[end-1].end,
			tokens:    end - begin,
		})
		if end == len(tokens) {
			break
		}
		begin = end - s.overlap
	}
	return out
}

// Split converts one paragraph into chunks. Each chunk carries the line range
// of its own window inside the paragraph.
func (s *Splitter) Split(subjectID, fileName string, p model.Paragraph) []model.Chunk {
	wins := s.windows(p.Text)
	chunks := make([]model.Chunk, 0, len(wins))
	for i, w := range wins {
		text := p.Text[w.startByte:w.endByte]
		lineStart := p.LineStart
		lineEnd := p.LineEnd
		if len(wins) > 1 {
			lineStart = p.LineStart + strings.Count(p.Text[:w.startByte], "\n")
			lineEnd = lineStart + strings.Count(text, "\n")
		}
		chunks = append(chunks, model.Chunk{
			ID:             ChunkID(subjectID, fileName, p.PageNumber, p.Index, i),
			SubjectID:      subjectID,
			FileName:       fileName,
			PageNumber:     p.PageNumber,
			LineStart:      lineStart,
			LineEnd:        lineEnd,
			ParagraphIndex: p.Index,
			WindowIndex:    i,
			Text:           text,
			TokenCount:     w.tokens,
		})
	}
	return chunks
}

// ChunkID is stable for a (subject, document, page, paragraph, window) position
// so re-ingesting a document overwrites its chunks.
func ChunkID(subjectID, fileName string, page, paragraph, window int) string {
	key := fmt.Sprintf("%s|%s|%d|%d|%d", subjectID, fileName, page, paragraph, window)
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

// ChunkDocument runs segmentation and splitting over every page of doc.
func (s *Splitter) ChunkDocument(doc *model.Document) ([]model.Paragraph, []model.Chunk) {
	var paragraphs []model.Paragraph
	var chunks []model.Chunk
	for _, page := range doc.Pages {
		for _, p := range Segment(page) {
			paragraphs = append(paragraphs, p)
			chunks = append(chunks, s.Split(doc.SubjectID, doc.FileName, p)...)
		}
	}
	return paragraphs, chunks
}
