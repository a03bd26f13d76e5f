package service

import (
	"github.com/xxxsen/asknotes/internal/model"
)

const (
	highConfidenceMean   = 0.75
	mediumConfidenceMean = 0.40
)

func meanScore(chunks []model.RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Score
	}
	return sum / float64(len(chunks))
}

// ConfidenceFor maps the mean similarity of the context chunks to a level.
func ConfidenceFor(chunks []model.RetrievedChunk) model.Confidence {
	return confidenceForMean(meanScore(chunks), len(chunks))
}

func confidenceForMean(mean float64, n int) model.Confidence {
	switch {
	case n == 0:
		return model.ConfidenceLow
	case mean >= highConfidenceMean:
		return model.ConfidenceHigh
	case mean >= mediumConfidenceMean:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// CitationsFor maps context chunks 1:1 to citations, keeping retrieval order.
func CitationsFor(chunks []model.RetrievedChunk) []model.Citation {
	out := make([]model.Citation, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, model.Citation{
			FileName:       c.FileName,
			PageNumber:     c.PageNumber,
			LineStart:      c.LineStart,
			LineEnd:        c.LineEnd,
			RelevanceScore: c.Score,
			ChunkText:      c.Text,
		})
	}
	return out
}
