package parser

import (
	"strings"

	"github.com/xxxsen/asknotes/internal/model"
)

// Plain text is always a single page. Form feeds are kept as ordinary text.
func parseText(data []byte) ([]model.Page, error) {
	text := decodeText(data)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []model.Page{{Number: 1, Text: text}}, nil
}
