package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/gabriel-vasile/mimetype"

	"github.com/xxxsen/asknotes/internal/model"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

func parsePDF(data []byte) (pages []model.Page, err error) {
	if !mimetype.Detect(data).Is("application/pdf") {
		return nil, fmt.Errorf("%w: file is not a valid pdf", appErr.ErrUnsupportedFormat)
	}
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: malformed pdf: %v", appErr.ErrUnsupportedFormat, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", appErr.ErrUnsupportedFormat, err)
	}
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: read page %d: %v", appErr.ErrUnsupportedFormat, i, err)
		}
		text = normalizeNewlines(strings.ToValidUTF8(text, "�"))
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, model.Page{Number: i, Text: text})
	}
	return pages, nil
}
