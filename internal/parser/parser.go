// Package parser extracts page-ordered text from uploaded files.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xxxsen/asknotes/internal/model"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

var extensions = map[string]model.MimeCategory{
	".pdf": model.MimePDF,
	".txt": model.MimeText,
}

// SupportedExtensions lists the accepted file extensions in lower case.
func SupportedExtensions() []string {
	return []string{".pdf", ".txt"}
}

// Category resolves the mime category of a file name.
func Category(fileName string) (model.MimeCategory, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	category, ok := extensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: only %s files are accepted", appErr.ErrUnsupportedFormat, strings.Join(SupportedExtensions(), ", "))
	}
	return category, nil
}

// Parse turns raw file bytes into an ordered list of pages.
func Parse(fileName string, data []byte) (*model.Document, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, fmt.Errorf("%w: file name is required", appErr.ErrInvalid)
	}
	category, err := Category(fileName)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: uploaded file is empty", appErr.ErrUnsupportedFormat)
	}
	var pages []model.Page
	switch category {
	case model.MimePDF:
		pages, err = parsePDF(data)
	default:
		pages, err = parseText(data)
	}
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s contains no extractable text", appErr.ErrUnsupportedFormat, fileName)
	}
	return &model.Document{
		FileName: fileName,
		Mime:     category,
		Pages:    pages,
	}, nil
}
