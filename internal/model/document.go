package model

type MimeCategory string

const (
	MimePDF  MimeCategory = "pdf"
	MimeText MimeCategory = "text"
)

// Document is a parsed upload. Pages are ordered and 1-indexed.
type Document struct {
	FileName  string       `json:"file_name"`
	SubjectID string       `json:"subject_id"`
	Mime      MimeCategory `json:"mime"`
	Pages     []Page       `json:"pages"`
}

type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

// Paragraph is a blank-line delimited run of text within a page.
// Gap holds the separator that followed it in the page text.
type Paragraph struct {
	Index      int    `json:"index"`
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
	Gap        string `json:"-"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
}
