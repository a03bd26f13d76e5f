package model

// Chunk is the unit of embedding, storage and retrieval.
type Chunk struct {
	ID             string    `json:"id"`
	SubjectID      string    `json:"subject_id"`
	FileName       string    `json:"file_name"`
	PageNumber     int       `json:"page_number"`
	LineStart      int       `json:"line_start"`
	LineEnd        int       `json:"line_end"`
	ParagraphIndex int       `json:"paragraph_index"`
	WindowIndex    int       `json:"window_index"`
	Text           string    `json:"text"`
	TokenCount     int       `json:"token_count"`
	Embedding      []float32 `json:"-"`
	Ctime          int64     `json:"ctime"`
}

// RetrievedChunk is a chunk with its cosine similarity to a query.
type RetrievedChunk struct {
	Chunk
	Score float64 `json:"score"`
}

type FileStats struct {
	FileName string `json:"file_name"`
	Chunks   int    `json:"chunks"`
}

// SubjectStats is derived from index state; Ctime orders subjects by first use.
type SubjectStats struct {
	SubjectID string      `json:"subject_id"`
	Files     []FileStats `json:"files"`
	Chunks    int         `json:"chunks"`
	Ctime     int64       `json:"-"`
}
