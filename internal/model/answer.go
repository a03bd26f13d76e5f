package model

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

type Citation struct {
	FileName       string  `json:"file_name"`
	PageNumber     int     `json:"page_number"`
	LineStart      int     `json:"line_start"`
	LineEnd        int     `json:"line_end"`
	RelevanceScore float64 `json:"relevance_score"`
	ChunkText      string  `json:"chunk_text"`
}

type Answer struct {
	Text       string     `json:"answer"`
	Confidence Confidence `json:"confidence"`
	Citations  []Citation `json:"citations"`
	SubjectID  string     `json:"subject_id"`
	// Grounded is false for the refusal answer.
	Grounded bool `json:"-"`
}
