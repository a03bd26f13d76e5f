package model

type MCQ struct {
	Question      string   `json:"question" validate:"required"`
	Options       []string `json:"options" validate:"len=4,dive,required"`
	CorrectAnswer string   `json:"correct_answer" validate:"required,oneof=A B C D"`
	Explanation   string   `json:"explanation"`
	Citation      string   `json:"citation"`
}

type ShortAnswer struct {
	Question       string `json:"question" validate:"required"`
	ExpectedAnswer string `json:"expected_answer" validate:"required"`
	Citation       string `json:"citation"`
}

type Quiz struct {
	MCQs         []MCQ         `json:"mcqs"`
	ShortAnswers []ShortAnswer `json:"short_answer"`
}

// QuizResult is either parsed (Quiz set) or unparsed (Raw and Reason set).
type QuizResult struct {
	SubjectID string
	Quiz      *Quiz
	Raw       string
	Reason    string
}

func (r *QuizResult) Parsed() bool {
	return r != nil && r.Quiz != nil
}
