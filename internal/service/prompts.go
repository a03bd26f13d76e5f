package service

import (
	"fmt"
	"strings"

	"github.com/xxxsen/asknotes/internal/model"
)

// Refusal is the fixed answer given when the notes hold nothing relevant.
func Refusal(subjectID string) string {
	return fmt.Sprintf("Not found in your notes for %s", subjectID)
}

func isRefusal(text, subjectID string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(Refusal(subjectID)))
}

func sourceLabel(c model.Chunk) string {
	return fmt.Sprintf("[%s, Page %d, Lines %d-%d]", c.FileName, c.PageNumber, c.LineStart, c.LineEnd)
}

func buildContext(chunks []model.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("--- Source: %s ---\n%s", sourceLabel(c.Chunk), c.Text))
	}
	return strings.Join(parts, "\n\n")
}

func answerSystemPrompt(subjectID, context string) string {
	return fmt.Sprintf(`You are a Study Copilot for the subject "%s". You answer questions STRICTLY based on the provided context from the user's uploaded notes.

RULES:
1. ONLY use information from the CONTEXT below. Do NOT use outside knowledge.
2. If the context does not contain enough information to answer, respond EXACTLY with: "%s"
3. Include inline citations in the format [File Name, Page X].
4. Be precise, clear, and helpful.
5. If the question is ambiguous, interpret it within the subject matter.

CONTEXT FROM NOTES:
%s`, subjectID, Refusal(subjectID), context)
}

func voiceSystemPrompt(subjectID, context string) string {
	return fmt.Sprintf(`You are a friendly voice tutor for the subject "%s". Your answer will be read aloud.

RULES:
1. ONLY use information from the CONTEXT below. Do NOT use outside knowledge.
2. If the context does not contain enough information to answer, respond EXACTLY with: "%s"
3. Speak naturally in a single short paragraph. No markdown, no bullet points, no headings, no symbols.
4. Mention the source file and page in words, for example "according to your cells notes on page two".

CONTEXT FROM NOTES:
%s`, subjectID, Refusal(subjectID), context)
}

// historyMessage renders the retained turns as one "Previous conversation" block.
func historyMessage(history []model.ConversationTurn) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Previous conversation:")
	for _, turn := range history {
		role := strings.ToUpper(string(turn.Role))
		if role == "" {
			role = "USER"
		}
		sb.WriteString("\n")
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
	}
	return sb.String()
}

func lastTurns(history []model.ConversationTurn, n int) []model.ConversationTurn {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

const quizPromptTemplate = `Based STRICTLY on the following study material for "%s", generate quiz questions.

STUDY MATERIAL:
%s

Generate exactly:
- 5 Multiple Choice Questions (MCQs) with 4 options each, the letter of the single correct option, an explanation and a citation
- 3 Short Answer Questions with brief expected answers and a citation

Citations use the form "<file name>, Page <n>" taken from the material labels.

Return your response in this EXACT JSON format (no markdown fences):
{
  "mcqs": [
    {
      "question": "...",
      "options": ["A) ...", "B) ...", "C) ...", "D) ..."],
      "correct_answer": "A",
      "explanation": "...",
      "citation": "notes.pdf, Page 1"
    }
  ],
  "short_answer": [
    {
      "question": "...",
      "expected_answer": "...",
      "citation": "notes.pdf, Page 1"
    }
  ]
}

IMPORTANT: Only create questions from the provided material. Do NOT use external knowledge.`

func quizPrompt(subjectID string, chunks []model.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("[%s, Page %d]:\n%s", c.FileName, c.PageNumber, c.Text))
	}
	return fmt.Sprintf(quizPromptTemplate, subjectID, strings.Join(parts, "\n\n"))
}
