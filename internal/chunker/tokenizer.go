package chunker

import "regexp"

// words with inner dashes/underscores, or any single non-space symbol
var tokenRegex = regexp.MustCompile(`\w+(?:[-_]\w+)*|\S`)

type token struct {
	start int
	end   int
}

func tokenize(text string) []token {
	idx := tokenRegex.FindAllStringIndex(text, -1)
	tokens := make([]token, len(idx))
	for i, pos := range idx {
		tokens[i] = token{start: pos[0], end: pos[1]}
	}
	return tokens
}

// CountTokens returns the number of tokens the splitter sees in text.
func CountTokens(text string) int {
	return len(tokenRegex.FindAllStringIndex(text, -1))
}

func isSentenceEnd(text string, t token) bool {
	if t.end-t.start != 1 {
		return false
	}
	switch text[t.start] {
	case '.', '!', '?':
		return true
	}
	return false
}
