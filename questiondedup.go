package quizmaster

import (
	"strings"
	"unicode"
)

// DedupQuestions drops questions whose text repeats an earlier question
// once case, punctuation and spacing are ignored. Order is preserved.
func DedupQuestions(questions []DraftQuestion) []DraftQuestion {
	seen := make(map[string]int, len(questions))
	out := make([]DraftQuestion, 0, len(questions))
	for i, q := range questions {
		key := normalizeQuestionText(q.Question)
		if first, dup := seen[key]; dup {
			VerboseLog("Question %d duplicates question %d, dropping", i+1, first+1)
			continue
		}
		seen[key] = i
		out = append(out, q)
	}
	return out
}

func normalizeQuestionText(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteRune(r)
			space = false
		default:
			space = true
		}
	}
	return sb.String()
}
