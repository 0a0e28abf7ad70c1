package agent

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func answerPrompt(query, lang string) string {
	var b strings.Builder
	b.WriteString("You are a news analyst. Answer the question using only the context documents.\n")
	b.WriteString("Question: " + query + "\n")
	if lang != "" {
		b.WriteString("Answer language: " + lang + "\n")
	}
	b.WriteString("Keep the answer under 100 words and cite no URLs.")
	return b.String()
}

func selfCheckPrompt(query, accumulated string, nDocs int) string {
	return fmt.Sprintf(
		"You are checking whether the evidence gathered so far answers a question.\n"+
			"Question: %s\n"+
			"Answer so far: %s\n"+
			"Documents gathered: %d\n"+
			"Reply with exactly two lines:\n"+
			"SUFFICIENT: yes or no\n"+
			"QUERY: a reformulated search query if insufficient, otherwise leave empty",
		query, accumulated, nDocs)
}

// parseSelfCheck reads the structured self-check reply. Unparseable replies
// count as sufficient so a malformed model answer never loops the agent.
func parseSelfCheck(text string) (sufficient bool, reformulated string) {
	sufficient = true
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "SUFFICIENT:"); ok {
			sufficient = !strings.EqualFold(strings.TrimSpace(rest), "no")
		}
		if rest, ok := strings.CutPrefix(line, "QUERY:"); ok {
			reformulated = strings.TrimSpace(rest)
		}
	}
	return sufficient, reformulated
}

func synthesisPrompt(query string, fragments []string, lang string) string {
	var b strings.Builder
	b.WriteString("Merge the partial answers below into one final answer of at most 80 words.\n")
	b.WriteString("Question: " + query + "\n")
	if lang != "" {
		b.WriteString("Answer language: " + lang + "\n")
	}
	for i, f := range fragments {
		fmt.Fprintf(&b, "Partial %d: %s\n", i+1, f)
	}
	return b.String()
}

func causalPrompt(cause, effect string) string {
	return fmt.Sprintf(
		"Did the first event plausibly contribute to the second?\n"+
			"First: %s\nSecond: %s\n"+
			"Reply with exactly one line:\nCONFIDENCE: a number between 0 and 1",
		cause, effect)
}

// parseLine extracts the trimmed remainder of the first line starting with
// prefix.
func parseLine(text, prefix string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// parseConfidence extracts the CONFIDENCE line; ok is false when the reply
// carries no usable number.
func parseConfidence(text string) (float64, bool) {
	rest, ok := parseLine(text, "CONFIDENCE:")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(rest, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// followUpTemplates is the small language-conditional template set for
// follow-up suggestions. Unknown languages fall back to English.
var followUpTemplates = map[string][]string{
	"en": {
		"What are the main risks around %s?",
		"How is %s expected to develop next quarter?",
		"Which companies are most exposed to %s?",
		"What do critics say about %s?",
		"How does %s compare across regions?",
	},
	"ru": {
		"Каковы основные риски, связанные с %s?",
		"Как будет развиваться %s в следующем квартале?",
		"Какие компании больше всего зависят от %s?",
		"Что говорят критики о %s?",
		"Как %s отличается по регионам?",
	},
}

// followUps derives up to max follow-up questions by seeding the language
// templates with the most prominent keywords of the answer.
func followUps(answer, lang string, max int) []string {
	templates, ok := followUpTemplates[lang]
	if !ok {
		templates = followUpTemplates["en"]
	}
	keywords := topKeywords(answer, 2)
	if len(keywords) == 0 {
		return nil
	}

	out := make([]string, 0, max)
	for i, tmpl := range templates {
		if len(out) >= max {
			break
		}
		out = append(out, fmt.Sprintf(tmpl, keywords[i%len(keywords)]))
	}
	return out
}

// topKeywords picks the most frequent long words of a text, ties broken
// alphabetically for determinism.
func topKeywords(text string, max int) []string {
	counts := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()\"'")
		if len(word) >= 6 {
			counts[word]++
		}
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > max {
		words = words[:max]
	}
	return words
}
