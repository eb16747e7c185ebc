package gate

import "strings"

// completionScore implements the weighted rule table from spec §4.4. It is
// pure and side-effect free so it can be exercised directly by tests without
// spinning up a Gate.
func completionScore(text string, confidence float64, lang *LanguageProfile, profile *ConversationProfile) float64 {
	trimmed := strings.TrimSpace(text)
	words := strings.Fields(trimmed)
	wordCount := len(words)
	if wordCount == 0 {
		return 0
	}

	endsWithPeriod := strings.HasSuffix(trimmed, ".")
	endsWithBang := strings.HasSuffix(trimmed, "!")
	endsWithQMark := strings.HasSuffix(trimmed, "?")
	punctuated := endsWithPeriod || endsWithBang || endsWithQMark

	isQuestion := endsWithQMark || startsWithInterrogative(words, lang)

	score := 0.0

	if punctuated {
		score += 0.35
	}

	switch {
	case isQuestion && wordCount >= 3:
		score += 0.4
	case isQuestion && wordCount == 2:
		score += 0.2
	case isQuestion:
		score += 0.1
	}

	if endsWithPeriod && !isQuestion {
		score += 0.3
	}
	if endsWithBang {
		score += 0.25
	}
	if hasSubjectVerb(words, lang) {
		score += 0.25
	}

	avgLen := profile.avgSentenceLength()
	ratio := 0.0
	if avgLen > 0 {
		ratio = float64(wordCount) / avgLen
	}
	if wordCount >= 3 && (punctuated || ratio >= 0.8) {
		score += 0.3
	}
	if wordCount >= 3 {
		score += 0.15
	}
	if confidence >= 0.8 {
		score += 0.1
	}
	if ratio >= 0.8 {
		score += 0.1
		if ratio >= 1.2 {
			score += 0.05
		}
	}
	if containsAny(trimmed, lang.DomainKeywords) {
		score += 0.1
	}
	if containsAny(trimmed, lang.UrgencyKeywords) {
		score += 0.15
	}
	if startsWithAny(trimmed, lang.TopicStartMarkers) {
		score += 0.1
	}
	if prev := profile.lastProcessedText(); prev != "" {
		normalized := normalizeText(trimmed)
		if normalized != prev && strings.HasPrefix(normalized, prev) {
			score -= 0.1
		}
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func startsWithInterrogative(words []string, lang *LanguageProfile) bool {
	if len(words) == 0 {
		return false
	}
	first := normalizeWord(words[0])
	for _, w := range lang.InterrogativeWords {
		if normalizeWord(w) == first {
			return true
		}
	}
	return false
}

// hasSubjectVerb is a deliberately shallow grammar heuristic, not a parser:
// analytic languages are checked against a verb-word list (optionally with
// gerund/past suffixes), agglutinative languages against verb-ending
// suffixes on any token.
func hasSubjectVerb(words []string, lang *LanguageProfile) bool {
	if len(words) < 2 {
		return false
	}
	if lang.Agglutinative {
		for _, w := range words {
			lw := normalizeWord(w)
			for _, suffix := range lang.VerbEndings {
				if len(lw) > len(suffix) && strings.HasSuffix(lw, suffix) {
					return true
				}
			}
		}
		return false
	}
	for _, w := range words {
		lw := normalizeWord(w)
		for _, v := range lang.VerbWords {
			v = normalizeWord(v)
			if lw == v || strings.HasPrefix(lw, v+"ing") || strings.HasPrefix(lw, v+"ed") {
				return true
			}
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func startsWithAny(text string, prefixes []string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.Trim(w, ".,!?;:\"'"))
}

// normalizeText is the Glossary's "normalized text": trimmed, lower-cased,
// whitespace-collapsed, with trailing punctuation stripped, used for dedup
// and cache keys so "thank you" and "thank you." are treated as the same
// utterance.
func normalizeText(s string) string {
	collapsed := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.TrimRight(collapsed, " .!?,")
}
