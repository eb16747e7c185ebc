package emotion

import "strings"

// KeywordTable is a per-language keyword bank for the text-sentiment scan
// (spec §4.8: "per-language keyword tables for positive/negative/excited/
// angry/happy/surprised, plus punctuation cues").
type KeywordTable struct {
	Positive  []string
	Negative  []string
	Excited   []string
	Angry     []string
	Happy     []string
	Surprised []string
}

// DefaultKeywordTables returns a small built-in table per language, in the
// same spirit as the stub ASR/MT/TTS clients' DefaultXConfig pattern: real
// deployments are expected to supply their own richer table via New.
func DefaultKeywordTables() map[string]KeywordTable {
	return map[string]KeywordTable{
		"en": {
			Positive:  []string{"good", "great", "thank you", "better", "relieved", "fine"},
			Negative:  []string{"bad", "worse", "terrible", "hurts", "awful", "afraid"},
			Excited:   []string{"amazing", "can't wait", "excited", "wow"},
			Angry:     []string{"angry", "furious", "unacceptable", "ridiculous"},
			Happy:     []string{"happy", "glad", "great news", "wonderful"},
			Surprised: []string{"really", "seriously", "i didn't know", "surprising"},
		},
		"tr": {
			Positive:  []string{"iyi", "harika", "teşekkür", "daha iyi", "rahatladım"},
			Negative:  []string{"kötü", "daha kötü", "korkunç", "ağrıyor", "korkuyorum"},
			Excited:   []string{"muhteşem", "sabırsızlanıyorum", "vay"},
			Angry:     []string{"sinirli", "kabul edilemez", "gülünç"},
			Happy:     []string{"mutlu", "sevindim", "harika haber"},
			Surprised: []string{"gerçekten", "cidden", "bilmiyordum"},
		},
	}
}

type textScan struct {
	scores    map[Label]float64
	intensity float64
}

func scanText(transcript, language string, tables map[string]KeywordTable) textScan {
	table, ok := tables[language]
	if !ok {
		table = tables["en"]
	}
	lower := strings.ToLower(transcript)

	scores := map[Label]float64{
		Happy:     hitRatio(lower, table.Happy) + 0.5*hitRatio(lower, table.Positive),
		Sad:       hitRatio(lower, table.Negative),
		Angry:     hitRatio(lower, table.Angry),
		Excited:   hitRatio(lower, table.Excited),
		Surprised: hitRatio(lower, table.Surprised),
		Calm:      0,
		Nervous:   0,
		Confident: 0,
		Urgent:    0,
		Sarcastic: 0,
	}

	exclamations := float64(strings.Count(transcript, "!"))
	if exclamations > 0 {
		scores[Excited] += 0.15 * clamp01(exclamations)
		scores[Angry] += 0.1 * clamp01(exclamations)
	}
	if strings.Contains(transcript, "?!") || strings.Count(transcript, "?") >= 2 {
		scores[Surprised] += 0.2
	}
	if strings.HasSuffix(strings.TrimSpace(transcript), "...") {
		scores[Nervous] += 0.15
		scores[Calm] += 0.1
	}

	upperWords := 0
	totalWords := 0
	for _, w := range strings.Fields(transcript) {
		totalWords++
		if w == strings.ToUpper(w) && len(w) > 2 {
			upperWords++
		}
	}
	if totalWords > 0 && float64(upperWords)/float64(totalWords) > 0.3 {
		scores[Angry] += 0.2
		scores[Excited] += 0.1
	}

	max := 0.0
	for _, v := range scores {
		if v > max {
			max = v
		}
	}
	return textScan{scores: scores, intensity: clamp01(max)}
}

func hitRatio(lowerText string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(lowerText, strings.ToLower(k)) {
			hits++
		}
	}
	return clamp01(float64(hits) / 2)
}
