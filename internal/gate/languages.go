package gate

// DefaultProfiles returns a small built-in table of LanguageProfiles keyed
// by language tag, covering the languages exercised in spec §8's scenarios.
// Deployments with a richer vocabulary need are expected to build their own
// table and pass it to New; this is a reasonable out-of-the-box default.
func DefaultProfiles() map[string]*LanguageProfile {
	return map[string]*LanguageProfile{
		"en": {
			InterrogativeWords: []string{"what", "where", "when", "why", "how", "who", "which", "do", "does", "did", "is", "are", "can", "could", "would", "will"},
			VerbWords:          []string{"is", "are", "was", "were", "have", "has", "had", "take", "took", "feel", "hurt", "need", "want", "start", "go", "came", "said", "give"},
			DomainKeywords:     []string{"pain", "dose", "dosage", "mg", "allergy", "medication", "symptom", "blood pressure", "fever"},
			UrgencyKeywords:    []string{"emergency", "urgent", "immediately", "severe", "can't breathe", "chest pain", "help"},
			TopicStartMarkers:  []string{"by the way", "also", "another thing", "one more question", "additionally"},
		},
		"tr": {
			InterrogativeWords: []string{"ne", "nerede", "ne zaman", "neden", "nasıl", "kim", "hangi", "mi", "mı", "mu", "mü"},
			VerbWords:          []string{"oldu", "var", "yok", "ağrıyor", "hissediyorum", "alıyorum", "istiyorum", "başladı", "geldi", "dedi"},
			DomainKeywords:     []string{"ağrı", "doz", "mg", "alerji", "ilaç", "belirti", "tansiyon", "ateş"},
			UrgencyKeywords:    []string{"acil", "hemen", "şiddetli", "nefes alamıyorum", "göğüs ağrısı", "yardım"},
			TopicStartMarkers:  []string{"bu arada", "ayrıca", "bir şey daha", "başka bir soru"},
			Agglutinative:      true,
			VerbEndings:        []string{"yor", "dı", "di", "du", "dü", "tı", "ti", "miş", "muş", "mış", "müş", "acak", "ecek"},
		},
	}
}
