package tts

// languageDefaultSettings implements spec §4.7's fallback voice-settings
// rule when no emotional profile is supplied: "slightly higher stability
// for agglutinative languages, slightly more style for analytic ones".
func languageDefaultSettings(agglutinative bool) VoiceSettings {
	if agglutinative {
		return VoiceSettings{Stability: 0.75, SimilarityBoost: 0.7, Style: 0.25, SpeakerBoost: false}
	}
	return VoiceSettings{Stability: 0.6, SimilarityBoost: 0.7, Style: 0.45, SpeakerBoost: false}
}

// emotionBucket buckets a settings bundle's Style into coarse bands for the
// cache key, so near-identical emotional intensities share a cache entry
// instead of fragmenting it on floating-point noise.
func emotionBucket(settings VoiceSettings) string {
	switch {
	case settings.Style < 0.25:
		return "low"
	case settings.Style < 0.6:
		return "medium"
	default:
		return "high"
	}
}

func deriveSettings(emotional *VoiceSettings, agglutinative bool) VoiceSettings {
	if emotional != nil {
		return emotional.clamp()
	}
	return languageDefaultSettings(agglutinative).clamp()
}
