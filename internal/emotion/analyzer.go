package emotion

// Analyzer fuses audio features and a keyword-based text scan into an
// Emotional profile (spec §4.8). It holds no mutable state and makes no
// external calls; a single Analyzer is safe to share across every
// participant's pipeline task.
type Analyzer struct {
	tables map[string]KeywordTable
}

// New builds an Analyzer. A nil tables map falls back to DefaultKeywordTables.
func New(tables map[string]KeywordTable) *Analyzer {
	if tables == nil {
		tables = DefaultKeywordTables()
	}
	return &Analyzer{tables: tables}
}

// Analyze derives an Emotional profile from a participant's rolling audio
// buffer (spec: "last <= 5s"), the transcript the gate just fired, and the
// participant's source language. It never errors; extraction failures fall
// through to NeutralProfile.
func (a *Analyzer) Analyze(pcm []byte, transcript, language string) Profile {
	if len(transcript) == 0 && len(pcm) == 0 {
		return NeutralProfile()
	}

	features := ExtractAudioFeatures(pcm)
	text := scanText(transcript, language, a.tables)

	fused := fuse(features, text.scores)
	primary, maxScore := argmax(fused)

	confidence := (features.Clarity + text.intensity + maxScore) / 3

	return Profile{
		Primary:         primary,
		Intensity:       maxScore,
		Confidence:      clamp01(confidence),
		Tonality:        tonalityLabel(features),
		VoiceSettings:   deriveVoiceSettings(primary, maxScore),
		CulturalContext: culturalContext(language),
	}
}

// fuse combines the audio-derived arousal/valence signal with the text
// keyword scan into one score per emotion label. Audio features alone can't
// distinguish most of the closed label set, so they contribute mostly to
// Calm/Urgent/Excited/Nervous, which the text scan under-covers.
func fuse(f AudioFeatures, textScores map[Label]float64) map[Label]float64 {
	arousal := clamp01(0.6*f.Energy + 0.4*f.ZeroCrossingRate)
	fast := f.EstimatedTempo > 3.5

	out := make(map[Label]float64, len(textScores))
	for k, v := range textScores {
		out[k] = v
	}

	out[Calm] += clamp01(1 - arousal*1.2)
	out[Urgent] += clamp01(arousal*0.6 + boolF(fast)*0.3)
	out[Excited] += clamp01(arousal * 0.4)
	out[Nervous] += clamp01(f.ZeroCrossingRate * 0.3)
	out[Confident] += clamp01(f.Energy*0.3 + (1-f.ZeroCrossingRate)*0.2)

	for k, v := range out {
		out[k] = clamp01(v)
	}
	return out
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func argmax(scores map[Label]float64) (Label, float64) {
	best := Label(Neutral)
	bestScore := -1.0
	for label, score := range scores {
		if score > bestScore {
			best = label
			bestScore = score
		}
	}
	if bestScore < 0 {
		return Neutral, 0
	}
	return best, bestScore
}

func tonalityLabel(f AudioFeatures) string {
	switch {
	case f.Energy > 0.6 && f.ZeroCrossingRate > 0.5:
		return "sharp"
	case f.Energy < 0.2:
		return "flat"
	case f.EstimatedTempo > 4:
		return "brisk"
	default:
		return "even"
	}
}

// culturalContext is a placeholder hook for a locale-aware tag; spec §3
// calls out "recent cultural-context tag" as an attribute without further
// specifying its derivation, so this returns the bare language tag, leaving
// richer locale mapping to a future keyword-table expansion.
func culturalContext(language string) string {
	return language
}
