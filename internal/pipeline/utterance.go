package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/Furkansz/voice-translation-api/internal/emotion"
	"github.com/Furkansz/voice-translation-api/internal/gate"
	"github.com/Furkansz/voice-translation-api/internal/transport"
	"github.com/Furkansz/voice-translation-api/internal/tts"
)

// toTTSSettings carries an emotion.Profile's derived voice-settings bundle
// across the package boundary; the two types are structurally identical by
// design so no information is lost in the conversion.
func toTTSSettings(v emotion.VoiceSettings) *tts.VoiceSettings {
	return &tts.VoiceSettings{
		Stability:       v.Stability,
		SimilarityBoost: v.SimilarityBoost,
		Style:           v.Style,
		SpeakerBoost:    v.SpeakerBoost,
	}
}

// runUtterance runs the §4.3 post-gate stage sequence for one fired
// utterance: translate, analyze emotion, synthesize, and deliver the result
// to both sides of the session. Called only from the owning task's
// runWorker, which drains utterances one at a time in firing order so two
// utterances for the same participant never race each other to the wire.
func (o *Orchestrator) runUtterance(t *task, u gate.Utterance) {
	start := time.Now()
	t.sess.Stats.IncMessage()

	result, err := o.mt.Translate(t.ctx, u.Text, t.participant.Language, t.partner.Language)
	if err != nil {
		o.logger.Warn("translation failed", zap.String("participant", t.participant.ID.String()), zap.Error(err))
		t.sess.Stats.IncError()
		_ = t.participant.Send(&transport.PipelineError{Type: transport.TypePipelineError, Stage: "translation", Message: err.Error()})
		return
	}
	translationDone := time.Now()

	profile := o.emotion.Analyze(t.pcmSnapshot(), u.Text, t.participant.Language)

	agglutinative := false
	if lp, ok := o.languages[t.partner.Language]; ok {
		agglutinative = lp.Agglutinative
	}

	seq := t.nextSeq()
	emotionSummary := &transport.EmotionSummary{
		Primary:    string(profile.Primary),
		Intensity:  profile.Intensity,
		Confidence: profile.Confidence,
	}

	_ = t.participant.Send(&transport.LiveTranslation{
		Type:           transport.TypeLiveTranslation,
		Speaker:        "self",
		OriginalText:   u.Text,
		TranslatedText: result.TranslatedText,
		SourceLanguage: t.participant.Language,
		TargetLanguage: t.partner.Language,
		Confidence:     u.Confidence,
		Emotion:        emotionSummary,
		SequenceNumber: seq,
	})
	_ = t.partner.Send(&transport.LiveTranslation{
		Type:           transport.TypeLiveTranslation,
		Speaker:        "partner",
		OriginalText:   u.Text,
		TranslatedText: result.TranslatedText,
		SourceLanguage: t.participant.Language,
		TargetLanguage: t.partner.Language,
		Confidence:     u.Confidence,
		Emotion:        emotionSummary,
		SequenceNumber: seq,
	})

	chunks, err := o.ttsClient.Synthesize(t.ctx, t.partner.VoiceID, result.TranslatedText, t.partner.Language, toTTSSettings(profile.VoiceSettings), agglutinative, true)
	if err != nil {
		o.logger.Warn("synthesis failed", zap.String("participant", t.participant.ID.String()), zap.Error(err))
		t.sess.Stats.IncError()
		_ = t.participant.Send(&transport.PipelineError{Type: transport.TypePipelineError, Stage: "tts", Message: err.Error()})
		return
	}

	for chunk := range chunks {
		_ = t.partner.SendBinary(chunk.Data)
	}

	total := time.Since(start)
	t.sess.Stats.RecordLatency(total.Milliseconds())
	_ = t.participant.Send(&transport.LatencyStats{
		Type:            transport.TypeLatencyStats,
		TranscriptionMs: start.Sub(u.Timestamp).Milliseconds(),
		TranslationMs:   translationDone.Sub(start).Milliseconds(),
		TotalMs:         total.Milliseconds(),
	})
}
