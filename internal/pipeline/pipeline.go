// Package pipeline implements the per-participant streaming orchestrator
// (spec §4.3): it wires one participant's inbound audio into the ASR
// client, feeds transcripts through the utterance gate, and on each fired
// utterance runs translation, emotion analysis, and speech synthesis,
// delivering the results to both sides of the session. It keeps the
// teacher's Runner naming and "emit progress as stages advance" idiom, with
// the batch stage sequencer replaced by this always-on per-participant task.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Furkansz/voice-translation-api/internal/asr"
	"github.com/Furkansz/voice-translation-api/internal/emotion"
	"github.com/Furkansz/voice-translation-api/internal/gate"
	"github.com/Furkansz/voice-translation-api/internal/session"
	"github.com/Furkansz/voice-translation-api/internal/transport"
	"github.com/Furkansz/voice-translation-api/internal/translation"
	"github.com/Furkansz/voice-translation-api/internal/tts"
)

// pcmRingBytes bounds the rolling audio buffer handed to emotion.Analyze to
// roughly the last 5s at 16kHz/16-bit mono (spec §4.8 "last <= 5s").
const pcmRingBytes = 5 * 16000 * 2

// Runner names the orchestrator's three-method surface; it has the same
// method set as transport.Pipeline, the interface transport.Handler is
// handed. Orchestrator is the only implementation.
type Runner interface {
	Start(sess *session.Session, p, partner *session.Participant)
	Submit(participantID uuid.UUID, frame []byte, receivedAt time.Time)
	Stop(participantID uuid.UUID)
}

var _ transport.Pipeline = (*Orchestrator)(nil)

// Orchestrator owns one task per connected participant and routes audio,
// transcripts, and translations between a session's two sides.
type Orchestrator struct {
	asrClient   *asr.Client
	mt          *translation.Client
	ttsClient   *tts.Client
	emotion     *emotion.Analyzer
	languages   map[string]*gate.LanguageProfile
	thresholds  gate.Thresholds
	logger      *zap.Logger
	clock       func() time.Time

	mu    sync.Mutex
	tasks map[uuid.UUID]*task
}

// Deps bundles the constructed per-operation clients an Orchestrator is
// wired against.
type Deps struct {
	ASR        *asr.Client
	MT         *translation.Client
	TTS        *tts.Client
	Emotion    *emotion.Analyzer
	Languages  map[string]*gate.LanguageProfile
	Thresholds gate.Thresholds
	Logger     *zap.Logger
}

func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	languages := deps.Languages
	if languages == nil {
		languages = gate.DefaultProfiles()
	}
	thresholds := deps.Thresholds
	if thresholds == (gate.Thresholds{}) {
		thresholds = gate.DefaultThresholds()
	}
	return &Orchestrator{
		asrClient:  deps.ASR,
		mt:         deps.MT,
		ttsClient:  deps.TTS,
		emotion:    deps.Emotion,
		languages:  languages,
		thresholds: thresholds,
		logger:     logger,
		clock:      time.Now,
		tasks:      make(map[uuid.UUID]*task),
	}
}

// utteranceQueueDepth bounds the fan-in channel each task's worker drains.
// A participant firing utterances faster than they can be translated and
// synthesized backs up here rather than spawning unordered goroutines.
const utteranceQueueDepth = 8

// task is one participant's live pipeline state: its ASR handle, its gate,
// and the rolling audio buffer fed to emotion analysis.
type task struct {
	mu sync.Mutex

	participant *session.Participant
	partner     *session.Participant
	sess        *session.Session

	gate      *gate.Gate
	asrHandle uuid.UUID
	pcm       []byte
	seq       int64

	// utterances is the per-participant serialization point (spec §4.3/§5):
	// the gate can fire from either Consider's caller goroutine or its own
	// timer goroutine, so fired utterances are funneled through this channel
	// and drained by a single worker goroutine, guaranteeing that
	// live-translation/synthesized-audio for an earlier utterance is always
	// fully sent before a later one's work even starts.
	utterances chan gate.Utterance

	ctx    context.Context
	cancel context.CancelFunc
}

func (t *task) appendPCM(frame []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pcm = append(t.pcm, frame...)
	if len(t.pcm) > pcmRingBytes {
		t.pcm = t.pcm[len(t.pcm)-pcmRingBytes:]
	}
}

func (t *task) pcmSnapshot() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.pcm))
	copy(out, t.pcm)
	return out
}

func (t *task) nextSeq() int64 {
	return atomic.AddInt64(&t.seq, 1)
}

// Start builds pipeline tasks for both of a newly-Active session's
// participants, each with its own ASR stream and gate. Called at most once
// per session, from the transport handler's announce step.
func (o *Orchestrator) Start(sess *session.Session, p, partner *session.Participant) {
	o.startOne(sess, p, partner)
	o.startOne(sess, partner, p)
}

func (o *Orchestrator) startOne(sess *session.Session, self, partner *session.Participant) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		participant: self,
		partner:     partner,
		sess:        sess,
		utterances:  make(chan gate.Utterance, utteranceQueueDepth),
		ctx:         ctx,
		cancel:      cancel,
	}
	t.gate = gate.New(self.ID, self.Language, self.Role, o.languageProfile(self.Language),
		gate.NewConversationProfile(o.thresholds.ConversationalPause), o.thresholds,
		func(u gate.Utterance) { o.enqueueUtterance(t, u) })
	go o.runWorker(t)

	handleID, err := o.asrClient.Open(ctx, self.Language, asr.Callbacks{
		OnPartial: func(r asr.Result) { o.handleTranscript(t, r) },
		OnFinal:   func(r asr.Result) { o.handleTranscript(t, r) },
		OnError: func(err error) {
			_ = self.Send(&transport.PipelineError{Type: transport.TypePipelineError, Stage: "asr", Message: err.Error()})
		},
	})
	if err != nil {
		o.logger.Warn("asr open failed", zap.String("participant", self.ID.String()), zap.Error(err))
		_ = self.Send(&transport.PipelineError{Type: transport.TypePipelineError, Stage: "asr", Message: err.Error()})
	}
	t.asrHandle = handleID

	o.mu.Lock()
	o.tasks[self.ID] = t
	o.mu.Unlock()
}

func (o *Orchestrator) languageProfile(language string) *gate.LanguageProfile {
	if p, ok := o.languages[language]; ok {
		return p
	}
	return o.languages["en"]
}

// Submit forwards one inbound audio frame to participantID's ASR handle and
// folds it into the rolling buffer emotion analysis reads from.
func (o *Orchestrator) Submit(participantID uuid.UUID, frame []byte, receivedAt time.Time) {
	t := o.get(participantID)
	if t == nil {
		return
	}
	t.appendPCM(frame)
	if t.asrHandle == uuid.Nil {
		return
	}
	if err := o.asrClient.SubmitFrame(t.ctx, t.asrHandle, frame); err != nil {
		_ = t.participant.Send(&transport.PipelineError{Type: transport.TypePipelineError, Stage: "asr", Message: err.Error()})
	}
}

// Stop tears down participantID's task: flushes its gate (handing any
// pending candidate to the task's worker queue), closes its ASR handle, and
// cancels the task's context. Queued or in-flight utterance work that has
// not finished when the context is cancelled is abandoned.
func (o *Orchestrator) Stop(participantID uuid.UUID) {
	o.mu.Lock()
	t, ok := o.tasks[participantID]
	if ok {
		delete(o.tasks, participantID)
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	t.gate.Flush()
	if t.asrHandle != uuid.Nil {
		_ = o.asrClient.Close(t.asrHandle)
	}
	t.cancel()
}

func (o *Orchestrator) get(id uuid.UUID) *task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tasks[id]
}

// enqueueUtterance hands a fired utterance to t's worker goroutine. It never
// blocks: if the queue is full, this newly fired utterance is logged and
// dropped (the queued ones are kept) rather than stalling the gate's own
// goroutine.
func (o *Orchestrator) enqueueUtterance(t *task, u gate.Utterance) {
	select {
	case t.utterances <- u:
	case <-t.ctx.Done():
	default:
		o.logger.Warn("utterance queue full, dropping oldest pending work is not possible; dropping this one",
			zap.String("participant", t.participant.ID.String()))
	}
}

// runWorker drains t.utterances strictly in arrival order, one at a time,
// so an earlier utterance's live-translation and synthesized-audio always
// finish sending before the next utterance's work begins.
func (o *Orchestrator) runWorker(t *task) {
	for {
		select {
		case <-t.ctx.Done():
			return
		case u := <-t.utterances:
			o.runUtterance(t, u)
		}
	}
}

// finalConfidenceFloor is the confidence a final transcript is floored to
// before reaching the gate (spec §4.3: "call Gate.consider(final,
// confidenceFloor=0.8)") — a provider's own confidence on a final result is
// never trusted below this, since "final" already implies the provider's
// own best pass.
const finalConfidenceFloor = 0.8

func (o *Orchestrator) handleTranscript(t *task, r asr.Result) {
	_ = t.participant.Send(&transport.LiveTranscription{
		Type:       transport.TypeLiveTranscription,
		Text:       r.Text,
		IsPartial:  !r.IsFinal,
		Confidence: r.Confidence,
		Language:   t.participant.Language,
	})
	confidence := r.Confidence
	if r.IsFinal && confidence < finalConfidenceFloor {
		confidence = finalConfidenceFloor
	}
	t.gate.Consider(r.Text, confidence, r.IsFinal)
}
