package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/kaze/pkg/adapter"
	"github.com/m-mizutani/kaze/pkg/model"
	"github.com/m-mizutani/kaze/pkg/utils/clock"
	"github.com/m-mizutani/kaze/pkg/utils/logging"
)

const (
	DefaultLanguage = "en-US"
	DefaultRate     = 0.9
	DefaultPitch    = 1.0
	DefaultVolume   = 1.0

	// DefaultSettleDelay separates a cancel from the next playback
	DefaultSettleDelay = 50 * time.Millisecond
)

// DefaultPersonas are name fragments of preferred voices
var DefaultPersonas = []string{"Female", "Kyoko", "Otoya", "Samantha"}

// OutputState is a point-in-time view of the output controller
type OutputState struct {
	Supported     bool         `json:"supported"`
	Ready         bool         `json:"ready"`
	Speaking      bool         `json:"speaking"`
	SelectedVoice *model.Voice `json:"selected_voice,omitempty"`
}

// Output wraps a synthesizer into a speaking/not-speaking state machine.
// A nil synthesizer means speech output is unsupported.
//
// Every Speak cancels the utterance in flight; the newest request wins and
// nothing is queued. Each request carries a generation number, and an
// utterance whose generation is stale never starts playback nor reports
// completion.
type Output struct {
	synth     adapter.Synthesizer
	scheduler clock.Scheduler
	logger    *slog.Logger

	language string
	personas []string
	rate     float64
	pitch    float64
	volume   float64
	settle   time.Duration

	mu         sync.Mutex
	ready      bool
	speaking   bool
	voices     []*model.Voice
	selected   *model.Voice
	pinned     bool
	generation uint64
	cancel     context.CancelFunc
	listeners  []func()
}

type OutputOption func(*Output)

func WithOutputLanguage(tag string) OutputOption {
	return func(x *Output) {
		if tag != "" {
			x.language = tag
		}
	}
}

// WithPersonas replaces the name fragments used to pick a preferred voice
func WithPersonas(names ...string) OutputOption {
	return func(x *Output) {
		x.personas = names
	}
}

// WithProsody sets rate, pitch and volume of every utterance. Zero keeps the
// default for that value.
func WithProsody(rate, pitch, volume float64) OutputOption {
	return func(x *Output) {
		if rate > 0 {
			x.rate = rate
		}
		if pitch > 0 {
			x.pitch = pitch
		}
		if volume > 0 {
			x.volume = volume
		}
	}
}

func WithSettleDelay(d time.Duration) OutputOption {
	return func(x *Output) {
		x.settle = d
	}
}

func WithOutputScheduler(s clock.Scheduler) OutputOption {
	return func(x *Output) {
		x.scheduler = s
	}
}

func WithOutputLogger(logger *slog.Logger) OutputOption {
	return func(x *Output) {
		x.logger = logger
	}
}

func NewOutput(synth adapter.Synthesizer, opts ...OutputOption) *Output {
	x := &Output{
		synth:     synth,
		scheduler: clock.Real{},
		logger:    logging.Default(),
		language:  DefaultLanguage,
		personas:  DefaultPersonas,
		rate:      DefaultRate,
		pitch:     DefaultPitch,
		volume:    DefaultVolume,
		settle:    DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Subscribe registers f to be called after every state change. f runs
// without the controller lock held and may read the controller.
func (x *Output) Subscribe(f func()) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.listeners = append(x.listeners, f)
}

func (x *Output) notify() {
	x.mu.Lock()
	listeners := make([]func(), len(x.listeners))
	copy(listeners, x.listeners)
	x.mu.Unlock()

	for _, f := range listeners {
		f()
	}
}

// LoadVoices enumerates voices and recomputes the selected voice. It may be
// called again when the platform voice list grows. The controller is ready
// after the first call whatever the outcome, and stays ready.
func (x *Output) LoadVoices(ctx context.Context) {
	var voices []*model.Voice
	if x.synth != nil {
		v, err := x.synth.Voices(ctx)
		if err != nil {
			x.logger.Warn("failed to enumerate voices, using platform default", "error", err)
		}
		voices = v
	}

	x.mu.Lock()
	x.voices = voices
	if !x.pinned || !containsVoice(voices, x.selected) {
		x.selected = selectVoice(voices, x.language, x.personas)
		x.pinned = false
	}
	x.ready = true
	selected := x.selected
	x.mu.Unlock()

	if selected != nil {
		x.logger.Debug("voice selected", "name", selected.Name, "language", selected.Language, "voices", len(voices))
	} else {
		x.logger.Debug("no voice selected, using platform default", "voices", len(voices))
	}
	x.notify()
}

// SelectVoice pins a voice by name. It returns false if no enumerated voice
// has that name.
func (x *Output) SelectVoice(name string) bool {
	x.mu.Lock()
	var found *model.Voice
	for _, v := range x.voices {
		if v.Name == name {
			found = v
			break
		}
	}
	if found != nil {
		x.selected = found
		x.pinned = true
	}
	x.mu.Unlock()

	if found != nil {
		x.notify()
	}
	return found != nil
}

// Speak cancels any utterance in flight and plays text after the settle
// delay. Empty text or an unsupported platform makes it a no-op.
func (x *Output) Speak(text string) {
	if x.synth == nil || strings.TrimSpace(text) == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	x.mu.Lock()
	wasSpeaking := x.cancelLocked()
	x.cancel = cancel
	gen := x.generation
	x.mu.Unlock()

	if wasSpeaking {
		x.notify()
	}

	x.scheduler.AfterFunc(x.settle, func() {
		x.play(ctx, cancel, gen, text)
	})
}

func (x *Output) play(ctx context.Context, cancel context.CancelFunc, gen uint64, text string) {
	defer cancel()

	x.mu.Lock()
	if gen != x.generation {
		x.mu.Unlock()
		return
	}
	x.speaking = true
	u := &model.Utterance{
		Text:     text,
		Voice:    x.selected,
		Language: x.language,
		Rate:     x.rate,
		Pitch:    x.pitch,
		Volume:   x.volume,
	}
	x.mu.Unlock()
	x.notify()

	err := x.synth.Speak(ctx, u)
	if err != nil && !errors.Is(err, context.Canceled) {
		x.logger.Error("speech output failed", "error", err)
	}

	x.mu.Lock()
	current := gen == x.generation
	if current {
		x.speaking = false
		x.cancel = nil
	}
	x.mu.Unlock()

	if current {
		x.notify()
	}
}

// Stop cancels playback. Speaking is false when it returns and the canceled
// utterance neither starts nor reports completion afterwards.
func (x *Output) Stop() {
	if x.synth == nil {
		return
	}

	x.mu.Lock()
	wasSpeaking := x.cancelLocked()
	x.mu.Unlock()

	if wasSpeaking {
		x.notify()
	}
}

// cancelLocked invalidates the current generation and returns whether
// playback was in progress.
func (x *Output) cancelLocked() bool {
	x.generation++
	if x.cancel != nil {
		x.cancel()
		x.cancel = nil
	}
	was := x.speaking
	x.speaking = false
	return was
}

func (x *Output) IsSupported() bool { return x.synth != nil }

func (x *Output) IsReady() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.ready
}

func (x *Output) IsSpeaking() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.speaking
}

// Voices returns the enumerated voices
func (x *Output) Voices() []*model.Voice {
	x.mu.Lock()
	defer x.mu.Unlock()
	voices := make([]*model.Voice, len(x.voices))
	copy(voices, x.voices)
	return voices
}

// SelectedVoice returns nil when the platform default is used
func (x *Output) SelectedVoice() *model.Voice {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.selected
}

func (x *Output) State() OutputState {
	x.mu.Lock()
	defer x.mu.Unlock()
	return OutputState{
		Supported:     x.synth != nil,
		Ready:         x.ready,
		Speaking:      x.speaking,
		SelectedVoice: x.selected,
	}
}

// selectVoice picks, among voices of the target language, the first one that
// looks like a preferred persona, then the first of that language, then the
// first voice of any language. nil means the platform default.
func selectVoice(voices []*model.Voice, language string, personas []string) *model.Voice {
	matching := voicesOfLanguage(voices, language)

	for _, v := range matching {
		if isPersona(v, personas) {
			return v
		}
	}
	if len(matching) > 0 {
		return matching[0]
	}
	if len(voices) > 0 {
		return voices[0]
	}
	return nil
}

// voicesOfLanguage returns voices with the exact tag, or when there are none,
// voices sharing its primary subtag
func voicesOfLanguage(voices []*model.Voice, language string) []*model.Voice {
	tag := normalizeTag(language)
	primary, _, _ := strings.Cut(tag, "-")

	var exact, loose []*model.Voice
	for _, v := range voices {
		vt := normalizeTag(v.Language)
		vp, _, _ := strings.Cut(vt, "-")
		switch {
		case vt == tag:
			exact = append(exact, v)
		case vp == primary:
			loose = append(loose, v)
		}
	}

	if len(exact) > 0 {
		return exact
	}
	return loose
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"))
}

func isPersona(v *model.Voice, personas []string) bool {
	if strings.EqualFold(v.Gender, "female") {
		return true
	}
	for _, p := range personas {
		if p != "" && strings.Contains(strings.ToLower(v.Name), strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func containsVoice(voices []*model.Voice, v *model.Voice) bool {
	if v == nil {
		return false
	}
	for _, c := range voices {
		if c.Name == v.Name {
			return true
		}
	}
	return false
}
