package speech

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m-mizutani/kaze/pkg/adapter"
	"github.com/m-mizutani/kaze/pkg/model"
	"github.com/m-mizutani/kaze/pkg/utils/logging"
)

type NoticeLevel int

const (
	// NoticeBlocking must be acknowledged by the user
	NoticeBlocking NoticeLevel = iota + 1
	// NoticeTransient may disappear on its own
	NoticeTransient
)

// Notice is a user-facing message raised by a failed recognition session
type Notice struct {
	Level   NoticeLevel
	Message string
}

const (
	PermissionDeniedNotice = "Microphone access is not permitted. Please check your system settings."
	recognitionErrorPrefix = "Speech recognition error: "
)

// InputState is a point-in-time view of the input controller
type InputState struct {
	Supported  bool   `json:"supported"`
	Listening  bool   `json:"listening"`
	Transcript string `json:"transcript"`
}

// Input wraps a recognizer into an idle/listening state machine holding the
// transcript of the current session. A nil recognizer means speech input is
// unsupported.
type Input struct {
	recognizer adapter.Recognizer
	logger     *slog.Logger
	language   string

	mu         sync.Mutex
	listening  bool
	transcript string
	segments   []model.RecognitionSegment
	latest     string
	session    uint64
	cancel     context.CancelFunc
	idle       chan struct{}
	listeners  []func()
	noticeFunc []func(Notice)
}

type InputOption func(*Input)

func WithInputLanguage(tag string) InputOption {
	return func(x *Input) {
		if tag != "" {
			x.language = tag
		}
	}
}

func WithInputLogger(logger *slog.Logger) InputOption {
	return func(x *Input) {
		x.logger = logger
	}
}

func NewInput(recognizer adapter.Recognizer, opts ...InputOption) *Input {
	idle := make(chan struct{})
	close(idle)

	x := &Input{
		recognizer: recognizer,
		logger:     logging.Default(),
		language:   DefaultLanguage,
		idle:       idle,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Subscribe registers f to be called after listening state or transcript
// changes. f runs without the controller lock held.
func (x *Input) Subscribe(f func()) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.listeners = append(x.listeners, f)
}

// OnNotice registers f to receive notices of failed sessions
func (x *Input) OnNotice(f func(Notice)) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.noticeFunc = append(x.noticeFunc, f)
}

func (x *Input) notify() {
	x.mu.Lock()
	listeners := make([]func(), len(x.listeners))
	copy(listeners, x.listeners)
	x.mu.Unlock()

	for _, f := range listeners {
		f()
	}
}

func (x *Input) raise(n Notice) {
	x.mu.Lock()
	funcs := make([]func(Notice), len(x.noticeFunc))
	copy(funcs, x.noticeFunc)
	x.mu.Unlock()

	for _, f := range funcs {
		f(n)
	}
}

// StartListening clears the transcript and begins one recognition session.
// It returns false without doing anything when input is unsupported or a
// session is already running. The session is not bound to ctx cancellation;
// it ends by itself or through StopListening.
func (x *Input) StartListening(ctx context.Context) bool {
	if x.recognizer == nil {
		return false
	}

	x.mu.Lock()
	if x.listening {
		x.mu.Unlock()
		return false
	}
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	x.listening = true
	x.transcript = ""
	x.segments = nil
	x.latest = ""
	x.session++
	x.cancel = cancel
	x.idle = make(chan struct{})
	session := x.session
	x.mu.Unlock()

	x.notify()

	go x.run(sctx, session)
	return true
}

func (x *Input) run(ctx context.Context, session uint64) {
	cfg := model.RecognitionConfig{
		Language:       x.language,
		InterimResults: true,
		Continuous:     false,
	}

	err := x.recognizer.Recognize(ctx, cfg, func(seg model.RecognitionSegment) {
		x.update(session, seg)
	})

	// notices are raised before Idle is closed
	x.handleError(err)

	x.mu.Lock()
	if session == x.session && x.listening {
		x.listening = false
		if x.cancel != nil {
			x.cancel()
			x.cancel = nil
		}
		close(x.idle)
	}
	x.mu.Unlock()

	x.notify()
}

func (x *Input) handleError(err error) {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return

	case errors.Is(err, model.ErrNoSpeech):
		x.logger.Debug("no speech detected")

	case errors.Is(err, model.ErrSpeechPermissionDenied):
		x.logger.Warn("microphone permission denied", "error", err)
		x.raise(Notice{Level: NoticeBlocking, Message: PermissionDeniedNotice})

	default:
		x.logger.Error("speech recognition failed", "error", err)
		x.raise(Notice{Level: NoticeTransient, Message: recognitionErrorPrefix + model.UserMessage(err)})
	}
}

func (x *Input) update(session uint64, seg model.RecognitionSegment) {
	x.mu.Lock()
	if session != x.session || !x.listening {
		x.mu.Unlock()
		return
	}

	replaced := false
	for i := range x.segments {
		if x.segments[i].Index == seg.Index {
			x.segments[i] = seg
			replaced = true
			break
		}
	}
	if !replaced {
		x.segments = append(x.segments, seg)
		sort.SliceStable(x.segments, func(i, j int) bool {
			return x.segments[i].Index < x.segments[j].Index
		})
	}
	if !seg.Final {
		x.latest = seg.Text
	}

	x.transcript = x.composeLocked()
	x.mu.Unlock()

	x.notify()
}

// composeLocked joins final segments in index order, or falls back to the
// latest interim hypothesis when nothing is final yet
func (x *Input) composeLocked() string {
	var b strings.Builder
	for _, s := range x.segments {
		if s.Final {
			b.WriteString(s.Text)
		}
	}
	if b.Len() > 0 {
		return b.String()
	}
	return x.latest
}

// StopListening ends the running session. Listening turns false once the
// recognizer has delivered its last result.
func (x *Input) StopListening() {
	x.mu.Lock()
	cancel := x.cancel
	listening := x.listening
	x.mu.Unlock()

	if listening && cancel != nil {
		cancel()
	}
}

// ResetTranscript clears the transcript without touching the session
func (x *Input) ResetTranscript() {
	x.mu.Lock()
	changed := x.transcript != ""
	x.transcript = ""
	x.segments = nil
	x.latest = ""
	x.mu.Unlock()

	if changed {
		x.notify()
	}
}

func (x *Input) Transcript() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.transcript
}

func (x *Input) IsListening() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.listening
}

func (x *Input) IsSupported() bool { return x.recognizer != nil }

// Idle returns a channel closed when no session is running
func (x *Input) Idle() <-chan struct{} {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idle
}

func (x *Input) State() InputState {
	x.mu.Lock()
	defer x.mu.Unlock()
	return InputState{
		Supported:  x.recognizer != nil,
		Listening:  x.listening,
		Transcript: x.transcript,
	}
}
