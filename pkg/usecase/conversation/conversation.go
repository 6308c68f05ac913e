// Package conversation sequences location, weather, advice generation and
// speech into a chat session.
//
// All session state lives behind one mutex. External calls are made with the
// mutex released, and state is read again after every call returns instead of
// reusing values captured before it. Speech requests are always handed to the
// scheduler, so the speech controllers are never entered with the session
// mutex held.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kaze/pkg/adapter"
	"github.com/m-mizutani/kaze/pkg/model"
	"github.com/m-mizutani/kaze/pkg/service/speech"
	"github.com/m-mizutani/kaze/pkg/utils/clock"
	"github.com/m-mizutani/kaze/pkg/utils/logging"
)

const (
	// HistoryLimit is the number of messages before a turn passed to the advisor
	HistoryLimit = 4

	InitialSpeakDelay = 500 * time.Millisecond
	ReplySpeakDelay   = 100 * time.Millisecond
	ToggleSpeakDelay  = 200 * time.Millisecond
	AutoSpeakDelay    = 200 * time.Millisecond

	// ReplyErrorText is appended when the advisor fails during a turn
	ReplyErrorText = "Sorry, an error occurred while generating a response. Please try again."
	// VoiceOnText is spoken when voice output is turned on with nothing to read
	VoiceOnText = "Voice output is now on."

	initFailureTemplate = "Sorry. %s Please set your location manually or check your location settings."
)

var (
	ErrEmptyMessage       = goerr.New("message is empty")
	ErrTurnInProgress     = goerr.New("a response is being generated")
	ErrAlreadyInitialized = goerr.New("conversation is already initialized")
)

// Advisor produces assistant text. Errors are expected only when ctx is done;
// backend failures are absorbed into the returned text.
type Advisor interface {
	Initial(ctx context.Context, snapshot *model.WeatherSnapshot) (string, error)
	Reply(ctx context.Context, userText string, snapshot *model.WeatherSnapshot, history []*model.Message) (string, error)
}

// VoiceOutput is the speech output controller surface
type VoiceOutput interface {
	IsSupported() bool
	IsReady() bool
	IsSpeaking() bool
	Speak(text string)
	Stop()
	Subscribe(f func())
	State() speech.OutputState
}

// VoiceInput is the speech input controller surface
type VoiceInput interface {
	IsSupported() bool
	Transcript() string
	StartListening(ctx context.Context) bool
	StopListening()
	ResetTranscript()
	Subscribe(f func())
	State() speech.InputState
}

// Conversation is one chat session
type Conversation struct {
	id        string
	locator   adapter.Locator
	weather   adapter.Weather
	advisor   Advisor
	output    VoiceOutput
	input     VoiceInput
	scheduler clock.Scheduler
	logger    *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	initialized  bool
	messages     []*model.Message
	lastID       model.MessageID
	pending      string
	loading      bool
	voiceEnabled bool
	latestID     model.MessageID
	spoken       bool
	initErr      error
	snapshot     *model.WeatherSnapshot
}

type Option func(*Conversation)

func WithScheduler(s clock.Scheduler) Option {
	return func(c *Conversation) {
		c.scheduler = s
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Conversation) {
		c.logger = logger
	}
}

// WithVoiceEnabled sets whether voice output starts enabled. Default is true.
func WithVoiceEnabled(enabled bool) Option {
	return func(c *Conversation) {
		c.voiceEnabled = enabled
	}
}

func WithNow(now func() time.Time) Option {
	return func(c *Conversation) {
		c.now = now
	}
}

// New creates a session and subscribes it to both speech controllers
func New(locator adapter.Locator, weather adapter.Weather, advisor Advisor, output VoiceOutput, input VoiceInput, opts ...Option) *Conversation {
	c := &Conversation{
		id:           uuid.NewString(),
		locator:      locator,
		weather:      weather,
		advisor:      advisor,
		output:       output,
		input:        input,
		scheduler:    clock.Real{},
		logger:       logging.Default(),
		now:          time.Now,
		voiceEnabled: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("session", c.id)

	output.Subscribe(c.Reconcile)
	input.Subscribe(c.syncTranscript)
	return c
}

// ID returns the session id
func (c *Conversation) ID() string { return c.id }

func (c *Conversation) appendLocked(sender model.Sender, text string) *model.Message {
	c.lastID++
	msg := &model.Message{
		ID:        c.lastID,
		Text:      text,
		Sender:    sender,
		Timestamp: c.now(),
	}
	c.messages = append(c.messages, msg)
	return msg
}

// replyLocked appends an assistant message that becomes the latest assistant
// message. The spoken guard is reset in the same step.
func (c *Conversation) replyLocked(text string) *model.Message {
	msg := c.appendLocked(model.SenderAssistant, text)
	c.latestID = msg.ID
	c.spoken = false
	return msg
}

// latestLocked resolves the latest assistant message through the log
func (c *Conversation) latestLocked() *model.Message {
	if c.latestID == 0 {
		return nil
	}
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == c.latestID {
			return c.messages[i]
		}
	}
	return nil
}

func (c *Conversation) outputAvailable() bool {
	return c.output.IsSupported() && c.output.IsReady()
}

// speakLater hands text to the output controller after delay, unless voice
// output has been turned off in the meantime.
func (c *Conversation) speakLater(delay time.Duration, text string) {
	c.scheduler.AfterFunc(delay, func() {
		c.mu.Lock()
		enabled := c.voiceEnabled
		c.mu.Unlock()

		if enabled {
			c.output.Speak(text)
		}
	})
}

// Initialize resolves the location, fetches the weather and appends the
// welcome advice. A failure at any step is reported as a single apology
// message. It runs once per session and is rejected with ErrTurnInProgress
// while a turn is outstanding.
func (c *Conversation) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	if c.loading {
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	c.initialized = true
	c.loading = true
	c.mu.Unlock()

	text, err := c.fetchInitialAdvice(ctx)

	c.mu.Lock()
	if err != nil {
		c.initErr = err
		// the apology is not tracked as the latest assistant message
		c.appendLocked(model.SenderAssistant, fmt.Sprintf(initFailureTemplate, model.UserMessage(err)))
		c.loading = false
		c.mu.Unlock()

		c.logger.Warn("initialization failed", "error", err)
		return nil
	}

	msg := c.replyLocked(text)
	c.loading = false
	speak := c.voiceEnabled && c.outputAvailable()
	if speak {
		c.spoken = true
	}
	c.mu.Unlock()

	if speak {
		c.speakLater(InitialSpeakDelay, msg.Text)
	}
	c.Reconcile()
	return nil
}

func (c *Conversation) fetchInitialAdvice(ctx context.Context) (string, error) {
	coords, err := c.locator.Locate(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to get location")
	}

	snapshot, err := c.weather.CurrentConditions(ctx, coords.Latitude, coords.Longitude)
	if err != nil {
		return "", goerr.Wrap(err, "failed to get weather",
			goerr.V("latitude", coords.Latitude),
			goerr.V("longitude", coords.Longitude))
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()

	text, err := c.advisor.Initial(ctx, snapshot)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate initial advice")
	}
	return text, nil
}

// Send runs one turn. It returns ErrEmptyMessage for blank text and
// ErrTurnInProgress while another turn or the initialization is running.
// An advisor failure is not returned; it becomes an assistant error message.
func (c *Conversation) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrTurnInProgress
	}

	start := max(len(c.messages)-HistoryLimit, 0)
	history := make([]*model.Message, len(c.messages)-start)
	copy(history, c.messages[start:])

	c.appendLocked(model.SenderUser, text)
	c.pending = ""
	c.loading = true
	snapshot := c.snapshot
	c.mu.Unlock()

	c.input.ResetTranscript()

	reply, err := c.advisor.Reply(ctx, text, snapshot, history)
	if err != nil {
		c.logger.Error("failed to generate reply", "error", err)
		reply = ReplyErrorText
	}

	c.mu.Lock()
	msg := c.replyLocked(reply)
	c.loading = false
	speak := c.voiceEnabled && c.outputAvailable()
	if speak {
		c.spoken = true
	}
	c.mu.Unlock()

	if speak {
		c.speakLater(ReplySpeakDelay, msg.Text)
	}
	c.Reconcile()
	return nil
}

// SendPending sends the pending input text
func (c *Conversation) SendPending(ctx context.Context) error {
	c.mu.Lock()
	text := c.pending
	c.mu.Unlock()

	return c.Send(ctx, text)
}

// SetPendingInput replaces the pending input text
func (c *Conversation) SetPendingInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = text
}

// PendingInput returns the pending input text
func (c *Conversation) PendingInput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Conversation) syncTranscript() {
	transcript := c.input.Transcript()
	if transcript == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = transcript
}

// ToggleVoice flips voice output and returns the new setting. Playback in
// progress is stopped. Turning voice on reads the latest assistant message
// again, or a short notice when there is none.
func (c *Conversation) ToggleVoice() bool {
	c.mu.Lock()
	c.voiceEnabled = !c.voiceEnabled
	enabled := c.voiceEnabled
	c.mu.Unlock()

	// disabling also drops an utterance still waiting to start
	if !enabled || c.output.IsSpeaking() {
		c.output.Stop()
	}

	if enabled {
		c.mu.Lock()
		var text string
		if c.voiceEnabled && c.outputAvailable() {
			if latest := c.latestLocked(); latest != nil {
				text = latest.Text
				c.spoken = true
			} else {
				text = VoiceOnText
			}
		}
		c.mu.Unlock()

		if text != "" {
			c.speakLater(ToggleSpeakDelay, text)
		}
	}

	c.logger.Debug("voice output toggled", "enabled", enabled)
	c.Reconcile()
	return enabled
}

// Listen stops playback and starts a listening session. It returns false if
// speech input is unsupported or already listening.
func (c *Conversation) Listen(ctx context.Context) bool {
	if !c.input.IsSupported() {
		return false
	}
	if c.output.IsSpeaking() {
		c.output.Stop()
	}
	return c.input.StartListening(ctx)
}

// StopListening ends the listening session
func (c *Conversation) StopListening() {
	c.input.StopListening()
}

// StopSpeaking cancels playback
func (c *Conversation) StopSpeaking() {
	c.output.Stop()
}

// Reconcile speaks the latest assistant message if it has not been spoken
// yet and voice output is enabled and idle. It is called after every change
// of the session or of the output controller.
func (c *Conversation) Reconcile() {
	c.mu.Lock()
	var text string
	if c.reconcileLocked() {
		text = c.latestLocked().Text
		c.spoken = true
	}
	c.mu.Unlock()

	if text != "" {
		c.speakLater(AutoSpeakDelay, text)
	}
}

func (c *Conversation) reconcileLocked() bool {
	return c.voiceEnabled &&
		!c.spoken &&
		c.latestLocked() != nil &&
		c.outputAvailable() &&
		!c.output.IsSpeaking()
}

// LatestAssistant returns the latest speakable assistant message, or nil
func (c *Conversation) LatestAssistant() *model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latestLocked()
}

// Weather returns the snapshot fetched at initialization, or nil
func (c *Conversation) Weather() *model.WeatherSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Messages returns the message log
func (c *Conversation) Messages() []*model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := make([]*model.Message, len(c.messages))
	copy(messages, c.messages)
	return messages
}

func (c *Conversation) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}
