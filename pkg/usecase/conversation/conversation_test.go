package conversation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kaze/pkg/model"
	"github.com/m-mizutani/kaze/pkg/service/speech"
	"github.com/m-mizutani/kaze/pkg/usecase/conversation"
	"github.com/m-mizutani/kaze/pkg/utils/clock"
	"github.com/m-mizutani/kaze/pkg/utils/logging"
)

type mockLocator struct {
	coords *model.Coordinates
	err    error
}

func (m *mockLocator) Locate(ctx context.Context) (*model.Coordinates, error) {
	return m.coords, m.err
}

type mockWeather struct {
	snapshot *model.WeatherSnapshot
	err      error
	calls    []model.Coordinates
}

func (m *mockWeather) CurrentConditions(ctx context.Context, lat, lon float64) (*model.WeatherSnapshot, error) {
	m.calls = append(m.calls, model.Coordinates{Latitude: lat, Longitude: lon})
	return m.snapshot, m.err
}

type replyCall struct {
	text     string
	snapshot *model.WeatherSnapshot
	history  []*model.Message
}

type mockAdvisor struct {
	initialFunc func(ctx context.Context, snapshot *model.WeatherSnapshot) (string, error)
	replyFunc   func(ctx context.Context, userText string, snapshot *model.WeatherSnapshot, history []*model.Message) (string, error)

	mu           sync.Mutex
	initialCalls []*model.WeatherSnapshot
	replyCalls   []replyCall
}

func (m *mockAdvisor) Initial(ctx context.Context, snapshot *model.WeatherSnapshot) (string, error) {
	m.mu.Lock()
	m.initialCalls = append(m.initialCalls, snapshot)
	m.mu.Unlock()

	if m.initialFunc != nil {
		return m.initialFunc(ctx, snapshot)
	}
	return "initial advice", nil
}

func (m *mockAdvisor) Reply(ctx context.Context, userText string, snapshot *model.WeatherSnapshot, history []*model.Message) (string, error) {
	m.mu.Lock()
	m.replyCalls = append(m.replyCalls, replyCall{text: userText, snapshot: snapshot, history: history})
	m.mu.Unlock()

	if m.replyFunc != nil {
		return m.replyFunc(ctx, userText, snapshot, history)
	}
	return "reply to " + userText, nil
}

type mockOutput struct {
	mu        sync.Mutex
	supported bool
	ready     bool
	speaking  bool
	spoken    []string
	stops     int
	listeners []func()
}

func (m *mockOutput) IsSupported() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supported
}

func (m *mockOutput) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *mockOutput) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

func (m *mockOutput) Speak(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = append(m.spoken, text)
}

func (m *mockOutput) Stop() {
	m.mu.Lock()
	m.stops++
	m.speaking = false
	m.mu.Unlock()
	m.notify()
}

func (m *mockOutput) Subscribe(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, f)
}

func (m *mockOutput) notify() {
	m.mu.Lock()
	listeners := append([]func(){}, m.listeners...)
	m.mu.Unlock()
	for _, f := range listeners {
		f()
	}
}

func (m *mockOutput) State() speech.OutputState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return speech.OutputState{Supported: m.supported, Ready: m.ready, Speaking: m.speaking}
}

func (m *mockOutput) setReady(ready bool) {
	m.mu.Lock()
	m.ready = ready
	m.mu.Unlock()
	m.notify()
}

func (m *mockOutput) setSpeaking(speaking bool) {
	m.mu.Lock()
	m.speaking = speaking
	m.mu.Unlock()
	m.notify()
}

func (m *mockOutput) spokenTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.spoken...)
}

type mockInput struct {
	mu         sync.Mutex
	supported  bool
	listening  bool
	transcript string
	starts     int
	resets     int
	listeners  []func()
}

func (m *mockInput) IsSupported() bool { return m.supported }

func (m *mockInput) IsListening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

func (m *mockInput) Transcript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcript
}

func (m *mockInput) StartListening(ctx context.Context) bool {
	m.mu.Lock()
	if m.listening {
		m.mu.Unlock()
		return false
	}
	m.starts++
	m.listening = true
	m.transcript = ""
	m.mu.Unlock()
	m.notify()
	return true
}

func (m *mockInput) StopListening() {
	m.mu.Lock()
	m.listening = false
	m.mu.Unlock()
	m.notify()
}

func (m *mockInput) ResetTranscript() {
	m.mu.Lock()
	m.resets++
	m.transcript = ""
	m.mu.Unlock()
	m.notify()
}

func (m *mockInput) Subscribe(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, f)
}

func (m *mockInput) notify() {
	m.mu.Lock()
	listeners := append([]func(){}, m.listeners...)
	m.mu.Unlock()
	for _, f := range listeners {
		f()
	}
}

func (m *mockInput) State() speech.InputState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return speech.InputState{Supported: m.supported, Listening: m.listening, Transcript: m.transcript}
}

func (m *mockInput) setTranscript(text string) {
	m.mu.Lock()
	m.transcript = text
	m.mu.Unlock()
	m.notify()
}

type testEnv struct {
	locator *mockLocator
	weather *mockWeather
	advisor *mockAdvisor
	output  *mockOutput
	input   *mockInput
	sched   *clock.Manual
}

func newEnv() *testEnv {
	return &testEnv{
		locator: &mockLocator{coords: &model.Coordinates{Latitude: 35.0, Longitude: 139.0}},
		weather: &mockWeather{snapshot: &model.WeatherSnapshot{
			PlaceName:   "Tokyo",
			Temperature: 22,
			Description: "clear",
		}},
		advisor: &mockAdvisor{},
		output:  &mockOutput{supported: true, ready: true},
		input:   &mockInput{supported: true},
		sched:   clock.NewManual(),
	}
}

func (e *testEnv) newConversation(opts ...conversation.Option) *conversation.Conversation {
	opts = append([]conversation.Option{
		conversation.WithScheduler(e.sched),
		conversation.WithLogger(logging.Discard()),
	}, opts...)
	return conversation.New(e.locator, e.weather, e.advisor, e.output, e.input, opts...)
}

func TestInitialize(t *testing.T) {
	env := newEnv()
	env.advisor.initialFunc = func(ctx context.Context, snapshot *model.WeatherSnapshot) (string, error) {
		return "It's 22°C and clear in Tokyo...", nil
	}
	conv := env.newConversation()
	ctx := context.Background()

	gt.NoError(t, conv.Initialize(ctx))

	state := conv.State()
	gt.A(t, state.Messages).Length(1)
	msg := state.Messages[0]
	gt.V(t, msg.Text).Equal("It's 22°C and clear in Tokyo...")
	gt.V(t, msg.Sender).Equal(model.SenderAssistant)
	gt.False(t, state.Loading)
	gt.V(t, state.LatestAssistantID).Equal(msg.ID)
	gt.V(t, conv.LatestAssistant()).Equal(msg)
	gt.V(t, state.Weather.PlaceName).Equal("Tokyo")
	gt.V(t, state.InitializationError).Equal("")

	gt.V(t, env.weather.calls).Equal([]model.Coordinates{{Latitude: 35.0, Longitude: 139.0}})
	gt.A(t, env.advisor.initialCalls).Length(1)
	gt.V(t, env.advisor.initialCalls[0].PlaceName).Equal("Tokyo")

	// speech is requested once after the initial delay
	gt.True(t, state.SpokenLatest)
	gt.V(t, env.sched.Pending()).Equal([]time.Duration{conversation.InitialSpeakDelay})
	env.sched.Flush()
	gt.V(t, env.output.spokenTexts()).Equal([]string{"It's 22°C and clear in Tokyo..."})

	gt.True(t, errors.Is(conv.Initialize(ctx), conversation.ErrAlreadyInitialized))
	gt.A(t, conv.Messages()).Length(1)
}

func TestInitializeLocationFailure(t *testing.T) {
	env := newEnv()
	env.locator.err = &model.LocationError{Reason: model.LocationPermissionDenied}
	conv := env.newConversation()

	gt.NoError(t, conv.Initialize(context.Background()))

	state := conv.State()
	gt.A(t, state.Messages).Length(1)
	gt.V(t, state.Messages[0].Sender).Equal(model.SenderAssistant)
	gt.V(t, state.Messages[0].Text).Equal("Sorry. Location access is not permitted. Please set your location manually or check your location settings.")
	gt.V(t, state.InitializationError).Equal("Location access is not permitted.")
	gt.Nil(t, state.Weather)
	gt.False(t, state.Loading)

	gt.A(t, env.weather.calls).Length(0)
	gt.A(t, env.advisor.initialCalls).Length(0)

	// the apology is never spoken
	gt.Nil(t, conv.LatestAssistant())
	env.sched.Flush()
	gt.A(t, env.output.spokenTexts()).Length(0)
}

func TestInitializeWeatherFailure(t *testing.T) {
	env := newEnv()
	env.weather.err = &model.WeatherError{Reason: model.WeatherUnauthorized}
	conv := env.newConversation()

	gt.NoError(t, conv.Initialize(context.Background()))

	messages := conv.Messages()
	gt.A(t, messages).Length(1)
	gt.S(t, messages[0].Text).Contains("Failed to fetch weather information.")
	gt.S(t, messages[0].Text).Contains("Please set your location manually")
	gt.Nil(t, conv.Weather())
	gt.A(t, env.advisor.initialCalls).Length(0)
}

func TestInitializeBeforeOutputReady(t *testing.T) {
	env := newEnv()
	env.output.ready = false
	conv := env.newConversation()

	gt.NoError(t, conv.Initialize(context.Background()))
	gt.False(t, conv.State().SpokenLatest)
	gt.A(t, env.sched.Pending()).Length(0)

	// the voice list arrives later
	env.output.setReady(true)
	gt.True(t, conv.State().SpokenLatest)
	gt.V(t, env.sched.Pending()).Equal([]time.Duration{conversation.AutoSpeakDelay})
	env.sched.Flush()
	gt.V(t, env.output.spokenTexts()).Equal([]string{"initial advice"})

	// readiness confirmed again does not repeat it
	env.output.setReady(true)
	env.sched.Flush()
	gt.A(t, env.output.spokenTexts()).Length(1)
}

func TestSendAppendsPairs(t *testing.T) {
	env := newEnv()
	conv := env.newConversation()
	ctx := context.Background()

	inputs := []string{"hello", "  What should I wear?  ", "thanks"}
	for _, text := range inputs {
		gt.NoError(t, conv.Send(ctx, text))
	}

	messages := conv.Messages()
	gt.A(t, messages).Length(len(inputs) * 2)
	for i, text := range inputs {
		user := messages[i*2]
		assistant := messages[i*2+1]
		gt.V(t, user.Sender).Equal(model.SenderUser)
		gt.V(t, user.Text).Equal(text)
		gt.V(t, assistant.Sender).Equal(model.SenderAssistant)
		gt.V(t, assistant.Text).Equal("reply to " + text)
	}
	for i := 1; i < len(messages); i++ {
		gt.True(t, messages[i-1].ID < messages[i].ID)
	}
	gt.False(t, conv.IsLoading())
}

func TestSendEmpty(t *testing.T) {
	env := newEnv()
	conv := env.newConversation()

	for _, text := range []string{"", "   ", "\n\t"} {
		err := conv.Send(context.Background(), text)
		gt.True(t, errors.Is(err, conversation.ErrEmptyMessage))
	}
	gt.A(t, conv.Messages()).Length(0)
	gt.A(t, env.advisor.replyCalls).Length(0)
}

func TestSendWhileLoading(t *testing.T) {
	env := newEnv()
	entered := make(chan struct{})
	release := make(chan struct{})
	env.advisor.replyFunc = func(ctx context.Context, userText string, snapshot *model.WeatherSnapshot, history []*model.Message) (string, error) {
		close(entered)
		<-release
		return "done", nil
	}
	conv := env.newConversation()
	ctx := context.Background()

	done := make(chan error)
	go func() {
		done <- conv.Send(ctx, "first")
	}()
	<-entered

	gt.True(t, conv.IsLoading())
	err := conv.Send(ctx, "second")
	gt.True(t, errors.Is(err, conversation.ErrTurnInProgress))
	gt.A(t, conv.Messages()).Length(1)

	close(release)
	gt.NoError(t, <-done)
	gt.A(t, conv.Messages()).Length(2)
	gt.False(t, conv.IsLoading())
}

func TestSendDuringInitialization(t *testing.T) {
	env := newEnv()
	entered := make(chan struct{})
	release := make(chan struct{})
	env.advisor.initialFunc = func(ctx context.Context, snapshot *model.WeatherSnapshot) (string, error) {
		close(entered)
		<-release
		return "welcome", nil
	}
	conv := env.newConversation()
	ctx := context.Background()

	done := make(chan error)
	go func() {
		done <- conv.Initialize(ctx)
	}()
	<-entered

	gt.True(t, errors.Is(conv.Send(ctx, "hi"), conversation.ErrTurnInProgress))

	close(release)
	gt.NoError(t, <-done)
	gt.NoError(t, conv.Send(ctx, "hi"))
	gt.A(t, conv.Messages()).Length(3)
}

func TestInitializeDuringSend(t *testing.T) {
	env := newEnv()
	env.locator.err = &model.LocationError{Reason: model.LocationPermissionDenied}
	entered := make(chan struct{})
	release := make(chan struct{})
	env.advisor.replyFunc = func(ctx context.Context, userText string, snapshot *model.WeatherSnapshot, history []*model.Message) (string, error) {
		close(entered)
		<-release
		return "reply to " + userText, nil
	}
	conv := env.newConversation()
	ctx := context.Background()

	done := make(chan error)
	go func() {
		done <- conv.Send(ctx, "first")
	}()
	<-entered

	gt.True(t, errors.Is(conv.Initialize(ctx), conversation.ErrTurnInProgress))
	gt.True(t, conv.IsLoading())
	gt.True(t, errors.Is(conv.Send(ctx, "second"), conversation.ErrTurnInProgress))

	close(release)
	gt.NoError(t, <-done)

	messages := conv.Messages()
	gt.A(t, messages).Length(2)
	gt.V(t, messages[0].Text).Equal("first")
	gt.V(t, messages[1].Text).Equal("reply to first")

	// a rejected initialization can run once the turn is over
	gt.NoError(t, conv.Initialize(ctx))
	messages = conv.Messages()
	gt.A(t, messages).Length(3)
	gt.S(t, messages[2].Text).Contains("Location access is not permitted.")
	gt.A(t, env.weather.calls).Length(0)
}

func TestSendPassesRecentHistory(t *testing.T) {
	t.Run("two prior messages", func(t *testing.T) {
		env := newEnv()
		conv := env.newConversation()
		ctx := context.Background()

		gt.NoError(t, conv.Send(ctx, "hello"))
		prior := conv.Messages()
		gt.NoError(t, conv.Send(ctx, "What should I wear?"))

		gt.A(t, env.advisor.replyCalls).Length(2)
		call := env.advisor.replyCalls[1]
		gt.V(t, call.text).Equal("What should I wear?")
		gt.V(t, call.history).Equal(prior)
	})

	t.Run("only the last four of a long log", func(t *testing.T) {
		env := newEnv()
		conv := env.newConversation()
		ctx := context.Background()

		gt.NoError(t, conv.Initialize(ctx))
		for i := 0; i < 5; i++ {
			gt.NoError(t, conv.Send(ctx, "question"))
		}
		prior := conv.Messages()
		gt.A(t, prior).Length(11)

		gt.NoError(t, conv.Send(ctx, "What should I wear?"))
		call := env.advisor.replyCalls[len(env.advisor.replyCalls)-1]
		gt.V(t, call.text).Equal("What should I wear?")
		gt.V(t, call.history).Equal(prior[7:])
		gt.V(t, call.snapshot.PlaceName).Equal("Tokyo")
	})
}

func TestSendFailure(t *testing.T) {
	env := newEnv()
	env.advisor.replyFunc = func(ctx context.Context, userText string, snapshot *model.WeatherSnapshot, history []*model.Message) (string, error) {
		return "", context.DeadlineExceeded
	}
	conv := env.newConversation()

	gt.NoError(t, conv.Send(context.Background(), "hi"))

	messages := conv.Messages()
	gt.A(t, messages).Length(2)
	gt.V(t, messages[1].Text).Equal(conversation.ReplyErrorText)
	gt.V(t, conv.LatestAssistant().ID).Equal(messages[1].ID)
	gt.False(t, conv.IsLoading())

	gt.V(t, env.sched.Pending()).Equal([]time.Duration{conversation.ReplySpeakDelay})
	env.sched.Flush()
	gt.V(t, env.output.spokenTexts()).Equal([]string{conversation.ReplyErrorText})
}

func TestSpokenGuard(t *testing.T) {
	env := newEnv()
	env.output.ready = false
	conv := env.newConversation()
	ctx := context.Background()

	gt.NoError(t, conv.Send(ctx, "first"))
	gt.False(t, conv.State().SpokenLatest)

	env.output.setReady(true)
	gt.True(t, conv.State().SpokenLatest)
	env.sched.Flush()
	gt.V(t, env.output.spokenTexts()).Equal([]string{"reply to first"})

	// repeated evaluations never speak the same message again
	conv.Reconcile()
	env.output.setSpeaking(true)
	env.output.setSpeaking(false)
	env.sched.Flush()
	gt.A(t, env.output.spokenTexts()).Length(1)

	// a new message is spoken once, inline
	gt.NoError(t, conv.Send(ctx, "second"))
	gt.True(t, conv.State().SpokenLatest)
	env.sched.Flush()
	conv.Reconcile()
	env.sched.Flush()
	gt.V(t, env.output.spokenTexts()).Equal([]string{"reply to first", "reply to second"})
}

func TestReconcileWaitsForIdleOutput(t *testing.T) {
	env := newEnv()
	env.output.ready = false
	conv := env.newConversation()

	gt.NoError(t, conv.Send(context.Background(), "hi"))
	env.output.setSpeaking(true)
	env.output.setReady(true)
	gt.False(t, conv.State().SpokenLatest)
	gt.A(t, env.sched.Pending()).Length(0)

	env.output.setSpeaking(false)
	gt.True(t, conv.State().SpokenLatest)
	env.sched.Flush()
	gt.V(t, env.output.spokenTexts()).Equal([]string{"reply to hi"})
}

func TestToggleVoiceRespeaksLatest(t *testing.T) {
	env := newEnv()
	conv := env.newConversation()

	gt.NoError(t, conv.Initialize(context.Background()))
	env.sched.Flush()
	gt.A(t, env.output.spokenTexts()).Length(1)

	gt.False(t, conv.ToggleVoice())
	gt.A(t, env.sched.Pending()).Length(0)

	gt.True(t, conv.ToggleVoice())
	gt.V(t, env.sched.Pending()).Equal([]time.Duration{conversation.ToggleSpeakDelay})
	env.sched.Flush()
	gt.V(t, env.output.spokenTexts()).Equal([]string{"initial advice", "initial advice"})
}

func TestToggleVoiceOnUnspokenMessage(t *testing.T) {
	env := newEnv()
	conv := env.newConversation(conversation.WithVoiceEnabled(false))

	gt.NoError(t, conv.Initialize(context.Background()))
	gt.False(t, conv.State().SpokenLatest)

	gt.True(t, conv.ToggleVoice())
	env.sched.Flush()
	gt.V(t, env.output.spokenTexts()).Equal([]string{"initial advice"})
}

func TestToggleVoiceWithoutMessage(t *testing.T) {
	env := newEnv()
	conv := env.newConversation(conversation.WithVoiceEnabled(false))

	gt.True(t, conv.ToggleVoice())
	env.sched.Flush()
	gt.V(t, env.output.spokenTexts()).Equal([]string{conversation.VoiceOnText})
}

func TestToggleVoiceStopsPlayback(t *testing.T) {
	env := newEnv()
	conv := env.newConversation()

	gt.NoError(t, conv.Initialize(context.Background()))
	env.sched.Flush()
	env.output.setSpeaking(true)

	gt.False(t, conv.ToggleVoice())
	gt.V(t, env.output.stops).Equal(1)
	gt.False(t, env.output.IsSpeaking())
	env.sched.Flush()
	gt.A(t, env.output.spokenTexts()).Length(1)
}

func TestToggleVoiceOffStopsIdleOutput(t *testing.T) {
	env := newEnv()
	conv := env.newConversation()

	gt.NoError(t, conv.Initialize(context.Background()))
	env.sched.Flush()
	gt.False(t, env.output.IsSpeaking())

	gt.False(t, conv.ToggleVoice())
	gt.V(t, env.output.stops).Equal(1)
}

type recordingSynth struct {
	mu     sync.Mutex
	spoken []string
}

func (s *recordingSynth) Voices(ctx context.Context) ([]*model.Voice, error) {
	return []*model.Voice{{Name: "Samantha", Language: "en_US"}}, nil
}

func (s *recordingSynth) Speak(ctx context.Context, u *model.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, u.Text)
	return nil
}

func (s *recordingSynth) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.spoken...)
}

func TestToggleVoiceOffCancelsSettlingSpeech(t *testing.T) {
	env := newEnv()
	synth := &recordingSynth{}
	outputSched := clock.NewManual()
	output := speech.NewOutput(synth,
		speech.WithOutputScheduler(outputSched),
		speech.WithOutputLogger(logging.Discard()),
	)
	output.LoadVoices(context.Background())

	conv := conversation.New(env.locator, env.weather, env.advisor, output, env.input,
		conversation.WithScheduler(env.sched),
		conversation.WithLogger(logging.Discard()),
	)

	gt.NoError(t, conv.Send(context.Background(), "hi"))
	env.sched.Flush()

	// the reply has reached the output and waits out the settle delay
	gt.V(t, outputSched.Pending()).Equal([]time.Duration{speech.DefaultSettleDelay})
	gt.False(t, output.IsSpeaking())

	gt.False(t, conv.ToggleVoice())
	outputSched.Flush()
	gt.A(t, synth.texts()).Length(0)
	gt.False(t, output.IsSpeaking())
	gt.V(t, conv.State().Output.SelectedVoice.Name).Equal("Samantha")
}

func TestToggleVoiceOffDropsScheduledSpeech(t *testing.T) {
	env := newEnv()
	conv := env.newConversation()

	gt.NoError(t, conv.Send(context.Background(), "hi"))
	gt.A(t, env.sched.Pending()).Length(1)

	conv.ToggleVoice()
	env.sched.Flush()
	gt.A(t, env.output.spokenTexts()).Length(0)
}

func TestVoiceDisabledNeverSpeaks(t *testing.T) {
	env := newEnv()
	env.output.ready = false
	conv := env.newConversation(conversation.WithVoiceEnabled(false))
	ctx := context.Background()

	gt.NoError(t, conv.Initialize(ctx))
	env.output.setReady(true)
	gt.NoError(t, conv.Send(ctx, "hello"))
	env.output.setSpeaking(true)
	env.output.setSpeaking(false)
	conv.Reconcile()
	env.sched.Flush()

	gt.A(t, env.output.spokenTexts()).Length(0)
}

func TestUnsupportedOutputNeverSpeaks(t *testing.T) {
	env := newEnv()
	env.output.supported = false
	conv := env.newConversation()

	gt.NoError(t, conv.Initialize(context.Background()))
	gt.False(t, conv.ToggleVoice())
	gt.True(t, conv.ToggleVoice())
	env.sched.Flush()

	gt.A(t, env.output.spokenTexts()).Length(0)
	gt.False(t, conv.State().SpokenLatest)
}

func TestTranscriptFillsPendingInput(t *testing.T) {
	env := newEnv()
	conv := env.newConversation()
	ctx := context.Background()

	conv.SetPendingInput("typed")
	env.input.setTranscript("what should")
	gt.V(t, conv.PendingInput()).Equal("what should")
	env.input.setTranscript("What should I wear?")
	gt.V(t, conv.PendingInput()).Equal("What should I wear?")

	// an empty transcript keeps the pending text
	env.input.setTranscript("")
	gt.V(t, conv.PendingInput()).Equal("What should I wear?")

	gt.NoError(t, conv.SendPending(ctx))
	gt.V(t, conv.PendingInput()).Equal("")
	gt.V(t, env.input.resets).Equal(1)
	gt.V(t, env.advisor.replyCalls[0].text).Equal("What should I wear?")

	gt.True(t, errors.Is(conv.SendPending(ctx), conversation.ErrEmptyMessage))
}

func TestListen(t *testing.T) {
	env := newEnv()
	conv := env.newConversation()
	ctx := context.Background()

	env.output.setSpeaking(true)
	gt.True(t, conv.Listen(ctx))
	gt.V(t, env.output.stops).Equal(1)
	gt.True(t, conv.State().Input.Listening)

	gt.False(t, conv.Listen(ctx))
	gt.V(t, env.input.starts).Equal(1)

	conv.StopListening()
	gt.False(t, env.input.IsListening())
}

func TestListenUnsupported(t *testing.T) {
	env := newEnv()
	env.input.supported = false
	conv := env.newConversation()

	gt.False(t, conv.Listen(context.Background()))
	gt.V(t, env.input.starts).Equal(0)
}

func TestStateSession(t *testing.T) {
	env := newEnv()
	a := env.newConversation()
	b := newEnv().newConversation()

	gt.True(t, a.ID() != "")
	gt.True(t, a.ID() != b.ID())
	gt.V(t, a.State().SessionID).Equal(a.ID())
	gt.True(t, a.State().VoiceEnabled)
	gt.True(t, a.State().Output.Ready)
	gt.V(t, strings.TrimSpace(a.State().PendingInput)).Equal("")
}
