package conversation

import (
	"github.com/m-mizutani/kaze/pkg/model"
	"github.com/m-mizutani/kaze/pkg/service/speech"
)

// State is a point-in-time copy of the session and its speech controllers
type State struct {
	SessionID           string                 `json:"session_id"`
	Messages            []*model.Message       `json:"messages"`
	PendingInput        string                 `json:"pending_input"`
	Loading             bool                   `json:"loading"`
	VoiceEnabled        bool                   `json:"voice_enabled"`
	LatestAssistantID   model.MessageID        `json:"latest_assistant_id,omitempty"`
	SpokenLatest        bool                   `json:"spoken_latest"`
	InitializationError string                 `json:"initialization_error,omitempty"`
	Weather             *model.WeatherSnapshot `json:"weather,omitempty"`

	Output speech.OutputState `json:"output"`
	Input  speech.InputState  `json:"input"`
}

// State returns a copy of the current state. Messages are shared; they are
// never modified after creation.
func (c *Conversation) State() *State {
	output := c.output.State()
	input := c.input.State()

	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]*model.Message, len(c.messages))
	copy(messages, c.messages)

	var initErr string
	if c.initErr != nil {
		initErr = model.UserMessage(c.initErr)
	}

	return &State{
		SessionID:           c.id,
		Messages:            messages,
		PendingInput:        c.pending,
		Loading:             c.loading,
		VoiceEnabled:        c.voiceEnabled,
		LatestAssistantID:   c.latestID,
		SpokenLatest:        c.spoken,
		InitializationError: initErr,
		Weather:             c.snapshot,
		Output:              output,
		Input:               input,
	}
}
