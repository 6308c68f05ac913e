package advice

import (
	"bytes"
	"context"
	_ "embed"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kaze/pkg/adapter"
	"github.com/m-mizutani/kaze/pkg/model"
	"github.com/m-mizutani/kaze/pkg/utils/logging"
	"google.golang.org/genai"
)

const (
	// InitialFailureText replaces the welcome advice when generation fails
	InitialFailureText = "Sorry, an error occurred while generating wellness advice. Please try again."
	// ReplyFailureText replaces a reply when generation fails
	ReplyFailureText = "Sorry, an error occurred while generating response. Please try again."

	fallbackModel = "gemini-2.5-flash"

	// HistoryLimit is the number of prior messages passed as context
	HistoryLimit = 4

	noData = "No data"
)

var defaultModelPreference = []string{
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
	"gemini-2.0-flash",
	"gemini-1.5-flash-latest",
	"gemini-1.5-flash",
	"gemini-1.5-pro-latest",
	"gemini-1.5-pro",
}

//go:embed prompt/initial.md
var initialPromptRaw string

//go:embed prompt/reply.md
var replyPromptRaw string

//go:embed prompt/weather.md
var weatherPromptRaw string

var (
	initialPromptTmpl = template.Must(template.New("initial").Parse(initialPromptRaw))
	replyPromptTmpl   = template.Must(template.New("reply").Parse(replyPromptRaw))
	weatherPromptTmpl = template.Must(template.New("weather").Parse(weatherPromptRaw))
)

// Generator produces wellness advice from weather conditions. Its operations
// never fail because of the backend: any generation error is logged and
// replaced by a fixed apology text.
//
// The model id is resolved on first use and cached on the instance for its
// whole lifetime; it is never invalidated.
type Generator struct {
	gemini     adapter.Gemini
	preference []string
	loc        *time.Location

	mu      sync.Mutex
	modelID string
}

type Option func(*Generator)

// WithModel pins the model id and skips discovery
func WithModel(id string) Option {
	return func(g *Generator) {
		g.modelID = strings.TrimPrefix(id, "models/")
	}
}

// WithModelPreference replaces the ordered list of preferred models
func WithModelPreference(ids ...string) Option {
	return func(g *Generator) {
		g.preference = ids
	}
}

// WithTimeLocation sets the time zone of sunrise and sunset in prompts
func WithTimeLocation(loc *time.Location) Option {
	return func(g *Generator) {
		g.loc = loc
	}
}

func New(gemini adapter.Gemini, opts ...Option) *Generator {
	g := &Generator{
		gemini:     gemini,
		preference: defaultModelPreference,
		loc:        time.Local,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Initial generates the welcome message for a weather snapshot. An error is
// returned only when ctx is done.
func (g *Generator) Initial(ctx context.Context, snapshot *model.WeatherSnapshot) (string, error) {
	var buf bytes.Buffer
	if err := initialPromptTmpl.Execute(&buf, map[string]any{
		"Weather":     g.formatWeather(snapshot),
		"UserMessage": "",
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute initial prompt template")
	}

	return g.generate(ctx, buf.String(), InitialFailureText)
}

// Reply answers userText with the weather and up to HistoryLimit most recent
// messages of history as context. An error is returned only when ctx is done.
func (g *Generator) Reply(ctx context.Context, userText string, snapshot *model.WeatherSnapshot, history []*model.Message) (string, error) {
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}

	var buf bytes.Buffer
	if err := replyPromptTmpl.Execute(&buf, map[string]any{
		"Weather":  g.formatWeather(snapshot),
		"History":  history,
		"UserText": userText,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute reply prompt template")
	}

	return g.generate(ctx, buf.String(), ReplyFailureText)
}

func (g *Generator) generate(ctx context.Context, prompt, failureText string) (string, error) {
	logger := logging.From(ctx)
	modelID := g.resolveModel(ctx)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := g.gemini.GenerateContent(ctx, modelID, contents, nil)
	if ctx.Err() != nil {
		return "", goerr.Wrap(ctx.Err(), "generation canceled")
	}
	if err != nil {
		logger.Error("failed to generate advice", "error", err, "model", modelID)
		return failureText, nil
	}

	var text string
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	if text == "" {
		logger.Warn("empty response from model", "model", modelID)
		return failureText, nil
	}

	return text, nil
}

// resolveModel returns the cached model id, discovering it on first use
func (g *Generator) resolveModel(ctx context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.modelID != "" {
		return g.modelID
	}

	logger := logging.From(ctx)
	models, err := g.gemini.ListModels(ctx)
	if err != nil {
		logger.Warn("model discovery failed, using fallback", "error", err, "model", fallbackModel)
		g.modelID = fallbackModel
		return g.modelID
	}

	g.modelID = selectModel(models, g.preference)
	logger.Debug("resolved generative model", "model", g.modelID)
	return g.modelID
}

func selectModel(models []*genai.Model, preference []string) string {
	var supported []*genai.Model
	for _, m := range models {
		if m == nil {
			continue
		}
		for _, action := range m.SupportedActions {
			if action == "generateContent" {
				supported = append(supported, m)
				break
			}
		}
	}

	for _, pref := range preference {
		for _, m := range supported {
			if strings.HasSuffix(m.Name, pref) || strings.Contains(strings.ToLower(m.DisplayName), pref) {
				return modelIDOf(m.Name)
			}
		}
	}

	if len(supported) > 0 {
		return modelIDOf(supported[0].Name)
	}
	return fallbackModel
}

func modelIDOf(name string) string {
	if i := strings.LastIndex(name, "models/"); i >= 0 {
		return name[i+len("models/"):]
	}
	return name
}

func (g *Generator) formatWeather(s *model.WeatherSnapshot) string {
	if s == nil {
		return "Weather information not available"
	}

	visibility := noData
	if s.Visibility != nil && *s.Visibility > 0 {
		visibility = formatFloat(float64(*s.Visibility)/1000) + "km"
	}
	uvIndex := noData
	if s.UVIndex != nil {
		uvIndex = formatFloat(*s.UVIndex)
	}

	var buf bytes.Buffer
	if err := weatherPromptTmpl.Execute(&buf, map[string]any{
		"Location":    s.PlaceName,
		"Temperature": formatFloat(s.Temperature),
		"FeelsLike":   formatFloat(s.FeelsLike),
		"Description": s.Description,
		"Category":    s.Category,
		"Humidity":    s.Humidity,
		"Pressure":    s.Pressure,
		"WindSpeed":   formatFloat(s.WindSpeed),
		"Visibility":  visibility,
		"UVIndex":     uvIndex,
		"Sunrise":     g.formatClock(s.Sunrise),
		"Sunset":      g.formatClock(s.Sunset),
	}); err != nil {
		return "Weather information not available"
	}
	return strings.TrimSpace(buf.String())
}

func (g *Generator) formatClock(t time.Time) string {
	if t.IsZero() {
		return noData
	}
	return t.In(g.loc).Format("3:04:05 PM")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
