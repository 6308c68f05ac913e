package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kaze/pkg/adapter"
	"github.com/m-mizutani/kaze/pkg/model"
	"github.com/m-mizutani/kaze/pkg/service/speech"
	"github.com/m-mizutani/kaze/pkg/usecase/advice"
	"github.com/m-mizutani/kaze/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// LLM
	geminiAPIKey   string
	geminiProject  string
	geminiLocation string
	geminiModel    string

	// Weather
	openWeatherAPIKey string

	// Location
	latitude   string
	longitude  string
	ipLocation bool

	// Voice
	language      string
	voiceEnabled  bool
	voiceProfile  string
	ttsCommand    string
	recordCommand string
	openAIAPIKey  string

	// Logging
	logLevel string
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key (Gemini Developer API)",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini on Vertex AI",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini on Vertex AI",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model ID. Discovered from the model list if empty",
			Sources:     cli.EnvVars("KAZE_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// weatherFlags returns flags for the weather provider
func weatherFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "openweather-api-key",
			Usage:       "OpenWeatherMap API key",
			Sources:     cli.EnvVars("OPENWEATHER_API_KEY"),
			Destination: &cfg.openWeatherAPIKey,
		},
	}
}

// locationFlags returns flags for the location provider
func locationFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "latitude",
			Usage:       "Fixed latitude. Location is estimated from the IP address if empty",
			Sources:     cli.EnvVars("KAZE_LATITUDE"),
			Destination: &cfg.latitude,
		},
		&cli.StringFlag{
			Name:        "longitude",
			Usage:       "Fixed longitude",
			Sources:     cli.EnvVars("KAZE_LONGITUDE"),
			Destination: &cfg.longitude,
		},
		&cli.BoolFlag{
			Name:        "ip-location",
			Usage:       "Estimate location from the IP address when no coordinates are given",
			Value:       true,
			Sources:     cli.EnvVars("KAZE_IP_LOCATION"),
			Destination: &cfg.ipLocation,
		},
	}
}

func languageFlag(cfg *config) cli.Flag {
	return &cli.StringFlag{
		Name:        "language",
		Aliases:     []string{"l"},
		Usage:       "Language tag for speech and weather descriptions",
		Value:       speech.DefaultLanguage,
		Sources:     cli.EnvVars("KAZE_LANGUAGE"),
		Destination: &cfg.language,
	}
}

// voiceFlags returns flags for speech input and output, language included
func voiceFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		languageFlag(cfg),
		&cli.BoolFlag{
			Name:        "voice",
			Usage:       "Read assistant messages aloud",
			Value:       true,
			Sources:     cli.EnvVars("KAZE_VOICE"),
			Destination: &cfg.voiceEnabled,
		},
		&cli.StringFlag{
			Name:        "voice-profile",
			Usage:       "Path to YAML voice profile (language, personas, rate, pitch, volume)",
			Sources:     cli.EnvVars("KAZE_VOICE_PROFILE"),
			Destination: &cfg.voiceProfile,
		},
		&cli.StringFlag{
			Name:        "tts-command",
			Usage:       "Speech synthesis command (say, espeak-ng or espeak)",
			Sources:     cli.EnvVars("KAZE_TTS_COMMAND"),
			Destination: &cfg.ttsCommand,
		},
		&cli.StringFlag{
			Name:        "record-command",
			Usage:       "Audio recording command (rec or arecord)",
			Sources:     cli.EnvVars("KAZE_RECORD_COMMAND"),
			Destination: &cfg.recordCommand,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key for speech recognition",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openAIAPIKey,
		},
	}
}

// loggingFlags returns flags for logging
func loggingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("KAZE_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// newLogger builds the stderr logger and installs it as default
func (cfg *config) newLogger() *slog.Logger {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logger
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	switch {
	case cfg.geminiAPIKey != "":
		return adapter.NewGemini(ctx, adapter.WithAPIKey(cfg.geminiAPIKey))
	case cfg.geminiProject != "":
		if cfg.geminiLocation == "" {
			return nil, goerr.New("gemini-location is required")
		}
		return adapter.NewGemini(ctx, adapter.WithVertexAI(cfg.geminiProject, cfg.geminiLocation))
	default:
		return nil, goerr.New("gemini-api-key or gemini-project is required")
	}
}

// newAdvisor creates the advice generator on top of Gemini
func (cfg *config) newAdvisor(ctx context.Context) (*advice.Generator, error) {
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	var opts []advice.Option
	if cfg.geminiModel != "" {
		opts = append(opts, advice.WithModel(cfg.geminiModel))
	}
	return advice.New(gemini, opts...), nil
}

// newWeather creates a new weather provider
func (cfg *config) newWeather() (adapter.Weather, error) {
	if cfg.openWeatherAPIKey == "" {
		return nil, goerr.New("openweather-api-key is required")
	}
	return adapter.NewOpenWeather(cfg.openWeatherAPIKey, adapter.WithWeatherLanguage(cfg.language)), nil
}

// newLocator returns a fixed locator when both coordinates are given,
// otherwise an IP based one. With IP lookup disabled and no coordinates,
// every lookup fails as unsupported.
func (cfg *config) newLocator() (adapter.Locator, error) {
	if cfg.latitude == "" && cfg.longitude == "" {
		if !cfg.ipLocation {
			return adapter.NewUnsupportedLocator(), nil
		}
		return adapter.NewIPLocator(), nil
	}
	if cfg.latitude == "" || cfg.longitude == "" {
		return nil, goerr.New("both latitude and longitude are required")
	}

	lat, err := strconv.ParseFloat(cfg.latitude, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, goerr.New("invalid latitude", goerr.V("latitude", cfg.latitude))
	}
	lon, err := strconv.ParseFloat(cfg.longitude, 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, goerr.New("invalid longitude", goerr.V("longitude", cfg.longitude))
	}
	return adapter.NewFixedLocator(lat, lon), nil
}

// newOutput creates the speech output controller. A missing synthesizer
// makes it unsupported rather than failing.
func (cfg *config) newOutput(ctx context.Context, logger *slog.Logger) (*speech.Output, error) {
	profile, err := cfg.loadProfile()
	if err != nil {
		return nil, err
	}

	var synth adapter.Synthesizer
	if s, err := adapter.NewCommandSynthesizer(cfg.ttsCommand); err != nil {
		if !errors.Is(err, model.ErrSpeechUnsupported) {
			return nil, err
		}
		logger.Info("speech output is not available", "error", err)
	} else {
		synth = s
	}

	opts := []speech.OutputOption{
		speech.WithOutputLanguage(profile.language(cfg.language)),
		speech.WithOutputLogger(logger),
		speech.WithProsody(profile.Rate, profile.Pitch, profile.Volume),
	}
	if len(profile.Personas) > 0 {
		opts = append(opts, speech.WithPersonas(profile.Personas...))
	}

	output := speech.NewOutput(synth, opts...)
	output.LoadVoices(ctx)
	return output, nil
}

// newInput creates the speech input controller. Missing recorder or API key
// makes it unsupported rather than failing.
func (cfg *config) newInput(logger *slog.Logger) (*speech.Input, error) {
	profile, err := cfg.loadProfile()
	if err != nil {
		return nil, err
	}

	var recognizer adapter.Recognizer
	if r, err := adapter.NewWhisperRecognizer(cfg.openAIAPIKey, cfg.recordCommand); err != nil {
		if !errors.Is(err, model.ErrSpeechUnsupported) {
			return nil, err
		}
		logger.Info("speech input is not available", "error", err)
	} else {
		recognizer = r
	}

	return speech.NewInput(recognizer,
		speech.WithInputLanguage(profile.language(cfg.language)),
		speech.WithInputLogger(logger),
	), nil
}

func (cfg *config) loadProfile() (*voiceProfile, error) {
	if cfg.voiceProfile == "" {
		return &voiceProfile{}, nil
	}
	return loadVoiceProfile(cfg.voiceProfile)
}
