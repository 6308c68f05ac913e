package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/kaze/pkg/service/speech"
	"github.com/m-mizutani/kaze/pkg/usecase/conversation"
	"github.com/urfave/cli/v3"
)

// session bundles a conversation with the speech controllers it drives
type session struct {
	conv   *conversation.Conversation
	output *speech.Output
	input  *speech.Input
}

// sessionFlags returns every flag needed to build a session
func sessionFlags(cfg *config) []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, llmFlags(cfg)...)
	flags = append(flags, weatherFlags(cfg)...)
	flags = append(flags, locationFlags(cfg)...)
	flags = append(flags, voiceFlags(cfg)...)
	flags = append(flags, loggingFlags(cfg)...)
	return flags
}

func (cfg *config) newSession(ctx context.Context, logger *slog.Logger) (*session, error) {
	advisor, err := cfg.newAdvisor(ctx)
	if err != nil {
		return nil, err
	}

	weather, err := cfg.newWeather()
	if err != nil {
		return nil, err
	}

	locator, err := cfg.newLocator()
	if err != nil {
		return nil, err
	}

	output, err := cfg.newOutput(ctx, logger)
	if err != nil {
		return nil, err
	}

	input, err := cfg.newInput(logger)
	if err != nil {
		return nil, err
	}

	conv := conversation.New(locator, weather, advisor, output, input,
		conversation.WithLogger(logger),
		conversation.WithVoiceEnabled(cfg.voiceEnabled),
	)
	logger.Debug("session created", "session", conv.ID())

	return &session{conv: conv, output: output, input: input}, nil
}
