package cli

import (
	"context"
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// values already in the environment win over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{
			Code:    1,
			Message: "failed to load .env: " + err.Error(),
		}
	}

	cmd := &cli.Command{
		Name:  "kaze",
		Usage: "Weather and wellness assistant with voice",
		Commands: []*cli.Command{
			chatCommand(),
			serveCommand(),
			adviceCommand(),
			weatherCommand(),
			voicesCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
