package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func adviceCommand() *cli.Command {
	var cfg config

	var flags []cli.Flag
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, weatherFlags(&cfg)...)
	flags = append(flags, locationFlags(&cfg)...)
	flags = append(flags, languageFlag(&cfg))
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "advice",
		Usage: "Print today's wellness advice for the current weather",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := cfg.newLogger()

			advisor, err := cfg.newAdvisor(ctx)
			if err != nil {
				return err
			}

			var text string
			withSpinner("Checking the weather...", func() {
				snapshot, fetchErr := cfg.fetchWeather(ctx)
				if fetchErr != nil {
					err = fetchErr
					return
				}
				text, err = advisor.Initial(ctx, snapshot)
			})
			if err != nil {
				return err
			}

			logger.Debug("advice generated", "length", len(text))
			fmt.Fprintln(os.Stdout, text)
			return nil
		},
	}
}
