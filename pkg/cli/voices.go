package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func voicesCommand() *cli.Command {
	var cfg config

	var flags []cli.Flag
	flags = append(flags, voiceFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "voices",
		Usage: "List speech synthesizer voices",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := cfg.newLogger()

			output, err := cfg.newOutput(ctx, logger)
			if err != nil {
				return err
			}
			if !output.IsSupported() {
				return goerr.New("speech output is not available on this system")
			}

			selected := output.SelectedVoice()
			for _, v := range output.Voices() {
				mark := " "
				if selected != nil && v.Name == selected.Name {
					mark = "*"
				}
				if v.Gender != "" {
					fmt.Fprintf(os.Stdout, "%s %-24s %-8s %s\n", mark, v.Name, v.Language, v.Gender)
				} else {
					fmt.Fprintf(os.Stdout, "%s %-24s %s\n", mark, v.Name, v.Language)
				}
			}
			return nil
		},
	}
}
