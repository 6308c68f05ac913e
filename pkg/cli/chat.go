package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kaze/pkg/model"
	"github.com/m-mizutani/kaze/pkg/service/speech"
	"github.com/m-mizutani/kaze/pkg/usecase/conversation"
	"github.com/urfave/cli/v3"
)

const chatHelp = `Commands:
  /voice    turn voice output on or off
  /listen   speak your question (recording stops on silence)
  /stop     stop reading aloud
  /weather  show current weather
  /help     show this help
  /exit     quit`

func chatCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "chat",
		Usage: "Chat about today's weather and wellness",
		Flags: sessionFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := cfg.newLogger()

			sess, err := cfg.newSession(ctx, logger)
			if err != nil {
				return err
			}
			defer sess.output.Stop()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "/exit",
				AutoComplete: readline.NewPrefixCompleter(
					readline.PcItem("/voice"),
					readline.PcItem("/listen"),
					readline.PcItem("/stop"),
					readline.PcItem("/weather"),
					readline.PcItem("/help"),
					readline.PcItem("/exit"),
				),
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			r := &repl{
				sess: sess,
				w:    rl.Stdout(),
			}
			sess.input.OnNotice(func(n speech.Notice) {
				fmt.Fprintf(r.w, "! %s\n", n.Message)
			})

			return r.run(ctx, rl)
		},
	}
}

type repl struct {
	sess    *session
	w       io.Writer
	printed model.MessageID
}

func (r *repl) run(ctx context.Context, rl *readline.Instance) error {
	withSpinner("Checking the weather...", func() {
		if err := r.sess.conv.Initialize(ctx); err != nil {
			fmt.Fprintf(r.w, "! %s\n", err.Error())
		}
	})
	r.printNew()

	if !r.sess.output.IsSupported() {
		fmt.Fprintln(r.w, "(speech output is not available on this system)")
	}
	fmt.Fprintln(r.w, "Type /help for commands.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue

		case "/exit", "/quit":
			return nil

		case "/help":
			fmt.Fprintln(r.w, chatHelp)

		case "/voice":
			r.toggleVoice()

		case "/stop":
			r.sess.conv.StopSpeaking()

		case "/weather":
			r.printWeather()

		case "/listen":
			r.listen(ctx)

		default:
			r.send(ctx, line)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) send(ctx context.Context, text string) {
	var err error
	withSpinner("Thinking...", func() {
		err = r.sess.conv.Send(ctx, text)
	})

	switch {
	case errors.Is(err, conversation.ErrTurnInProgress):
		fmt.Fprintln(r.w, "! Please wait for the current response.")
	case errors.Is(err, conversation.ErrEmptyMessage):
	case err != nil:
		fmt.Fprintf(r.w, "! %s\n", err.Error())
	}
	r.printNew()
}

func (r *repl) listen(ctx context.Context) {
	if !r.sess.input.IsSupported() {
		fmt.Fprintln(r.w, "! Speech input is not available on this system.")
		return
	}
	if r.sess.input.IsListening() {
		fmt.Fprintln(r.w, "! Already listening.")
		return
	}
	if !r.sess.conv.Listen(ctx) {
		fmt.Fprintln(r.w, "! Could not start listening.")
		return
	}

	withSpinner("Listening...", func() {
		select {
		case <-r.sess.input.Idle():
		case <-ctx.Done():
			r.sess.conv.StopListening()
			<-r.sess.input.Idle()
		}
	})

	text := r.sess.conv.PendingInput()
	if strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintf(r.w, "you: %s\n", text)

	var err error
	withSpinner("Thinking...", func() {
		err = r.sess.conv.SendPending(ctx)
	})
	if err != nil && !errors.Is(err, conversation.ErrEmptyMessage) {
		fmt.Fprintf(r.w, "! %s\n", err.Error())
	}
	r.printNew()
}

func (r *repl) toggleVoice() {
	if r.sess.conv.ToggleVoice() {
		fmt.Fprintln(r.w, "Voice output: on")
		if !r.sess.output.IsSupported() {
			fmt.Fprintln(r.w, "! Speech output is not available on this system.")
		}
	} else {
		fmt.Fprintln(r.w, "Voice output: off")
	}
}

// printNew prints assistant messages not printed yet
func (r *repl) printNew() {
	for _, msg := range r.sess.conv.Messages() {
		if msg.ID <= r.printed {
			continue
		}
		r.printed = msg.ID
		if msg.IsAssistant() {
			fmt.Fprintf(r.w, "kaze: %s\n", msg.Text)
		}
	}
}

func (r *repl) printWeather() {
	snapshot := r.sess.conv.Weather()
	if snapshot == nil {
		fmt.Fprintln(r.w, "! Weather information is not available.")
		return
	}
	printWeather(r.w, snapshot)
}

// withSpinner shows a spinner on stderr while f runs
func withSpinner(msg string, f func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + msg
	s.Start()
	defer s.Stop()

	f()
}
