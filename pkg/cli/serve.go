package cli

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kaze/pkg/server"
	"github.com/m-mizutani/kaze/pkg/usecase/conversation"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg            config
		addr           string
		allowedOrigins string
	)

	flags := sessionFlags(&cfg)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("KAZE_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "allowed-origin",
			Usage:       "Comma separated origins allowed by CORS",
			Sources:     cli.EnvVars("KAZE_ALLOWED_ORIGIN"),
			Destination: &allowedOrigins,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the conversation over HTTP for a browser front end",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := cfg.newLogger()

			sess, err := cfg.newSession(ctx, logger)
			if err != nil {
				return err
			}
			defer sess.output.Stop()

			go func() {
				// a turn sent before startup finished holds initialization back
				for {
					err := sess.conv.Initialize(ctx)
					if !errors.Is(err, conversation.ErrTurnInProgress) {
						if err != nil {
							logger.Warn("initialization skipped", "error", err)
						}
						return
					}
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
					}
				}
			}()

			var origins []string
			for _, o := range strings.Split(allowedOrigins, ",") {
				if o = strings.TrimSpace(o); o != "" {
					origins = append(origins, o)
				}
			}

			srv := server.New(sess.conv, sess.output,
				server.WithLogger(logger),
				server.WithAllowedOrigins(origins...),
			)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server", "addr", addr, "session", sess.conv.ID())
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err, ok := <-errCh:
				if ok {
					return goerr.Wrap(err, "failed to serve", goerr.V("addr", addr))
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server")
			}
			return nil
		},
	}
}
