package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/comigor/chatwidget-go/internal/config"
	"github.com/comigor/chatwidget-go/internal/conversation"
	"github.com/comigor/chatwidget-go/internal/format"
	"github.com/comigor/chatwidget-go/internal/httpapi"
	"github.com/comigor/chatwidget-go/internal/llm"
	"github.com/comigor/chatwidget-go/internal/logger"
)

const version = "0.1.0"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatwidget",
		Short:         "Chat with a hosted language model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newAskCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// setup loads config, applies logging settings and builds a fresh conversation.
func setup() (*config.Config, *conversation.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.SetFormat(cfg.LogFormat)
	logger.SetLevel(cfg.LogLevel)

	client, err := llm.NewClient(cfg.LLM, logger.L)
	if err != nil {
		return nil, nil, err
	}
	store := conversation.New(client, conversation.OptionsFromConfig(cfg.Conversation, logger.L))
	return cfg, store, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve one conversation over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := setup()
			if err != nil {
				return err
			}

			api := httpapi.New(store, format.Formatter{AllowRawHTML: cfg.Format.AllowRawHTML}, logger.L)
			server := &http.Server{
				Addr:              cfg.Server.Addr(),
				Handler:           api.Handler(),
				ReadHeaderTimeout: 15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				logger.L.Info("starting server", "address", server.Addr, "provider", cfg.LLM.Provider)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
				defer stop()
				logger.L.Info("shutting down server")
				return server.Shutdown(shutdownCtx)
			}
		},
	}
}

func newAskCommand() *cobra.Command {
	var rendered bool
	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send prompts from args or stdin and print the replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := setup()
			if err != nil {
				return err
			}
			formatter := format.Formatter{AllowRawHTML: cfg.Format.AllowRawHTML}

			if len(args) > 0 {
				return ask(cmd.Context(), cmd.OutOrStdout(), store, formatter, rendered, strings.Join(args, " "))
			}
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				if err := ask(cmd.Context(), cmd.OutOrStdout(), store, formatter, rendered, scanner.Text()); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().BoolVar(&rendered, "html", false, "print replies as formatted HTML")
	return cmd
}

func ask(ctx context.Context, out io.Writer, store *conversation.Store, formatter format.Formatter, rendered bool, prompt string) error {
	res := store.Submit(ctx, prompt)
	switch res.Outcome {
	case conversation.OutcomeEmptyInput:
		return nil
	case conversation.OutcomeReplied:
		text := res.Reply.Text
		if rendered {
			text = formatter.Format(text)
		}
		_, err := fmt.Fprintln(out, text)
		return err
	default:
		_, err := fmt.Fprintf(out, "Error: %s\n", res.Error)
		return err
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
