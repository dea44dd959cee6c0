// Demo program for the agent client library.
//
// Requires the agent CLI on PATH and CLAUDE_CODE_OAUTH_TOKEN or
// ANTHROPIC_API_KEY in the environment.
//
// Usage:
//
//	go run ./cmd/agent-demo ask "What is 2+2?"
//	go run ./cmd/agent-demo chat --model claude-sonnet-4-5
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	claudeagent "github.com/agentwire/claude-agent-go"
)

var (
	flagConfig  string
	flagModel   string
	flagSystem  string
	flagMode    string
	flagVerbose bool
	flagTimeout time.Duration
)

func main() {
	root := &cobra.Command{
		Use:          "agent-demo",
		Short:        "Drive the agent CLI over its stream-json interface",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "",
		"path to a YAML session config file")
	root.PersistentFlags().StringVar(&flagModel, "model", "",
		"model to use")
	root.PersistentFlags().StringVar(&flagSystem, "system-prompt", "",
		"replace the default system prompt")
	root.PersistentFlags().StringVar(&flagMode, "permission-mode", "",
		"permission mode (default, acceptEdits, plan, bypassPermissions)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"log subprocess traffic to stderr")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 5*time.Minute,
		"overall deadline for the session")

	root.AddCommand(newAskCmd(), newChatCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildOptions assembles session options from flags and the optional config
// file. Flags win over the file.
func buildOptions() ([]claudeagent.Option, error) {
	var opts []claudeagent.Option

	if flagConfig != "" {
		config, err := claudeagent.LoadConfigFile(flagConfig)
		if err != nil {
			return nil, err
		}
		opts = append(opts, config.Apply())
	}
	if flagModel != "" {
		opts = append(opts, claudeagent.WithModel(flagModel))
	}
	if flagSystem != "" {
		opts = append(opts, claudeagent.WithSystemPrompt(flagSystem))
	}
	if flagMode != "" {
		opts = append(opts,
			claudeagent.WithPermissionMode(claudeagent.PermissionMode(flagMode)))
	}
	if flagVerbose {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
		opts = append(opts, claudeagent.WithLogger(logger))
	}

	return opts, nil
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Send a single prompt and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
			defer cancel()

			prompt := strings.Join(args, " ")
			for msg, err := range claudeagent.Query(ctx, prompt, opts...) {
				if err != nil {
					return err
				}
				printMessage(msg)
			}
			return nil
		},
	}
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Hold a multi-turn conversation, one prompt per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions()
			if err != nil {
				return err
			}

			client, err := claudeagent.NewClient(opts...)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
			defer cancel()

			if err := client.Connect(ctx); err != nil {
				return err
			}

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" {
					return nil
				}

				if err := client.SendMessage(ctx, line); err != nil {
					return err
				}
				for msg, err := range client.ReceiveResponse(ctx) {
					if err != nil {
						return err
					}
					printMessage(msg)
				}
			}
		},
	}
}

func printMessage(msg claudeagent.Message) {
	switch m := msg.(type) {
	case claudeagent.AssistantMessage:
		if text := m.ContentText(); text != "" {
			fmt.Println(text)
		}

	case claudeagent.ResultMessage:
		fmt.Fprintf(os.Stderr, "[%s] turns=%d cost=$%.4f duration=%dms\n",
			m.Subtype, m.NumTurns, m.TotalCostUSD, m.DurationMs)

	case claudeagent.SystemMessage:
		if m.Subtype == "init" {
			fmt.Fprintf(os.Stderr, "session %s (model %s)\n", m.SessionID, m.Model)
		}
	}
}
