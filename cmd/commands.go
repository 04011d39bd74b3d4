package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"chat-client/internal/transcript"
	"chat-client/internal/tui"
	"chat-client/internal/usecase"
)

func runInteractive(ctx context.Context) error {
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.New(a.chat, a.transcript, "chat • "+a.cfg.BaseURL)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run chat UI: %w", err)
	}
	return nil
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send [message...]",
		Short: "Send messages and print the transcript",
		Long: `Send each argument as one chat message, wait for every reply and print
the transcript. With no arguments, each non-blank line of stdin is a message.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				if err := submitLines(cmd.InOrStdin(), a.chat); err != nil {
					return err
				}
			}
			for _, msg := range args {
				a.chat.Submit(msg)
			}
			a.chat.Wait()

			if _, err := io.WriteString(cmd.OutOrStdout(), transcript.RenderPlain(a.transcript.Snapshot())); err != nil {
				return err
			}
			if err := cmd.Context().Err(); err != nil {
				return fmt.Errorf("send interrupted: %w", err)
			}
			return nil
		},
	}
}

type submitter interface {
	Submit(input string) bool
}

func submitLines(r io.Reader, chat submitter) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		chat.Submit(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}

func newAddSourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-source [project]",
		Short: "Ask the backend to index a project's database schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeout)
			defer cancel()

			msg, err := usecase.RegisterDataSource(ctx, a.api, project)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

var _ submitter = (*usecase.ChatService)(nil)
