package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/atlas-chat/backend/internal/service/chat"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		countryName string
		sessionID   string
	)

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Chat from the terminal; reads one message per line when no argument is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			s := &askSession{
				chat:        a.chat,
				out:         out,
				country:     countryName,
				sessionID:   sessionID,
				incremental: isTerminal(out),
			}

			if len(args) > 0 {
				return s.ask(ctx, strings.Join(args, " "))
			}
			return s.repl(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&countryName, "country", "USA", "country the chatbot answers for")
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	return cmd
}

type askSession struct {
	chat        *chat.Service
	out         io.Writer
	country     string
	sessionID   string
	incremental bool
}

func (s *askSession) repl(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	prompt := func() { fmt.Fprint(s.out, "> ") }

	prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			prompt()
			continue
		}
		if err := s.ask(ctx, line); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		prompt()
	}
	fmt.Fprintln(s.out)
	return scanner.Err()
}

func (s *askSession) ask(ctx context.Context, message string) error {
	var printed int
	opts := []chat.SubmitOption{
		chat.WithSessionHandler(func(id string, created bool) {
			if created {
				fmt.Fprintf(s.out, "[session %s]\n", id)
			}
		}),
	}
	if s.incremental {
		opts = append(opts, chat.WithPrefixHandler(func(prefix string) {
			fmt.Fprint(s.out, prefix[printed:])
			printed = len(prefix)
		}))
	}

	res, err := s.chat.Submit(ctx, chat.SubmitRequest{
		Message:   message,
		Country:   s.country,
		SessionID: s.sessionID,
	}, opts...)
	if err != nil {
		if res.SessionID != "" {
			s.sessionID = res.SessionID
		}
		if printed > 0 {
			fmt.Fprintln(s.out)
		}
		return err
	}

	s.sessionID = res.SessionID
	if !s.incremental {
		fmt.Fprint(s.out, res.Turn.Answer)
	}
	fmt.Fprintln(s.out)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
