package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"ai-chat-app/backend/internal/client"

	"github.com/spf13/cobra"
)

const chatHelp = `Commands:
  /more    load older messages
  /retry   resend the last failed message
  /clear   delete the conversation
  /stats   show conversation statistics
  /health  check the AI service
  /quit    leave`

func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.store.RestoreSession(ctx); err != nil {
				return a.sessionError(err)
			}

			st := a.store.State()
			fmt.Fprintf(a.out, "Chatting as %s. Type /help for commands.\n", st.User.Username)
			printHealth(a.out, st.AIHealth)
			if st.HasMore {
				fmt.Fprintln(a.out, "(older messages available, /more)")
			}
			printMessages(a.out, st.Messages)

			for {
				line, err := a.prompt("> ")
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if line == "" {
					continue
				}
				if strings.HasPrefix(line, "/") {
					quit, err := a.chatCommand(cmd, line)
					if err != nil {
						fmt.Fprintln(a.errOut, "Error:", err)
						if client.IsUnauthorized(err) {
							return a.sessionError(err)
						}
					}
					if quit {
						return nil
					}
					continue
				}

				if err := a.store.Send(ctx, line); err != nil {
					if client.IsUnauthorized(err) {
						return a.sessionError(err)
					}
					fmt.Fprintf(a.errOut, "Error: %s (/retry to resend)\n", a.store.State().Error)
					continue
				}
				msgs := a.store.State().Messages
				printMessage(a.out, msgs[len(msgs)-1])
			}
		},
	}
}

func (a *app) chatCommand(cmd *cobra.Command, line string) (bool, error) {
	ctx := cmd.Context()
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintln(a.out, chatHelp)

	case "/more":
		before := a.store.State()
		if !before.HasMore {
			fmt.Fprintln(a.out, "No older messages")
			return false, nil
		}
		if err := a.store.LoadMore(ctx); err != nil {
			return false, err
		}
		after := a.store.State()
		printMessages(a.out, after.Messages[:len(after.Messages)-len(before.Messages)])

	case "/retry":
		failed, ok := lastFailed(a.store.State())
		if !ok {
			fmt.Fprintln(a.out, "Nothing to retry")
			return false, nil
		}
		if err := a.store.Retry(ctx, failed.Key()); err != nil {
			return false, err
		}
		msgs := a.store.State().Messages
		printMessages(a.out, msgs[len(msgs)-2:])

	case "/clear":
		if err := a.store.Clear(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(a.out, "Chat history cleared")

	case "/stats":
		a.store.LoadStats(ctx)
		printStats(a.out, a.store.State().Stats)

	case "/health":
		a.store.CheckHealth(ctx)
		printHealth(a.out, a.store.State().AIHealth)

	default:
		fmt.Fprintf(a.out, "Unknown command %s\n%s\n", line, chatHelp)
	}
	return false, nil
}

func lastFailed(s client.State) (client.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Failed {
			return s.Messages[i], true
		}
	}
	return client.Message{}, false
}
