// Package cli implements chatctl, a terminal client for the chat server.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ai-chat-app/backend/internal/client"
	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/pkg/logger"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errNotLoggedIn = errors.New("not logged in, run `chatctl login` first")

type app struct {
	in       *bufio.Reader
	inFile   *os.File
	out      io.Writer
	errOut   io.Writer
	dir      string
	server   string
	timeout  time.Duration
	verbose  bool
	settings *Settings
	api      *client.HTTPClient
	store    *client.Store
}

// NewRootCommand builds the chatctl command tree reading from in and
// writing to out.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: bufio.NewReader(in), out: out, errOut: errOut}
	if f, ok := in.(*os.File); ok {
		a.inFile = f
	}

	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Terminal client for the AI chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.store != nil {
				a.store.Close()
			}
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.server, "server", "s", "", "server URL (default from config, "+defaultServerURL+")")
	flags.StringVar(&a.dir, "config-dir", "", "directory holding config.yaml (default ~/.chatctl)")
	flags.DurationVar(&a.timeout, "timeout", 90*time.Second, "request timeout")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log background failures to stderr")

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.sendCmd(),
		a.historyCmd(),
		a.statsCmd(),
		a.healthCmd(),
		a.clearCmd(),
		a.chatCmd(),
	)
	return root
}

// Execute runs chatctl against the process's stdio
func Execute() {
	root := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	dir := a.dir
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return err
		}
		dir = d
	}
	settings, err := LoadSettings(dir)
	if err != nil {
		return err
	}
	if a.server != "" {
		settings.SetServerURL(a.server)
	}
	a.settings = settings

	api, err := client.NewHTTPClient(settings.ServerURL(), a.timeout)
	if err != nil {
		return err
	}
	if token := settings.Token(); token != "" {
		api.SetToken(token)
	}
	a.api = api

	log := logger.Discard()
	if a.verbose {
		log = logger.New(logger.Config{Level: "debug", Output: a.errOut})
	}
	a.store = client.NewStore(api, client.WithLogger(log))
	return nil
}

func (a *app) requireSession() error {
	if a.settings.Token() == "" {
		return errNotLoggedIn
	}
	return nil
}

// sessionError forgets a token the server no longer accepts
func (a *app) sessionError(err error) error {
	if client.IsUnauthorized(err) {
		_ = a.settings.ClearToken()
		return fmt.Errorf("%w (session expired, run `chatctl login`)", err)
	}
	return err
}

func (a *app) saveSession() error {
	if err := a.settings.SaveToken(a.api.Token()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) promptPassword() (string, error) {
	if a.inFile != nil && term.IsTerminal(int(a.inFile.Fd())) {
		fmt.Fprint(a.out, "Password: ")
		raw, err := term.ReadPassword(int(a.inFile.Fd()))
		fmt.Fprintln(a.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	return a.prompt("Password: ")
}

func (a *app) registerCmd() *cobra.Command {
	var req models.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			for _, f := range []struct {
				label string
				dst   *string
			}{{"Name: ", &req.Name}, {"Username: ", &req.Username}, {"Email: ", &req.Email}} {
				if *f.dst == "" {
					if *f.dst, err = a.prompt(f.label); err != nil {
						return err
					}
				}
			}
			if req.Password == "" {
				if req.Password, err = a.promptPassword(); err != nil {
					return err
				}
			}
			if err := a.store.Register(cmd.Context(), req); err != nil {
				return err
			}
			if err := a.saveSession(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Registered and signed in as %s\n", a.store.State().User.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Username, "username", "", "username")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "password (prompted when omitted)")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if email == "" {
				if email, err = a.prompt("Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = a.promptPassword(); err != nil {
					return err
				}
			}
			if err := a.store.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			if err := a.saveSession(); err != nil {
				return err
			}
			st := a.store.State()
			fmt.Fprintf(a.out, "Signed in as %s (%d messages in your conversation)\n", st.User.Email, len(st.Messages))
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.settings.Token() == "" {
				fmt.Fprintln(a.out, "Not logged in")
				return nil
			}
			if err := a.store.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(a.errOut, "Warning: server logout failed: %v\n", err)
			}
			if err := a.settings.ClearToken(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			user, err := a.api.Me(cmd.Context())
			if err != nil {
				return a.sessionError(err)
			}
			fmt.Fprintf(a.out, "%s <%s> (@%s)\n", user.Name, user.Email, user.Username)
			return nil
		},
	}
}

func (a *app) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.store.Send(cmd.Context(), strings.Join(args, " ")); err != nil {
				return a.sessionError(err)
			}
			msgs := a.store.State().Messages
			printMessages(a.out, msgs[len(msgs)-2:])
			return nil
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.store.LoadHistory(ctx); err != nil {
				return a.sessionError(err)
			}
			for i := 0; i < pages && a.store.State().HasMore; i++ {
				if err := a.store.LoadMore(ctx); err != nil {
					return a.sessionError(err)
				}
			}
			st := a.store.State()
			if len(st.Messages) == 0 {
				fmt.Fprintln(a.out, "No messages yet")
				return nil
			}
			printMessages(a.out, st.Messages)
			if st.HasMore {
				fmt.Fprintln(a.out, "(older messages available, use --more)")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "more", 0, "number of older pages to load")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show conversation statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			a.store.LoadStats(cmd.Context())
			printStats(a.out, a.store.State().Stats)
			return nil
		},
	}
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the AI service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			a.store.CheckHealth(cmd.Context())
			printHealth(a.out, a.store.State().AIHealth)
			return nil
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if !yes {
				answer, err := a.prompt("Delete all messages? [y/N]: ")
				if err != nil {
					return err
				}
				if ans := strings.ToLower(answer); ans != "y" && ans != "yes" {
					fmt.Fprintln(a.out, "Aborted")
					return nil
				}
			}
			if err := a.store.Clear(cmd.Context()); err != nil {
				return a.sessionError(err)
			}
			fmt.Fprintln(a.out, "Chat history cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
