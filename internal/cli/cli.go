// Package cli implements the habits command line.
package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/huh"
	"github.com/templui/habits/internal/habits"
	"github.com/templui/habits/internal/session"
	"github.com/templui/habits/internal/storage"
)

var (
	ErrNotSignedIn        = errors.New("not signed in, run `habits login` first")
	ErrStorageUnavailable = errors.New("no export bucket configured, set S3_BUCKET and S3_REGION")
	ErrPasswordMismatch   = errors.New("passwords do not match")
)

// Context is handed to every command.
type Context struct {
	State  *session.State
	Habits *habits.Store
	// OpenStorage connects to the export bucket. nil when none is configured.
	OpenStorage   func(ctx context.Context) (storage.Storage, error)
	PresignExpiry time.Duration
	Prompt        Prompter
	Out           io.Writer
	Now           func() time.Time
}

// Prompter asks the user for input the flags did not provide.
type Prompter interface {
	Password(title string) (string, error)
	Confirm(title string) (bool, error)
}

// HuhPrompter prompts on the terminal.
type HuhPrompter struct{}

func (HuhPrompter) Password(title string) (string, error) {
	var value string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&value).
		Run()
	return value, err
}

func (HuhPrompter) Confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	return ok, err
}

type CLI struct {
	Version kong.VersionFlag `help:"Print version and exit."`

	Signup SignupCmd `cmd:"" help:"Create an account and sign in."`
	Login  LoginCmd  `cmd:"" help:"Sign in."`
	Logout LogoutCmd `cmd:"" help:"Sign out."`
	Whoami WhoamiCmd `cmd:"" help:"Show the signed-in user."`

	List   ListCmd   `cmd:"" help:"List habits with today's status." default:"1"`
	Add    AddCmd    `cmd:"" help:"Add a habit."`
	Done   DoneCmd   `cmd:"" help:"Mark a habit done for today."`
	Undo   UndoCmd   `cmd:"" help:"Mark a habit not done for today."`
	Delete DeleteCmd `cmd:"" help:"Delete a habit and its history."`

	Stats  StatsCmd  `cmd:"" help:"Show streaks and completion rates."`
	Export ExportCmd `cmd:"" help:"Export statistics to CSV or JSON."`
}

// Run parses args and executes the selected command.
func Run(ctx context.Context, app *Context, args []string, opts ...kong.Option) error {
	if app.Now == nil {
		app.Now = time.Now
	}
	if app.Prompt == nil {
		app.Prompt = HuhPrompter{}
	}

	var cli CLI
	options := []kong.Option{
		kong.Name("habits"),
		kong.Description("Track daily habits."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": Version},
		kong.Bind(app),
		kong.BindTo(ctx, (*context.Context)(nil)),
	}
	parser, err := kong.New(&cli, append(options, opts...)...)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	slog.Debug("running command", "command", kctx.Command())
	return kctx.Run()
}

// Version is set at build time.
var Version = "dev"

// requireUser waits for the session check and fails when nobody is signed in.
func (c *Context) requireUser(ctx context.Context) error {
	if err := c.State.Init(ctx); err != nil {
		return err
	}
	if !c.State.IsAuthenticated() {
		return ErrNotSignedIn
	}
	return nil
}

// awaitSession waits for the session check. Failure is only logged since
// signing in may still succeed.
func (c *Context) awaitSession(ctx context.Context) {
	if err := c.State.Init(ctx); err != nil {
		slog.Warn("session check failed", "error", err)
	}
}
