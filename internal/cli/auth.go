package cli

import (
	"context"
	"fmt"
)

type SignupCmd struct {
	Email    string `arg:"" help:"Email address."`
	Password string `help:"Password (prompted when omitted)." env:"HABITS_PASSWORD"`
}

func (c *SignupCmd) Run(app *Context, ctx context.Context) error {
	app.awaitSession(ctx)

	password := c.Password
	if password == "" {
		var err error
		password, err = app.Prompt.Password("Choose a password")
		if err != nil {
			return err
		}
		confirm, err := app.Prompt.Password("Confirm password")
		if err != nil {
			return err
		}
		if confirm != password {
			return ErrPasswordMismatch
		}
	}

	if err := app.State.SignUp(ctx, c.Email, password); err != nil {
		return err
	}

	fmt.Fprintln(app.Out, successStyle.Render("Signed up as "+app.State.User().Email))
	return nil
}

type LoginCmd struct {
	Email    string `arg:"" help:"Email address."`
	Password string `help:"Password (prompted when omitted)." env:"HABITS_PASSWORD"`
}

func (c *LoginCmd) Run(app *Context, ctx context.Context) error {
	app.awaitSession(ctx)

	password := c.Password
	if password == "" {
		var err error
		password, err = app.Prompt.Password("Password")
		if err != nil {
			return err
		}
	}

	if err := app.State.SignIn(ctx, c.Email, password); err != nil {
		return err
	}

	fmt.Fprintln(app.Out, successStyle.Render("Signed in as "+app.State.User().Email))
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(app *Context, ctx context.Context) error {
	app.awaitSession(ctx)

	if !app.State.IsAuthenticated() {
		fmt.Fprintln(app.Out, mutedStyle.Render("Not signed in"))
		return nil
	}

	if err := app.State.SignOut(ctx); err != nil {
		return err
	}

	fmt.Fprintln(app.Out, "Signed out")
	return nil
}

type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(app *Context, ctx context.Context) error {
	if err := app.State.Init(ctx); err != nil {
		return err
	}

	user := app.State.User()
	if user == nil {
		fmt.Fprintln(app.Out, mutedStyle.Render("Not signed in"))
		return nil
	}

	fmt.Fprintf(app.Out, "%s %s\n", user.Email, mutedStyle.Render("("+user.ID+")"))
	return nil
}
