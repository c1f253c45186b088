package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/templui/habits/internal/export"
)

type StatsCmd struct{}

func (c *StatsCmd) Run(app *Context, ctx context.Context) error {
	if err := app.requireUser(ctx); err != nil {
		return err
	}
	if err := app.Habits.FetchStats(ctx); err != nil {
		return err
	}

	rows := app.Habits.Stats()
	if len(rows) == 0 {
		fmt.Fprintln(app.Out, mutedStyle.Render("No habits yet."))
		return nil
	}

	fmt.Fprintln(app.Out, renderStats(rows))
	return nil
}

type ExportCmd struct {
	Format string `help:"Output format." enum:"csv,json" default:"csv"`
	Output string `help:"Output file (default: habits-<timestamp>.<format> in the current directory)." short:"o" type:"path"`
	Upload bool   `help:"Upload the file to the export bucket and print a temporary link."`
}

func (c *ExportCmd) Run(app *Context, ctx context.Context) error {
	if err := app.requireUser(ctx); err != nil {
		return err
	}
	if err := app.Habits.FetchStats(ctx); err != nil {
		return err
	}

	path := c.Output
	if path == "" {
		path = export.FileName(c.Format, app.Now())
	}

	rows := app.Habits.Stats()
	if err := export.Write(c.Format, rows, path); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Exported %d habits to %s\n", len(rows), path)

	if !c.Upload {
		return nil
	}
	return c.upload(ctx, app, path)
}

func (c *ExportCmd) upload(ctx context.Context, app *Context, path string) error {
	if app.OpenStorage == nil {
		return ErrStorageUnavailable
	}
	store, err := app.OpenStorage(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	key := "exports/" + app.State.UserID() + "/" + filepath.Base(path)
	if err := store.Save(ctx, key, f, export.ContentType(c.Format)); err != nil {
		return err
	}

	link, err := store.PresignedURL(ctx, key, app.PresignExpiry)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Uploaded, link valid for %s:\n%s\n", app.PresignExpiry, link)
	return nil
}
