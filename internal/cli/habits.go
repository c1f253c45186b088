package cli

import (
	"context"
	"fmt"

	"github.com/templui/habits/internal/model"
)

type ListCmd struct{}

func (c *ListCmd) Run(app *Context, ctx context.Context) error {
	if err := app.requireUser(ctx); err != nil {
		return err
	}
	if err := app.Habits.FetchToday(ctx); err != nil {
		return err
	}

	list := app.Habits.Habits()
	if len(list) == 0 {
		fmt.Fprintln(app.Out, mutedStyle.Render("No habits yet. Add one with: habits add <name>"))
		return nil
	}

	fmt.Fprintln(app.Out, renderToday(list, app.Habits.Today()))
	return nil
}

type AddCmd struct {
	Name      string `arg:"" help:"Habit name."`
	Frequency string `help:"How often the habit is due." enum:"daily,weekly,weekdays,weekends" default:"daily" short:"f"`
}

func (c *AddCmd) Run(app *Context, ctx context.Context) error {
	if err := app.requireUser(ctx); err != nil {
		return err
	}

	habit, err := app.Habits.Add(ctx, c.Name, c.Frequency)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "%s %s\n",
		successStyle.Render("Added "+habit.Name),
		mutedStyle.Render("("+habit.Frequency+", "+shortID(habit.ID)+")"))
	return nil
}

type DoneCmd struct {
	Habit string `arg:"" help:"Habit name or id (a unique id prefix is enough)."`
}

func (c *DoneCmd) Run(app *Context, ctx context.Context) error {
	return toggle(ctx, app, c.Habit, true)
}

type UndoCmd struct {
	Habit string `arg:"" help:"Habit name or id (a unique id prefix is enough)."`
}

func (c *UndoCmd) Run(app *Context, ctx context.Context) error {
	return toggle(ctx, app, c.Habit, false)
}

func toggle(ctx context.Context, app *Context, ref string, completed bool) error {
	habit, err := resolve(ctx, app, ref)
	if err != nil {
		return err
	}

	if err := app.Habits.ToggleCompletion(ctx, habit.ID, completed); err != nil {
		return err
	}

	if completed {
		fmt.Fprintf(app.Out, "%s %s done for %s\n", doneStyle.Render(markDone), habit.Name, app.Habits.Today())
	} else {
		fmt.Fprintf(app.Out, "%s %s not done for %s\n", mutedStyle.Render(markOpen), habit.Name, app.Habits.Today())
	}
	return nil
}

type DeleteCmd struct {
	Habit string `arg:"" help:"Habit name or id (a unique id prefix is enough)."`
	Yes   bool   `help:"Do not ask for confirmation." short:"y"`
}

func (c *DeleteCmd) Run(app *Context, ctx context.Context) error {
	habit, err := resolve(ctx, app, c.Habit)
	if err != nil {
		return err
	}

	if !c.Yes {
		ok, err := app.Prompt.Confirm(fmt.Sprintf("Delete %q and all of its history?", habit.Name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(app.Out, mutedStyle.Render("Cancelled"))
			return nil
		}
	}

	if err := app.Habits.Delete(ctx, habit.ID); err != nil {
		return err
	}

	fmt.Fprintln(app.Out, "Deleted "+habit.Name)
	return nil
}

// resolve loads today's list and finds ref in it.
func resolve(ctx context.Context, app *Context, ref string) (model.HabitToday, error) {
	if err := app.requireUser(ctx); err != nil {
		return model.HabitToday{}, err
	}
	if err := app.Habits.FetchToday(ctx); err != nil {
		return model.HabitToday{}, err
	}

	habit, err := app.Habits.Find(ref)
	if err != nil {
		return model.HabitToday{}, fmt.Errorf("%q: %w", ref, err)
	}
	return habit, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
