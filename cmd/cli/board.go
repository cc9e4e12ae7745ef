package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/and161185/taskboard/internal/board"
	"github.com/and161185/taskboard/internal/client"
	"github.com/and161185/taskboard/internal/dnd"
	"github.com/and161185/taskboard/internal/model"
)

// dragFrames is how many pointer moves a replayed drag makes before the drop.
const dragFrames = 8

// runBoard handles the commands that go through the board cache.
func runBoard(ctx context.Context, c *cli, api *client.Client, st *board.State, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	project := fs.Int64("project", 0, "project id")

	switch cmd {
	case "projects":
		if err := st.LoadProjects(ctx); err != nil {
			return err
		}
		renderProjects(c.out, st.Snapshot())
		return nil

	case "new-project":
		name := fs.String("name", "", "project name")
		desc := fs.String("desc", "", "description")
		if err := fs.Parse(args); err != nil {
			return err
		}
		var d *string
		if *desc != "" {
			d = desc
		}
		p, err := st.CreateProject(ctx, *name, d)
		if err != nil {
			return err
		}
		printJSON(c.out, p)
		return nil

	case "download":
		att := fs.Int64("attachment", 0, "attachment id")
		out := fs.String("out", "", "output path")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *att <= 0 || *out == "" {
			return errors.New("need -attachment and -out")
		}
		return download(ctx, api, *att, *out, c.out)
	}

	// Everything below works on one selected project.
	task := fs.Int64("task", 0, "task id")
	column := fs.Int64("column", 0, "column id")
	ontoTask := fs.Int64("onto-task", 0, "drop onto this task")
	ontoColumn := fs.Int64("onto-column", 0, "drop onto this column")
	onto := fs.Int64("onto", 0, "drop onto this column or project")
	name := fs.String("name", "", "name")
	title := fs.String("title", "", "title")
	desc := fs.String("desc", "", "description")
	color := fs.String("color", "", "column color")
	priority := fs.Int("priority", model.DefaultPriority, "priority 1..5")
	p := fs.Int("p", 0, "priority 1..5")
	file := fs.String("file", "", "file to attach")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project <= 0 {
		return errors.New("need -project")
	}
	if err := openBoard(ctx, st, *project); err != nil {
		return err
	}

	switch cmd {
	case "board":
		renderBoard(c.out, st.Snapshot())
		return nil

	case "rename-project":
		if err := st.RenameProject(ctx, *project, *name); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "ok")
		return nil

	case "rm-project":
		if err := st.DeleteProject(ctx, *project); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "deleted")
		return nil

	case "add-column":
		col, err := st.CreateColumn(ctx, *title, *color)
		if err != nil {
			return err
		}
		printJSON(c.out, col)
		return nil

	case "add-task":
		t, err := st.CreateTask(ctx, model.Task{
			ColumnID:    *column,
			Title:       *title,
			Description: *desc,
			Priority:    *priority,
		})
		if err != nil {
			return err
		}
		printJSON(c.out, t)
		return nil

	case "set-priority":
		if err := st.MutateTask(ctx, *task, model.TaskPatch{Priority: p}); err != nil {
			return err
		}
		renderBoard(c.out, st.Snapshot())
		return nil

	case "rm-task":
		if err := st.DeleteTask(ctx, *task); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "deleted")
		return nil

	case "attach":
		if *task <= 0 || *file == "" {
			return errors.New("need -task and -file")
		}
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		a, err := st.UploadAttachment(ctx, *task, filepath.Base(*file), f)
		if err != nil {
			return err
		}
		printJSON(c.out, a)
		return nil

	case "move-task":
		var target dnd.DraggableRef
		switch {
		case *ontoTask > 0 && *ontoColumn > 0:
			return errors.New("use one of -onto-task and -onto-column")
		case *ontoTask > 0:
			target = dnd.DraggableRef{Kind: dnd.KindTask, ID: *ontoTask}
		case *ontoColumn > 0:
			target = dnd.DraggableRef{Kind: dnd.KindColumn, ID: *ontoColumn}
		default:
			return errors.New("need -onto-task or -onto-column")
		}
		return drag(ctx, c, api, st, dnd.DraggableRef{Kind: dnd.KindTask, ID: *task}, target)

	case "move-column":
		return drag(ctx, c, api, st,
			dnd.DraggableRef{Kind: dnd.KindColumn, ID: *column},
			dnd.DraggableRef{Kind: dnd.KindColumn, ID: *onto})

	case "move-project":
		return drag(ctx, c, api, st,
			dnd.DraggableRef{Kind: dnd.KindProject, ID: *project},
			dnd.DraggableRef{Kind: dnd.KindProject, ID: *onto})
	}
	return errUsage
}

// openBoard loads the project list and selects projectID.
func openBoard(ctx context.Context, st *board.State, projectID int64) error {
	if err := st.LoadProjects(ctx); err != nil {
		return err
	}
	return st.Select(ctx, projectID)
}

// drag replays a pointer gesture from active to target over the current
// board and prints the result.
func drag(ctx context.Context, c *cli, api *client.Client, st *board.State, active, target dnd.DraggableRef) error {
	eng := dnd.NewEngine(st, api, c.log)
	out, err := eng.DragTo(ctx, active, target, dnd.BoardLayout(st.Snapshot()), dragFrames)
	if err != nil {
		return err
	}
	if !out.Applied {
		fmt.Fprintf(c.out, "%s dropped on %s: nothing to do\n", out.Active, out.Target)
		return nil
	}
	if out.PersistErr != nil {
		return fmt.Errorf("move %s not saved: %w", out.Active, out.PersistErr)
	}
	fmt.Fprintf(c.out, "%s dropped on %s: %d changed\n", out.Active, out.Target, out.Changed)
	if out.Active.Kind == dnd.KindProject {
		renderProjects(c.out, st.Snapshot())
		return nil
	}
	renderBoard(c.out, st.Snapshot())
	return nil
}

func download(ctx context.Context, api *client.Client, id int64, path string, w io.Writer) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	name, err := api.DownloadAttachment(ctx, id, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	fmt.Fprintf(w, "%s -> %s\n", name, path)
	return nil
}

// ---- rendering ----

func renderProjects(w io.Writer, snap board.Snapshot) {
	for _, p := range snap.Projects {
		mark := " "
		if p.ID == snap.ProjectID {
			mark = "*"
		}
		fmt.Fprintf(w, "%s #%d %s\n", mark, p.ID, p.Name)
	}
}

func renderBoard(w io.Writer, snap board.Snapshot) {
	for _, col := range snap.Columns {
		tasks := snap.TasksIn(col.ID)
		fmt.Fprintf(w, "== %s (#%d, %d) ==\n", col.Title, col.ID, len(tasks))
		for _, t := range tasks {
			fmt.Fprintf(w, "  #%d %s%s\n", t.ID, t.Title, taskBadges(t))
		}
	}
}

func taskBadges(t model.Task) string {
	var b []string
	if t.Priority != model.DefaultPriority {
		b = append(b, fmt.Sprintf("p%d", t.Priority))
	}
	if t.AttachmentCount > 0 {
		b = append(b, fmt.Sprintf("%d file(s)", t.AttachmentCount))
	}
	if len(b) == 0 {
		return ""
	}
	return " [" + strings.Join(b, ", ") + "]"
}
