package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mrlokans/storynest/internal/library"
)

// BookActionCommand runs one synchronizer operation against a single book.
type BookActionCommand struct {
	clientFlags
	ID string

	name    string
	summary string
	action  func(ctx context.Context, s *library.Synchronizer, id string) error
	done    string
}

func NewFavoriteCommand() *BookActionCommand {
	return &BookActionCommand{
		name:    "favorite",
		summary: "Toggle the favorite mark of a book.",
		action: func(ctx context.Context, s *library.Synchronizer, id string) error {
			return s.ToggleFavorite(ctx, id)
		},
		done: "Toggled favorite on %s",
	}
}

func NewDeleteCommand() *BookActionCommand {
	return &BookActionCommand{
		name:    "delete",
		summary: "Move a book to the trash. It can be restored until the trash is purged.",
		action: func(ctx context.Context, s *library.Synchronizer, id string) error {
			return s.SoftDelete(ctx, id)
		},
		done: "Moved %s to the trash",
	}
}

func NewRestoreCommand() *BookActionCommand {
	return &BookActionCommand{
		name:    "restore",
		summary: "Bring a book back from the trash.",
		action: func(ctx context.Context, s *library.Synchronizer, id string) error {
			return s.Restore(ctx, id)
		},
		done: "Restored %s",
	}
}

func NewPurgeCommand() *BookActionCommand {
	return &BookActionCommand{
		name:    "purge",
		summary: "Permanently delete a book. This cannot be undone.",
		action: func(ctx context.Context, s *library.Synchronizer, id string) error {
			return s.PermanentlyDelete(ctx, id)
		},
		done: "Permanently deleted %s",
	}
}

func (cmd *BookActionCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	cmd.bind(fs)
	fs.StringVar(&cmd.ID, "id", "", "Book id or unique id prefix (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s -id <id> [options]\n\n", os.Args[0], cmd.name)
		fmt.Fprintf(os.Stderr, "%s\n\n", cmd.summary)
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(cmd.ID) == "" && fs.NArg() > 0 {
		cmd.ID = fs.Arg(0)
	}
	if strings.TrimSpace(cmd.ID) == "" {
		return errMissingBookID
	}
	return nil
}

func (cmd *BookActionCommand) Run() error {
	ctx, cancel := commandContext()
	defer cancel()

	ws, err := openWorkspace(ctx, cmd.ConfigPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	id, err := ws.resolveID(cmd.ID)
	if err != nil {
		return err
	}
	if err := cmd.action(ctx, ws.books(), id); err != nil {
		return err
	}
	cmd.printer().successf(cmd.done, shortID(id))
	return nil
}

// EmptyTrashCommand permanently deletes everything in the trash.
type EmptyTrashCommand struct {
	clientFlags
	Yes bool
}

func NewEmptyTrashCommand() *EmptyTrashCommand {
	return &EmptyTrashCommand{}
}

func (cmd *EmptyTrashCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("empty-trash", flag.ContinueOnError)
	cmd.bind(fs)
	fs.BoolVar(&cmd.Yes, "yes", false, "Confirm permanent deletion")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s empty-trash -yes [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Permanently delete every book in the trash.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

func (cmd *EmptyTrashCommand) Run() error {
	ctx, cancel := commandContext()
	defer cancel()

	ws, err := openWorkspace(ctx, cmd.ConfigPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	out := cmd.printer()
	s := ws.books()
	count := len(s.Trash())
	if count == 0 {
		out.infof("The trash is already empty")
		return nil
	}
	if !cmd.Yes {
		out.warnf("%d books would be permanently deleted. Run again with -yes to confirm.", count)
		return nil
	}

	if err := s.ClearTrash(ctx); err != nil {
		return err
	}
	out.successf("Permanently deleted %d books", count)
	return nil
}
