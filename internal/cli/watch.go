package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/storynest/internal/library"
	"github.com/mrlokans/storynest/internal/wire"
)

// WatchCommand mirrors the collection and prints every change the server
// reports, with updated statistics, until interrupted.
type WatchCommand struct {
	clientFlags
}

func NewWatchCommand() *WatchCommand {
	return &WatchCommand{}
}

func (cmd *WatchCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	cmd.bind(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s watch [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Follow changes made from any device and print them as they arrive.\n")
		fmt.Fprintf(os.Stderr, "Press Ctrl-C to stop.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

func (cmd *WatchCommand) Run() error {
	ctx, cancel := commandContext()
	defer cancel()
	return cmd.RunContext(ctx)
}

// RunContext watches until ctx is done or the server closes the stream.
func (cmd *WatchCommand) RunContext(ctx context.Context) error {
	cfg, client, me, err := connect(ctx, cmd.ConfigPath)
	if err != nil {
		return err
	}

	s := library.NewSynchronizer(client, library.Options{OperationTimeout: cfg.Timeout()})
	defer s.Reset("")

	// Subscribe before loading so nothing committed in between is missed.
	sub, err := client.Subscribe(ctx, me.ID)
	if err != nil {
		return err
	}
	defer sub.Close()

	if err := s.Load(ctx, me.ID); err != nil {
		return err
	}

	out := cmd.printer()
	out.infof("Watching the library of %s on %s", me.Name, client.ServerURL())
	out.statistics(s.Statistics())

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				if failed, ok := sub.(interface{ Err() error }); ok && failed.Err() != nil {
					return fmt.Errorf("change stream ended: %w", failed.Err())
				}
				return fmt.Errorf("change stream ended")
			}

			before, trashed, known := locate(s, ev.RecordID())
			if err := s.Apply(ctx, ev); err != nil {
				out.failf("Skipping %s event: %v", ev.Type, err)
				continue
			}
			cmd.describe(out, ev, before, trashed, known)
			out.plainf("  %s", summary(s))
		}
	}
}

func (cmd *WatchCommand) describe(out printer, ev wire.ChangeEvent, before library.Book, trashed, known bool) {
	switch ev.Type {
	case wire.EventInsert:
		book, err := library.FromWire(ev.New)
		if err != nil {
			out.infof("Added %s", shortID(ev.RecordID()))
			return
		}
		out.successf("Added %q by %s", book.Title, book.Author)

	case wire.EventUpdate:
		title := before.Title
		if t, ok := ev.New[wire.FieldTitle].(string); ok && t != "" {
			title = t
		}
		nowTrashed := ev.New[wire.FieldDeletedAt] != nil
		_, hasDeletedAt := ev.New[wire.FieldDeletedAt]
		switch {
		case hasDeletedAt && nowTrashed && (!known || !trashed):
			out.warnf("Moved %q to the trash", title)
		case hasDeletedAt && !nowTrashed && known && trashed:
			out.successf("Restored %q", title)
		default:
			out.infof("Updated %q", title)
		}

	case wire.EventDelete:
		if known {
			out.failf("Permanently deleted %q", before.Title)
			return
		}
		out.failf("Permanently deleted %s", shortID(ev.RecordID()))
	}
}

// locate finds id in either partition before an event is applied.
func locate(s *library.Synchronizer, id string) (book library.Book, trashed, found bool) {
	for _, b := range s.Active() {
		if b.ID == id {
			return b, false, true
		}
	}
	for _, b := range s.Trash() {
		if b.ID == id {
			return b.Book, true, true
		}
	}
	return library.Book{}, false, false
}

func summary(s *library.Synchronizer) string {
	st := s.Statistics()
	return fmt.Sprintf("%d books, %d reading, %d completed, %d in the trash",
		st.Total, st.Reading, st.Completed, len(s.Trash()))
}
