package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrlokans/storynest/internal/library"
)

// StatsCommand prints reading statistics for the active books.
type StatsCommand struct {
	clientFlags
	JSON bool
}

func NewStatsCommand() *StatsCommand {
	return &StatsCommand{}
}

func (cmd *StatsCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	cmd.bind(fs)
	fs.BoolVar(&cmd.JSON, "json", false, "Print the statistics as JSON")
	return fs.Parse(args)
}

func (cmd *StatsCommand) Run() error {
	ctx, cancel := commandContext()
	defer cancel()

	ws, err := openWorkspace(ctx, cmd.ConfigPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	out := cmd.printer()
	st := ws.books().Statistics()
	if cmd.JSON {
		enc := json.NewEncoder(out.out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	out.statistics(st)
	return nil
}

// AuthorsCommand lists every author in the active set with a book count.
type AuthorsCommand struct {
	clientFlags
}

func NewAuthorsCommand() *AuthorsCommand {
	return &AuthorsCommand{}
}

func (cmd *AuthorsCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("authors", flag.ContinueOnError)
	cmd.bind(fs)
	return fs.Parse(args)
}

func (cmd *AuthorsCommand) Run() error {
	ctx, cancel := commandContext()
	defer cancel()

	ws, err := openWorkspace(ctx, cmd.ConfigPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	out := cmd.printer()
	s := ws.books()
	authors := s.Authors()
	if len(authors) == 0 {
		out.infof("No authors yet")
		return nil
	}
	for _, author := range authors {
		out.plainf("%s (%d)", author, len(s.ByAuthor(author)))
	}
	return nil
}

// UploadCoverCommand uploads an image and optionally sets it as a book's
// cover.
type UploadCoverCommand struct {
	clientFlags
	File string
	ID   string
}

func NewUploadCoverCommand() *UploadCoverCommand {
	return &UploadCoverCommand{}
}

func (cmd *UploadCoverCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("upload-cover", flag.ContinueOnError)
	cmd.bind(fs)
	fs.StringVar(&cmd.File, "file", "", "Path to the image (required)")
	fs.StringVar(&cmd.ID, "id", "", "Book to use the uploaded image as cover for")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s upload-cover -file <path> [-id <book>] [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Upload a cover image. Wide images are scaled down by the server.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(cmd.File) == "" {
		return fmt.Errorf("required flag -file not provided")
	}
	return nil
}

func (cmd *UploadCoverCommand) Run() error {
	file, err := os.Open(cmd.File)
	if err != nil {
		return fmt.Errorf("failed to open cover: %w", err)
	}
	defer file.Close()

	ctx, cancel := commandContext()
	defer cancel()

	ws, err := openWorkspace(ctx, cmd.ConfigPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	out := cmd.printer()
	url, err := ws.client.UploadCover(ctx, filepath.Base(cmd.File), file)
	if err != nil {
		return err
	}
	out.successf("Uploaded %s", url)

	if cmd.ID == "" {
		return nil
	}
	id, err := ws.resolveID(cmd.ID)
	if err != nil {
		return err
	}
	if err := ws.books().Update(ctx, id, library.Patch{CoverURL: library.Ptr(url)}); err != nil {
		return err
	}
	out.successf("Set as cover of %s", shortID(id))
	return nil
}
