package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mrlokans/storynest/internal/library"
)

// BooksCommand lists the collection. Filters combine: a book is shown only
// when it matches every filter given.
type BooksCommand struct {
	clientFlags
	Search    string
	TitleOnly bool
	Status    string
	Author    string
	Favorites bool
	Trash     bool

	status library.Status
}

func NewBooksCommand() *BooksCommand {
	return &BooksCommand{}
}

func (cmd *BooksCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("books", flag.ContinueOnError)
	cmd.bind(fs)
	fs.StringVar(&cmd.Search, "search", "", "Only books whose title or author contains this text")
	fs.BoolVar(&cmd.TitleOnly, "title-only", false, "Match -search against titles only")
	fs.StringVar(&cmd.Status, "status", "", "Only books with this status (unread, reading, completed)")
	fs.StringVar(&cmd.Author, "author", "", "Only books by exactly this author")
	fs.BoolVar(&cmd.Favorites, "favorites", false, "Only favorite books")
	fs.BoolVar(&cmd.Trash, "trash", false, "List the trash instead of the active books")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s books [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "List the books in your collection.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s books -status reading\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s books -search austen -favorites\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.Status != "" {
		status, err := library.ParseStatus(cmd.Status)
		if err != nil {
			return err
		}
		cmd.status = status
	}
	if cmd.Trash && (cmd.Search != "" || cmd.Status != "" || cmd.Author != "" || cmd.Favorites) {
		return fmt.Errorf("-trash cannot be combined with other filters")
	}
	return nil
}

func (cmd *BooksCommand) Run() error {
	ctx, cancel := commandContext()
	defer cancel()

	ws, err := openWorkspace(ctx, cmd.ConfigPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	out := cmd.printer()
	s := ws.books()

	if cmd.Trash {
		trash := s.Trash()
		if len(trash) == 0 {
			out.infof("The trash is empty")
			return nil
		}
		out.trashTable(trash)
		out.plainf("\n%d books in the trash", len(trash))
		return nil
	}

	books := cmd.filter(s)
	if len(books) == 0 {
		out.infof("No books found")
		return nil
	}
	out.bookTable(books)
	out.plainf("\n%d of %d books", len(books), len(s.Active()))
	return nil
}

// filter runs each requested view and keeps the books every view returned,
// in active-set order.
func (cmd *BooksCommand) filter(s *library.Synchronizer) []library.Book {
	var views [][]library.Book
	if cmd.Search != "" {
		if cmd.TitleOnly {
			views = append(views, s.FilteredBySearch(cmd.Search))
		} else {
			views = append(views, s.SearchTitleOrAuthor(cmd.Search))
		}
	}
	if cmd.status != "" {
		views = append(views, s.ByStatus(cmd.status))
	}
	if cmd.Author != "" {
		views = append(views, s.ByAuthor(cmd.Author))
	}
	if cmd.Favorites {
		views = append(views, s.Favorites())
	}
	return intersect(s.Active(), views...)
}

func intersect(base []library.Book, views ...[]library.Book) []library.Book {
	counts := make(map[string]int, len(base))
	for _, view := range views {
		for _, b := range view {
			counts[b.ID]++
		}
	}
	out := make([]library.Book, 0, len(base))
	for _, b := range base {
		if counts[b.ID] == len(views) {
			out = append(out, b)
		}
	}
	return out
}

// bookFields are the editable fields shared by add and update.
type bookFields struct {
	Title     string
	Author    string
	CoverURL  string
	Status    string
	Rating    int
	Note      string
	Category  string
	Favorite  bool
	Started   string
	Completed string
}

func (f *bookFields) bind(fs *flag.FlagSet) {
	fs.StringVar(&f.Title, "title", "", "Book title")
	fs.StringVar(&f.Author, "author", "", "Author")
	fs.StringVar(&f.CoverURL, "cover", "", "Cover image URL")
	fs.StringVar(&f.Status, "status", "", "Reading status (unread, reading, completed)")
	fs.IntVar(&f.Rating, "rating", 0, fmt.Sprintf("Rating from 0 to %d", library.MaxRating))
	fs.StringVar(&f.Note, "note", "", "Free-form note")
	fs.StringVar(&f.Category, "category", "", "Category")
	fs.BoolVar(&f.Favorite, "favorite", false, "Mark as favorite")
	fs.StringVar(&f.Started, "started", "", "Start date (YYYY-MM-DD, or 'none' to clear)")
	fs.StringVar(&f.Completed, "completed", "", "Completion date (YYYY-MM-DD, or 'none' to clear)")
}

const dateLayout = "2006-01-02"

// parseDate reads a -started or -completed value. "none" clears the date.
func parseDate(flagName, value string) (library.OptionalTime, error) {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "none") {
		return library.ClearTime(), nil
	}
	t, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		return library.OptionalTime{}, fmt.Errorf("invalid -%s date %q, expected YYYY-MM-DD", flagName, value)
	}
	return library.SetTime(t), nil
}

// AddCommand adds a book to the collection.
type AddCommand struct {
	clientFlags
	bookFields

	draft library.Draft
}

func NewAddCommand() *AddCommand {
	return &AddCommand{}
}

func (cmd *AddCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	cmd.clientFlags.bind(fs)
	cmd.bookFields.bind(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s add -title <title> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Add a book. Missing authors become %q and missing covers get a placeholder.\n\n", library.DefaultAuthor)
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(cmd.Title) == "" {
		return fmt.Errorf("required flag -title not provided")
	}

	d := library.Draft{
		Title:      cmd.Title,
		Author:     cmd.Author,
		CoverURL:   cmd.CoverURL,
		Rating:     cmd.Rating,
		Note:       cmd.Note,
		Category:   cmd.Category,
		IsFavorite: cmd.Favorite,
	}
	if cmd.Status != "" {
		status, err := library.ParseStatus(cmd.Status)
		if err != nil {
			return err
		}
		d.Status = status
	}
	for name, value := range map[string]string{"started": cmd.Started, "completed": cmd.Completed} {
		if value == "" {
			continue
		}
		date, err := parseDate(name, value)
		if err != nil {
			return err
		}
		if name == "started" {
			d.StartedAt = date.Value
		} else {
			d.CompletedAt = date.Value
		}
	}
	if err := d.Validate(); err != nil {
		return err
	}
	cmd.draft = d
	return nil
}

func (cmd *AddCommand) Run() error {
	ctx, cancel := commandContext()
	defer cancel()

	ws, err := openWorkspace(ctx, cmd.ConfigPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	book, err := ws.books().Add(ctx, cmd.draft)
	if err != nil {
		return err
	}
	cmd.printer().successf("Added %q by %s (%s)", book.Title, book.Author, shortID(book.ID))
	return nil
}

// UpdateCommand changes the fields given on the command line and leaves the
// rest alone.
type UpdateCommand struct {
	clientFlags
	bookFields
	ID string

	patch library.Patch
}

func NewUpdateCommand() *UpdateCommand {
	return &UpdateCommand{}
}

func (cmd *UpdateCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	cmd.clientFlags.bind(fs)
	cmd.bookFields.bind(fs)
	fs.StringVar(&cmd.ID, "id", "", "Book id or unique id prefix (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s update -id <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Update a book. Only the options given are changed. Moving a book to\n")
		fmt.Fprintf(os.Stderr, "'reading' or 'completed' stamps the matching date unless one is given.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s update -id 3f2a -status completed -rating 5\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s update -id 3f2a -favorite=false -note \"\"\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(cmd.ID) == "" {
		return errMissingBookID
	}

	patch, err := cmd.buildPatch(fs)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return fmt.Errorf("nothing to update, pass at least one field option")
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	cmd.patch = patch
	return nil
}

// buildPatch includes exactly the flags that were set, so -note "" clears
// the note while an omitted -note leaves it alone.
func (cmd *UpdateCommand) buildPatch(fs *flag.FlagSet) (library.Patch, error) {
	var p library.Patch
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "title":
			p.Title = library.Ptr(cmd.Title)
		case "author":
			p.Author = library.Ptr(cmd.Author)
		case "cover":
			p.CoverURL = library.Ptr(cmd.CoverURL)
		case "status":
			var status library.Status
			if status, err = library.ParseStatus(cmd.Status); err == nil {
				p.Status = &status
			}
		case "rating":
			p.Rating = library.Ptr(cmd.Rating)
		case "note":
			p.Note = library.Ptr(cmd.Note)
		case "category":
			p.Category = library.Ptr(cmd.Category)
		case "favorite":
			p.IsFavorite = library.Ptr(cmd.Favorite)
		case "started":
			p.StartedAt, err = parseDate("started", cmd.Started)
		case "completed":
			p.CompletedAt, err = parseDate("completed", cmd.Completed)
		}
	})
	return p, err
}

func (cmd *UpdateCommand) Run() error {
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
	if err := ws.books().Update(ctx, id, cmd.patch); err != nil {
		return err
	}
	cmd.printer().successf("Updated %s", shortID(id))
	return nil
}
