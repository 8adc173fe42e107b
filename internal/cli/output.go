package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/mrlokans/storynest/internal/library"
)

var (
	colorRed    = color.New(color.FgRed)
	colorGreen  = color.New(color.FgGreen)
	colorYellow = color.New(color.FgYellow)
	colorBlue   = color.New(color.FgBlue)
	colorGray   = color.New(color.FgHiBlack)
)

// printer writes status lines for the client commands.
type printer struct {
	out io.Writer
}

func newPrinter(out io.Writer) printer {
	if out == nil {
		out = color.Output
	}
	return printer{out: out}
}

func (p printer) infof(msg string, v ...any) {
	fmt.Fprintf(p.out, "%s %s\n", colorBlue.Sprint("•"), fmt.Sprintf(msg, v...))
}

func (p printer) successf(msg string, v ...any) {
	fmt.Fprintf(p.out, "%s %s\n", colorGreen.Sprint("✔"), fmt.Sprintf(msg, v...))
}

func (p printer) warnf(msg string, v ...any) {
	fmt.Fprintf(p.out, "%s %s\n", colorYellow.Sprint("!"), fmt.Sprintf(msg, v...))
}

func (p printer) failf(msg string, v ...any) {
	fmt.Fprintf(p.out, "%s %s\n", colorRed.Sprint("⨯"), fmt.Sprintf(msg, v...))
}

func (p printer) plainf(msg string, v ...any) {
	fmt.Fprintf(p.out, msg+"\n", v...)
}

// shortID is how ids are shown in listings. Commands accept any unique
// prefix, so the short form can be typed back.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func stars(rating int) string {
	if rating <= 0 {
		return ""
	}
	if rating > library.MaxRating {
		rating = library.MaxRating
	}
	return strings.Repeat("★", rating) + strings.Repeat("☆", library.MaxRating-rating)
}

func statusLabel(s library.Status) string {
	switch s {
	case library.StatusReading:
		return colorYellow.Sprint(string(s))
	case library.StatusCompleted:
		return colorGreen.Sprint(string(s))
	}
	return colorGray.Sprint(string(s))
}

func (p printer) bookTable(books []library.Book) {
	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tSTATUS\tRATING\tFAV")
	for _, b := range books {
		fav := ""
		if b.IsFavorite {
			fav = "♥"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(b.ID), b.Title, b.Author, statusLabel(b.Status), stars(b.Rating), fav)
	}
	w.Flush()
}

func (p printer) trashTable(books []library.DeletedBook) {
	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tDELETED")
	for _, b := range books {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			shortID(b.ID), b.Title, b.Author, b.DeletedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func (p printer) statistics(st library.Statistics) {
	p.plainf("Books:      %d", st.Total)
	p.plainf("Unread:     %d (%d%%)", st.Unread, st.UnreadPercent)
	p.plainf("Reading:    %d (%d%%)", st.Reading, st.ReadingPercent)
	p.plainf("Completed:  %d (%d%%)", st.Completed, st.CompletedPercent)
	p.plainf("Favorites:  %d", st.Favorites)
	p.plainf("Progress:   %d%%", st.Progress)
}
