package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/storynest/internal/cli"
	"github.com/mrlokans/storynest/internal/config"
	"github.com/mrlokans/storynest/internal/entrypoint"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

// command is a client subcommand.
type command interface {
	ParseFlags(args []string) error
	Run() error
}

var commands = map[string]func() command{
	"login":        func() command { return cli.NewLoginCommand() },
	"register":     func() command { return cli.NewRegisterCommand() },
	"logout":       func() command { return cli.NewLogoutCommand() },
	"profile":      func() command { return cli.NewProfileCommand() },
	"passwd":       func() command { return cli.NewPasswdCommand() },
	"books":        func() command { return cli.NewBooksCommand() },
	"add":          func() command { return cli.NewAddCommand() },
	"update":       func() command { return cli.NewUpdateCommand() },
	"favorite":     func() command { return cli.NewFavoriteCommand() },
	"delete":       func() command { return cli.NewDeleteCommand() },
	"restore":      func() command { return cli.NewRestoreCommand() },
	"purge":        func() command { return cli.NewPurgeCommand() },
	"empty-trash":  func() command { return cli.NewEmptyTrashCommand() },
	"stats":        func() command { return cli.NewStatsCommand() },
	"authors":      func() command { return cli.NewAuthorsCommand() },
	"upload-cover": func() command { return cli.NewUploadCoverCommand() },
	"watch":        func() command { return cli.NewWatchCommand() },
}

func main() {
	// If no arguments or "serve" command, run the HTTP server
	if len(os.Args) < 2 || os.Args[1] == "serve" {
		cfg := config.NewConfig()
		entrypoint.Run(cfg, Version)
		return
	}

	name := os.Args[1]
	args := os.Args[2:]

	switch name {
	case "-h", "--help", "help":
		printUsage()
		return
	case "version", "--version":
		fmt.Printf("storynest %s (%s)\n", Version, Commit)
		return
	}

	newCommand, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	cmd := newCommand()
	if err := cmd.ParseFlags(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Server:\n")
	fmt.Fprintf(os.Stderr, "  serve         Start the HTTP server (default if no command given)\n")
	fmt.Fprintf(os.Stderr, "\nAccount:\n")
	fmt.Fprintf(os.Stderr, "  register      Create an account and sign in\n")
	fmt.Fprintf(os.Stderr, "  login         Sign in and store the API token\n")
	fmt.Fprintf(os.Stderr, "  logout        Revoke and forget the stored token\n")
	fmt.Fprintf(os.Stderr, "  profile       Show or change name, user name and profile picture\n")
	fmt.Fprintf(os.Stderr, "  passwd        Change the account password\n")
	fmt.Fprintf(os.Stderr, "\nBooks:\n")
	fmt.Fprintf(os.Stderr, "  books         List books, with optional filters or the trash\n")
	fmt.Fprintf(os.Stderr, "  add           Add a book\n")
	fmt.Fprintf(os.Stderr, "  update        Change fields of a book\n")
	fmt.Fprintf(os.Stderr, "  favorite      Toggle the favorite mark of a book\n")
	fmt.Fprintf(os.Stderr, "  delete        Move a book to the trash\n")
	fmt.Fprintf(os.Stderr, "  restore       Bring a book back from the trash\n")
	fmt.Fprintf(os.Stderr, "  purge         Permanently delete a book\n")
	fmt.Fprintf(os.Stderr, "  empty-trash   Permanently delete everything in the trash\n")
	fmt.Fprintf(os.Stderr, "  upload-cover  Upload a cover image, optionally setting it on a book\n")
	fmt.Fprintf(os.Stderr, "\nReports:\n")
	fmt.Fprintf(os.Stderr, "  stats         Reading statistics\n")
	fmt.Fprintf(os.Stderr, "  authors       Authors with book counts\n")
	fmt.Fprintf(os.Stderr, "  watch         Follow changes from every device as they happen\n")
	fmt.Fprintf(os.Stderr, "\nUse '%s <command> -h' for help on a specific command.\n", os.Args[0])
}
