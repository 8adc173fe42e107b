package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mrlokans/storynest/internal/identity"
	"github.com/mrlokans/storynest/internal/remote"
)

// AccountCommand signs in to a server, or creates an account on it, and
// stores the resulting API token in the client config.
type AccountCommand struct {
	clientFlags
	ServerURL string
	Email     string
	Password  string
	Name      string

	register bool
}

func NewLoginCommand() *AccountCommand {
	return &AccountCommand{}
}

func NewRegisterCommand() *AccountCommand {
	return &AccountCommand{register: true}
}

func (cmd *AccountCommand) name() string {
	if cmd.register {
		return "register"
	}
	return "login"
}

func (cmd *AccountCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet(cmd.name(), flag.ContinueOnError)
	cmd.bind(fs)
	fs.StringVar(&cmd.ServerURL, "server", "", "Server URL (defaults to the one in the config, then "+defaultServerURL+")")
	fs.StringVar(&cmd.Email, "email", "", "Account email (required)")
	fs.StringVar(&cmd.Password, "password", "", "Account password (read from STORYNEST_PASSWORD or stdin when omitted)")
	if cmd.register {
		fs.StringVar(&cmd.Name, "name", "", "Display name (defaults to the part of the email before @)")
	}

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s -email <address> [options]\n\n", os.Args[0], cmd.name())
		if cmd.register {
			fmt.Fprintf(os.Stderr, "Create an account and sign in to it.\n\n")
		} else {
			fmt.Fprintf(os.Stderr, "Sign in and remember the API token for the other commands.\n\n")
		}
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(cmd.Email) == "" {
		return fmt.Errorf("required flag -email not provided")
	}
	return nil
}

func (cmd *AccountCommand) Run() error {
	out := cmd.printer()

	cfg, err := LoadClientConfig(cmd.ConfigPath)
	if err != nil {
		return err
	}
	if cmd.ServerURL != "" {
		cfg.ServerURL = cmd.ServerURL
	}

	client, err := remote.New(remote.Options{ServerURL: cfg.ServerURL})
	if err != nil {
		return err
	}

	password := cmd.Password
	if password == "" {
		if password, err = readPassword(cmd.input(), os.Stderr); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	var signIn remote.SignIn
	if cmd.register {
		signIn, err = client.Register(ctx, cmd.Email, password, cmd.Name)
	} else {
		signIn, err = client.Login(ctx, cmd.Email, password)
	}
	if err != nil {
		return err
	}

	cfg.ServerURL = client.ServerURL()
	cfg.Token = signIn.Token
	if err := SaveClientConfig(cmd.ConfigPath, cfg); err != nil {
		return err
	}

	if cmd.register {
		out.successf("Created account for %s", signIn.User.Email)
	}
	out.successf("Signed in to %s as %s <%s>", cfg.ServerURL, signIn.User.Name, signIn.User.Email)
	return nil
}

// LogoutCommand revokes the stored token and removes it from the config.
type LogoutCommand struct {
	clientFlags
}

func NewLogoutCommand() *LogoutCommand {
	return &LogoutCommand{}
}

func (cmd *LogoutCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	cmd.bind(fs)
	return fs.Parse(args)
}

func (cmd *LogoutCommand) Run() error {
	out := cmd.printer()

	cfg, err := LoadClientConfig(cmd.ConfigPath)
	if err != nil {
		return err
	}
	if cfg.Token == "" {
		out.infof("Not signed in")
		return nil
	}

	client, err := remote.New(remote.Options{ServerURL: cfg.ServerURL, Token: cfg.Token})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()
	if err := client.Logout(ctx); err != nil && !errors.Is(err, remote.ErrUnauthorized) {
		return err
	}

	cfg.Token = ""
	if err := SaveClientConfig(cmd.ConfigPath, cfg); err != nil {
		return err
	}
	out.successf("Signed out of %s", cfg.ServerURL)
	return nil
}

// ProfileCommand shows the signed-in account, or changes it when any of its
// flags are given.
type ProfileCommand struct {
	clientFlags
	Name       string
	Username   string
	AvatarFile string
	AvatarURL  string

	changes remote.ProfileChanges
}

func NewProfileCommand() *ProfileCommand {
	return &ProfileCommand{}
}

func (cmd *ProfileCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	cmd.bind(fs)
	fs.StringVar(&cmd.Name, "name", "", "Display name (empty to clear)")
	fs.StringVar(&cmd.Username, "username", "", "User name, shown when no display name is set")
	fs.StringVar(&cmd.AvatarFile, "avatar", "", "Image file to upload as profile picture")
	fs.StringVar(&cmd.AvatarURL, "avatar-url", "", "Profile picture URL (empty to remove)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s profile [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Show the signed-in account, or change it with the flags below.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd.changes = remote.ProfileChanges{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cmd.changes.Name = &cmd.Name
		case "username":
			cmd.changes.Username = &cmd.Username
		case "avatar-url":
			cmd.changes.AvatarURL = &cmd.AvatarURL
		}
	})
	if cmd.AvatarFile != "" && cmd.changes.AvatarURL != nil {
		return fmt.Errorf("-avatar and -avatar-url cannot be combined")
	}
	return nil
}

func (cmd *ProfileCommand) changing() bool {
	c := cmd.changes
	return cmd.AvatarFile != "" || c.Name != nil || c.Username != nil || c.AvatarURL != nil
}

func (cmd *ProfileCommand) Run() error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, client, me, err := connect(ctx, cmd.ConfigPath)
	if err != nil {
		return err
	}
	out := cmd.printer()
	if !cmd.changing() {
		printProfile(out, me)
		return nil
	}

	ctx, cancelOp := context.WithTimeout(ctx, cfg.Timeout())
	defer cancelOp()

	changes := cmd.changes
	if cmd.AvatarFile != "" {
		file, err := os.Open(cmd.AvatarFile)
		if err != nil {
			return fmt.Errorf("failed to open avatar: %w", err)
		}
		defer file.Close()
		url, err := client.UploadAvatar(ctx, cmd.AvatarFile, file)
		if err != nil {
			return err
		}
		changes.AvatarURL = &url
	}

	updated, err := client.UpdateProfile(ctx, changes)
	if err != nil {
		return err
	}
	out.successf("Profile updated")
	printProfile(out, updated)
	return nil
}

func printProfile(out printer, id identity.Identity) {
	out.plainf("Name:   %s", id.Name)
	out.plainf("Email:  %s", id.Email)
	if id.AvatarURL != "" {
		out.plainf("Avatar: %s", id.AvatarURL)
	}
}

// PasswdCommand changes the account password. The stored token keeps working.
type PasswdCommand struct {
	clientFlags
	Current string
	New     string
}

func NewPasswdCommand() *PasswdCommand {
	return &PasswdCommand{}
}

func (cmd *PasswdCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	cmd.bind(fs)
	fs.StringVar(&cmd.Current, "current", "", "Current password (read from stdin when omitted)")
	fs.StringVar(&cmd.New, "new", "", "New password, at least 12 characters (read from stdin when omitted)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s passwd [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Change the account password.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

func (cmd *PasswdCommand) Run() error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, client, _, err := connect(ctx, cmd.ConfigPath)
	if err != nil {
		return err
	}

	current, next := cmd.Current, cmd.New
	if current == "" || next == "" {
		in := bufio.NewReader(cmd.input())
		if current == "" {
			if current, err = promptLine(in, os.Stderr, "Current password: "); err != nil {
				return err
			}
		}
		if next == "" {
			if next, err = promptLine(in, os.Stderr, "New password: "); err != nil {
				return err
			}
		}
	}

	ctx, cancelOp := context.WithTimeout(ctx, cfg.Timeout())
	defer cancelOp()
	if err := client.ChangePassword(ctx, current, next); err != nil {
		return err
	}
	cmd.printer().successf("Password changed")
	return nil
}
