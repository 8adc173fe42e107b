package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mrlokans/storynest/internal/identity"
	"github.com/mrlokans/storynest/internal/library"
	"github.com/mrlokans/storynest/internal/remote"
)

var (
	errNotSignedIn   = errors.New("not signed in, run 'login' first")
	errAmbiguousID   = errors.New("id prefix matches more than one book")
	errMissingBookID = errors.New("required flag -id not provided")
)

// clientFlags are shared by every command that talks to a server.
type clientFlags struct {
	ConfigPath string

	// Out receives user-facing output. Defaults to color.Output.
	Out io.Writer
	// In is read for passwords that were not passed as flags.
	In io.Reader
}

func (f *clientFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", DefaultClientConfigPath(), "Path to the client config file")
}

func (f *clientFlags) setOutput(out io.Writer) {
	f.Out = out
}

func (f *clientFlags) printer() printer {
	return newPrinter(f.Out)
}

func (f *clientFlags) input() io.Reader {
	if f.In != nil {
		return f.In
	}
	return os.Stdin
}

// commandContext is cancelled on Ctrl-C.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// workspace is a loaded, live copy of the signed-in user's collection.
type workspace struct {
	config   ClientConfig
	client   *remote.Client
	provider *identity.Provider
	session  *library.Session
}

// connect builds a client from the stored config and checks its token.
func connect(ctx context.Context, configPath string) (ClientConfig, *remote.Client, identity.Identity, error) {
	cfg, err := LoadClientConfig(configPath)
	if err != nil {
		return cfg, nil, identity.Identity{}, err
	}
	if cfg.Token == "" {
		return cfg, nil, identity.Identity{}, errNotSignedIn
	}

	client, err := remote.New(remote.Options{ServerURL: cfg.ServerURL, Token: cfg.Token})
	if err != nil {
		return cfg, nil, identity.Identity{}, err
	}

	meCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()
	me, err := client.Me(meCtx)
	if errors.Is(err, remote.ErrUnauthorized) {
		return cfg, nil, identity.Identity{}, fmt.Errorf("%w (the stored token was rejected)", errNotSignedIn)
	}
	if err != nil {
		return cfg, nil, identity.Identity{}, err
	}
	return cfg, client, me, nil
}

// openWorkspace signs in with the stored token and starts a session, which
// subscribes to the change feed and loads both partitions.
func openWorkspace(ctx context.Context, configPath string) (*workspace, error) {
	cfg, client, me, err := connect(ctx, configPath)
	if err != nil {
		return nil, err
	}

	provider := identity.NewProvider()
	provider.SignIn(me)

	session := library.NewSession(client, library.Options{OperationTimeout: cfg.Timeout()})
	if err := session.Start(ctx, provider.Current()); err != nil {
		return nil, fmt.Errorf("loading library: %w", err)
	}

	return &workspace{
		config:   cfg,
		client:   client,
		provider: provider,
		session:  session,
	}, nil
}

func (w *workspace) books() *library.Synchronizer {
	return w.session.Synchronizer()
}

func (w *workspace) Close() {
	w.session.Teardown()
}

// resolveID expands ref to a full book id. A ref may be a full id or a
// unique prefix of one. A ref matching nothing locally is returned as is so
// the server gets the final word.
func (w *workspace) resolveID(ref string) (string, error) {
	return resolveID(w.books(), ref)
}

func resolveID(s *library.Synchronizer, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errMissingBookID
	}

	var ids []string
	for _, b := range s.Active() {
		ids = append(ids, b.ID)
	}
	for _, b := range s.Trash() {
		ids = append(ids, b.ID)
	}

	var matches []string
	for _, id := range ids {
		if id == ref {
			return id, nil
		}
		if strings.HasPrefix(id, ref) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return ref, nil
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("%w: %q", errAmbiguousID, ref)
}

// readPassword returns the password from the STORYNEST_PASSWORD variable or
// the first line of in.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if pw := os.Getenv("STORYNEST_PASSWORD"); pw != "" {
		return pw, nil
	}
	return promptLine(bufio.NewReader(in), prompt, "Password: ")
}

func promptLine(in *bufio.Reader, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
