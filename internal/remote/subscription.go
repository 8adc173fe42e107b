package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/mrlokans/storynest/internal/library"
	"github.com/mrlokans/storynest/internal/wire"
)

// Stream event names that carry no book change.
const (
	eventConnected = "connected"
	eventHeartbeat = "heartbeat"
)

const (
	subscriptionBuffer = 64
	maxEventBytes      = 1 << 20
)

// Subscription reads the server's change stream. Events stop, and the
// channel closes, when the stream ends or Close is called.
type Subscription struct {
	owner  string
	body   io.ReadCloser
	events chan wire.ChangeEvent
	cancel context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// Subscribe opens the change stream and returns once the server has
// registered it, so no change committed after Subscribe returns is missed.
// The stream lives as long as ctx. Events for any owner other than owner are
// dropped.
func (c *Client) Subscribe(ctx context.Context, owner string) (library.Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := c.newRequest(streamCtx, http.MethodGet, "/api/books/changes", nil, "")
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	res, err := c.do(req)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "opening change stream")
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		res.Body.Close()
		cancel()
		return nil, errors.Wrapf(ErrContentTypeMismatch, "got: '%s' want: 'text/event-stream'", ct)
	}

	sub := &Subscription{
		owner:  owner,
		body:   res.Body,
		events: make(chan wire.ChangeEvent, subscriptionBuffer),
		cancel: cancel,
	}

	reader := newEventReader(res.Body)
	name, _, err := reader.next()
	if err != nil || name != eventConnected {
		sub.Close()
		if err == nil {
			err = errors.Errorf("unexpected first event %q", name)
		}
		return nil, errors.Wrap(err, "waiting for change stream")
	}

	go sub.run(streamCtx, reader)
	return sub, nil
}

// Events returns the change events in the order the server sent them.
func (s *Subscription) Events() <-chan wire.ChangeEvent {
	return s.events
}

// Err returns why the stream ended, or nil if it was closed by the caller.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.body.Close()
	})
	return nil
}

func (s *Subscription) run(ctx context.Context, reader *eventReader) {
	defer close(s.events)
	defer s.Close()

	for {
		name, data, err := reader.next()
		if err != nil {
			if ctx.Err() == nil {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				log.Printf("[REALTIME] Change stream ended: %v", err)
			}
			return
		}

		switch name {
		case eventConnected, eventHeartbeat:
			continue
		}

		var ev wire.ChangeEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			log.Printf("[REALTIME] Skipping malformed %s event: %v", name, err)
			continue
		}
		if ev.Type == "" {
			ev.Type = wire.EventType(name)
		}
		if s.owner != "" && ev.Owner != s.owner {
			continue
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// eventReader parses a text/event-stream body.
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventBytes)
	return &eventReader{scanner: scanner}
}

// next returns the next dispatched event. Comment lines and unknown fields
// are ignored; multiple data lines are joined with newlines.
func (r *eventReader) next() (name, data string, err error) {
	var dataLines []string
	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")
		if line == "" {
			if name == "" && len(dataLines) == 0 {
				continue
			}
			if name == "" {
				name = "message"
			}
			return name, strings.Join(dataLines, "\n"), nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}
	if err := r.scanner.Err(); err != nil {
		return "", "", err
	}
	return "", "", io.EOF
}

var _ library.Subscription = (*Subscription)(nil)
