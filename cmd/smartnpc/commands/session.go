package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/smartnpc/smartnpc-go/pkg/cli"
	"github.com/smartnpc/smartnpc-go/pkg/history"
	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

const connectTimeout = 30 * time.Second

// session is a ready connection with its loop running in the background.
// Callbacks run on the loop goroutine; commands hand results back over
// channels.
type session struct {
	cliCtx *cli.Context
	conn   *smartnpc.Connection
	stop   context.CancelFunc
}

// interruptible returns a context canceled by Ctrl-C.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openSession connects with the selected context and waits for "ready".
func openSession(ctx context.Context) (*session, error) {
	c, err := getContext()
	if err != nil {
		return nil, err
	}
	cfg := c.ConnectionConfig()
	cfg.Logger = smartnpc.SlogLogger(newLogger())

	host := cfg.Host
	if host == "" {
		host = smartnpc.DefaultHost
	}
	printer().Debug("Using context: %s", c.Name)
	printer().Debug("Connecting to %s", host)

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	conn, err := smartnpc.Connect(dialCtx, cfg)
	if err != nil {
		return nil, err
	}

	loopCtx, stop := context.WithCancel(context.Background())
	go conn.Loop().Run(loopCtx)
	s := &session{cliCtx: c, conn: conn, stop: stop}

	if err := conn.WaitReady(dialCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("waiting for ready: %w", err)
	}
	printer().Debug("Connection ready")
	return s, nil
}

func (s *session) Close() {
	s.stop()
	s.conn.Close()
}

// character creates a character and waits until its info and history are
// loaded.
func (s *session) character(ctx context.Context, id string, opts smartnpc.CharacterOptions) (*smartnpc.Character, error) {
	ch := smartnpc.NewCharacter(s.conn, id, opts)
	ready := make(chan struct{}, 1)
	failed := make(chan error, 1)
	readySub := ch.OnReady(func() { offer(ready, struct{}{}) })
	errSub := ch.OnError(func(err error) { offer(failed, err) })
	defer readySub.Cancel()
	defer errSub.Cancel()
	ch.Init()

	var timeout <-chan time.Time
	if s.cliCtx.Timeout > 0 {
		timeout = time.After(time.Duration(s.cliCtx.Timeout) * time.Second)
	}
	select {
	case <-ready:
		return ch, nil
	case err := <-failed:
		ch.Close()
		return nil, err
	case <-timeout:
		ch.Close()
		return nil, fmt.Errorf("character %s: %w", id, smartnpc.ErrTimeout)
	case <-ctx.Done():
		ch.Close()
		return nil, ctx.Err()
	}
}

// openCache opens the local history cache of a context.
func openCache(c *cli.Context) (*history.Badger, error) {
	paths, err := cli.NewPaths(appName)
	if err != nil {
		return nil, err
	}
	dir, err := cli.EnsureDir(paths.HistoryDir(c.Name))
	if err != nil {
		return nil, fmt.Errorf("create history cache: %w", err)
	}
	printer().Debug("History cache: %s", dir)
	return history.NewBadger(history.BadgerOptions{Dir: dir})
}
