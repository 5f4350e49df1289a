// Package app is the top-level runtime for edsync. Two modes: "hub"
// serves the window relay and collaboration fanout, "monitor" attaches
// to a hub and mirrors a document with its remote markers in the
// terminal.
package app

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"

	"github.com/rkravets/edsync/internal/collab"
	"github.com/rkravets/edsync/internal/config"
	"github.com/rkravets/edsync/internal/gitinfo"
	"github.com/rkravets/edsync/internal/group"
	"github.com/rkravets/edsync/internal/logger"
	"github.com/rkravets/edsync/internal/presence"
	"github.com/rkravets/edsync/internal/relay"
	"github.com/rkravets/edsync/internal/session"
	"github.com/rkravets/edsync/internal/store"
	"github.com/rkravets/edsync/internal/termview"
)

// App is the top-level runtime for edsync.
type App struct {
	args []string
}

func New(args []string) *App {
	return &App{args: args}
}

func (a *App) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(os.Getenv("EDSYNC_DEBUG") != ""); err != nil {
		return err
	}
	defer logger.Close()

	mode := "monitor"
	args := a.args
	if len(args) > 0 {
		mode = args[0]
		args = args[1:]
	}

	switch mode {
	case "hub":
		return a.runHub(cfg)
	case "monitor":
		return a.runMonitor(cfg, args)
	default:
		return fmt.Errorf("unknown mode %q (want hub or monitor)", mode)
	}
}

func (a *App) runHub(cfg config.Config) error {
	hub := relay.NewHub(cfg.Hub.AllowAnyOrigin)
	logger.Info("hub listening", "addr", cfg.Hub.ListenAddr)
	return hub.ListenAndServe(cfg.Hub.ListenAddr)
}

func (a *App) runMonitor(cfg config.Config, paths []string) error {
	langs, err := config.LoadLanguages()
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	groups := group.NewManager(store.NewFileStore(cwd, langs))

	var sess *session.Manager
	if cfg.Session.Persist {
		sess, err = session.NewManager(cfg.Session.AutosaveInterval())
		if err != nil {
			return err
		}
		sess.Restore(groups)
		defer func() {
			sess.Capture(groups)
			sess.Stop()
		}()
	}
	for _, p := range paths {
		if _, err := groups.OpenFile(p); err != nil {
			return err
		}
	}
	if groups.ActivePath() == "" {
		return fmt.Errorf("no document to monitor, pass a file path")
	}

	s, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	defer s.Fini()

	dir := presence.NewDirectory(cfg.Presence.CursorColors)
	view := termview.New(dir)
	view.SetBranch(gitinfo.Branch(cwd))
	lines := func(path string) []string {
		return groups.LinesOf(path)
	}
	cs := collab.NewSession(dir, view, lines, cfg.Session.MaxCollaborators)
	defer cs.Close()
	cs.SetViewedPath(groups.ActivePath())

	conn, err := dialCollab(cfg.Hub.URL)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				logger.Info("collab stream closed", "error", err)
				_ = s.PostEvent(tcell.NewEventInterrupt(nil))
				return
			}
			if err := cs.HandleEvent(data); err != nil {
				logger.Warn("bad collab event", "error", err)
				continue
			}
			_ = s.PostEvent(tcell.NewEventInterrupt(nil))
		}
	}()

	stopTick := make(chan struct{})
	defer close(stopTick)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stopTick:
				return
			case <-ticker.C:
				cs.ExpireStale(time.Now().Add(-cfg.Presence.HeartbeatTimeout()))
				_ = s.PostEvent(tcell.NewEventInterrupt(nil))
			}
		}
	}()

	for {
		doc, ok := groups.Document(groups.ActivePath())
		if !ok {
			return nil
		}
		view.Render(s, doc)

		switch ev := s.PollEvent().(type) {
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q':
				return nil
			case ev.Key() == tcell.KeyTab:
				a.cycleDocument(groups, cs)
			}
		case *tcell.EventResize:
			s.Sync()
		case *tcell.EventInterrupt:
			// state changed, fall through to re-render
		}
	}
}

// cycleDocument activates the next open document and points the
// collaboration session at it.
func (a *App) cycleDocument(groups *group.Manager, cs *collab.Session) {
	open := groups.OpenPaths()
	if len(open) < 2 {
		return
	}
	active := groups.ActivePath()
	next := open[0]
	for i, p := range open {
		if p == active {
			next = open[(i+1)%len(open)]
			break
		}
	}
	if _, err := groups.OpenFile(next); err != nil {
		logger.Warn("cycle to next document failed", "path", next, "error", err)
		return
	}
	cs.SetViewedPath(next)
}

// dialCollab connects to the hub's collaboration fanout endpoint. The
// configured URL names the /ws endpoint; the fanout lives at /collab
// on the same host.
func dialCollab(hubURL string) (*websocket.Conn, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return nil, fmt.Errorf("parse hub url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws") + "/collab"
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return conn, nil
}
