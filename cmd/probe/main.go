// Command probe is a headless video participant: it logs in, searches for a
// stranger in video mode and drives a real pion peer connection through the
// API until it connects. Two probes against one server exercise the whole
// signaling path.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"randomchat/backend/internal/client"
	"randomchat/backend/internal/config"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/peer"
)

func main() {
	cfg := config.Load()

	baseURL := flag.String("url", cfg.Server.PublicURL, "API base URL")
	timeout := flag.Duration("timeout", time.Minute, "give up after this long")
	hold := flag.Duration("hold", 5*time.Second, "stay connected this long before hanging up")
	deny := flag.Bool("deny-media", false, "simulate a refused camera permission")
	flag.Parse()

	logger.Init(cfg.IsProduction())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, *baseURL, cfg.WebRTC.ICEServers, *hold, *deny); err != nil {
		fmt.Fprintln(os.Stderr, "probe:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, baseURL string, iceServers []string, hold time.Duration, deny bool) error {
	c := client.New(baseURL)
	if err := c.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	logger.Infof("probe %s: logged in", c.UserID)

	events, conn, err := c.Events(ctx)
	if err != nil {
		return fmt.Errorf("event stream: %w", err)
	}
	defer conn.Close()

	if err := c.FindStranger(ctx, models.ModeVideo); err != nil {
		return fmt.Errorf("search: %w", err)
	}

	match, err := awaitMatch(ctx, events)
	if err != nil {
		return err
	}
	logger.Infof("probe %s: matched with %s in %s (initiator=%v)", c.UserID, match.PartnerID, match.SessionID, match.Initiator)

	connected := make(chan struct{})
	var once sync.Once
	m := peer.NewManager(peer.SyntheticDevice{Deny: deny}, peer.NewPionFactory(iceServers), c, peer.Options{
		UserID:    c.UserID,
		SessionID: match.SessionID,
		Initiator: match.Initiator,
		OnStateChange: func(s peer.State) {
			logger.Infof("probe %s: %s", c.UserID, s)
			if s == peer.StateConnected {
				once.Do(func() { close(connected) })
			}
		},
		OnRemoteTrack: func(t peer.Track) {
			logger.Infof("probe %s: remote %s track %s", c.UserID, t.Kind(), t.ID())
		},
	})
	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer m.Close()

	select {
	case <-connected:
	case <-m.Done():
		return fmt.Errorf("connection closed: %v", m.Err())
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Printf("connected to %s in %s\n", match.PartnerID, match.SessionID)
	select {
	case <-time.After(hold):
	case <-m.Done():
		logger.Infof("probe %s: partner hung up: %v", c.UserID, m.Err())
	case <-ctx.Done():
	}
	return nil
}

func awaitMatch(ctx context.Context, events <-chan models.Event) (models.Event, error) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return models.Event{}, fmt.Errorf("event stream closed")
			}
			switch ev.Type {
			case models.EventMatchFound:
				return ev, nil
			case models.EventNoMatch:
				return models.Event{}, fmt.Errorf("no match found")
			case models.EventSearchCanceled, models.EventError:
				return models.Event{}, fmt.Errorf("search aborted: %s %s", ev.Type, ev.Content)
			}
		case <-ctx.Done():
			return models.Event{}, ctx.Err()
		}
	}
}
