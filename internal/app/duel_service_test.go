package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-duel-client/internal/app"
	"quiz-duel-client/internal/domain"
	"quiz-duel-client/internal/infra/memory"
	"quiz-duel-client/internal/protocol"
)

func newService(tr *fakeTransport, fetcher *fakeFetcher, registry app.SessionRegistry, opts ...app.ServiceOption) *app.DuelService {
	return app.NewDuelService(tr, app.NewMatchmaker(tr), fetcher, registry, app.SessionConfig{
		UserID:       "u1",
		Tick:         time.Second,
		ReviewWindow: 5 * time.Second,
		Clock:        &fakeClock{},
	}, opts...)
}

func TestOpenRejectsSecondSessionForSameGame(t *testing.T) {
	tr := newFakeTransport()
	registry := memory.NewSessionRegistry()
	svc := newService(tr, &fakeFetcher{responses: []fetchResponse{{game: sampleGame()}}}, registry)

	h, err := svc.Open(context.Background(), "g1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Open(context.Background(), "g1"); !errors.Is(err, domain.ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	if got, ok := registry.Get("g1"); !ok || got != h {
		t.Fatalf("expected registered handle")
	}

	svc.Leave("g1")
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("session did not stop on Leave")
	}
	if _, ok := registry.Get("g1"); ok {
		t.Fatalf("expected registry entry removed after leave")
	}

	h2, err := svc.Open(context.Background(), "g1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	h2.Leave()
}

func TestOpenRejectsEmptyGameID(t *testing.T) {
	svc := newService(newFakeTransport(), &fakeFetcher{responses: []fetchResponse{{game: sampleGame()}}}, memory.NewSessionRegistry())
	if _, err := svc.Open(context.Background(), ""); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestPlayOpensMatchedGame(t *testing.T) {
	tr := newFakeTransport()
	fetcher := &fakeFetcher{responses: []fetchResponse{{game: sampleGame()}}}
	svc := newService(tr, fetcher, memory.NewSessionRegistry())
	tr.push(protocol.MatchFound{GameID: "g1"})

	h, err := svc.Play(context.Background(), domain.MatchIntent{Mode: domain.ModePublic, Topic: "arithmetic", Rating: 1000})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	defer h.Leave()
	if h.GameID() != "g1" {
		t.Fatalf("expected g1, got %s", h.GameID())
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-h.Updates():
			if v.State == app.StatePlaying {
				if v.Question == nil || v.Question.ID != "q1" {
					t.Fatalf("expected first question, got %+v", v.Question)
				}
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for playing state")
		}
	}
}

func TestPlayPropagatesMatchmakingError(t *testing.T) {
	tr := newFakeTransport()
	tr.setConnected(false)
	svc := newService(tr, &fakeFetcher{responses: []fetchResponse{{game: sampleGame()}}}, memory.NewSessionRegistry())

	if _, err := svc.Play(context.Background(), domain.MatchIntent{Mode: domain.ModePublic}); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestLateLeaveKeepsNewerSession(t *testing.T) {
	tr := newFakeTransport()
	registry := memory.NewSessionRegistry()
	svc := newService(tr, &fakeFetcher{responses: []fetchResponse{{game: sampleGame()}}}, registry)

	ctx, cancel := context.WithCancel(context.Background())
	stale, err := svc.Open(ctx, "g1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cancel()
	select {
	case <-stale.Done():
	case <-time.After(time.Second):
		t.Fatalf("session did not stop with its context")
	}

	fresh, err := svc.Open(context.Background(), "g1")
	if err != nil {
		t.Fatalf("open after stop: %v", err)
	}
	defer fresh.Leave()

	stale.Leave()
	if got, ok := registry.Get("g1"); !ok || got != fresh {
		t.Fatalf("late leave of a stopped handle must not unregister the live one")
	}
}

func TestLeaveDuringOpen(t *testing.T) {
	tr := newFakeTransport()
	registry := memory.NewSessionRegistry()
	svc := newService(tr, &fakeFetcher{responses: []fetchResponse{{game: sampleGame()}}}, registry)

	stop := make(chan struct{})
	leaving := make(chan struct{})
	go func() {
		defer close(leaving)
		for {
			select {
			case <-stop:
				return
			default:
				svc.Leave("g1")
			}
		}
	}()

	h, err := svc.Open(context.Background(), "g1")
	close(stop)
	<-leaving
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	h.Leave()
	if _, ok := registry.Get("g1"); ok {
		t.Fatalf("expected registry entry removed after leave")
	}
}
