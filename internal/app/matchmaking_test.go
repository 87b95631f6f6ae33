package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-duel-client/internal/app"
	"quiz-duel-client/internal/domain"
	"quiz-duel-client/internal/protocol"
)

func waitSent(t *testing.T, tr *fakeTransport, pred func(protocol.Outbound) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		for _, ev := range tr.sentFrames() {
			if pred(ev) {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for outbound frame, sent %+v", tr.sentFrames())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQueuePublicResolvesOnMatchFound(t *testing.T) {
	tr := newFakeTransport()
	mm := app.NewMatchmaker(tr)
	tr.push(protocol.PrivateCreated{Code: "IGNORE"})
	tr.push(protocol.MatchFound{GameID: "g7"})

	gameID, err := mm.QueuePublic(context.Background(), "golang", "lang", 1340)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if gameID != "g7" {
		t.Fatalf("expected g7, got %s", gameID)
	}
	sent := tr.sentFrames()
	jq, ok := sent[0].(protocol.JoinQueue)
	if !ok || jq.Rating != 1340 || jq.Topic != "golang" || jq.Category != "lang" {
		t.Fatalf("unexpected join frame %+v", sent[0])
	}
}

func TestQueuePublicResolvesOnGameStarted(t *testing.T) {
	tr := newFakeTransport()
	mm := app.NewMatchmaker(tr)
	tr.push(protocol.GameStarted{GameID: "g8"})

	gameID, err := mm.QueuePublic(context.Background(), "golang", "lang", 1000)
	if err != nil || gameID != "g8" {
		t.Fatalf("expected g8, got %q (%v)", gameID, err)
	}
}

func TestQueuePublicRequiresConnection(t *testing.T) {
	tr := newFakeTransport()
	tr.setConnected(false)
	mm := app.NewMatchmaker(tr)

	if _, err := mm.QueuePublic(context.Background(), "golang", "lang", 1000); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(tr.sentFrames()) != 0 {
		t.Fatalf("expected nothing sent")
	}
}

func TestSecondQueueIsBusyAndCancelLeavesQueue(t *testing.T) {
	tr := newFakeTransport()
	mm := app.NewMatchmaker(tr)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := mm.QueuePublic(ctx, "golang", "lang", 1000)
		errCh <- err
	}()
	waitSent(t, tr, func(ev protocol.Outbound) bool { _, ok := ev.(protocol.JoinQueue); return ok })

	if _, err := mm.QueuePublic(context.Background(), "golang", "lang", 1000); !errors.Is(err, domain.ErrQueueBusy) {
		t.Fatalf("expected ErrQueueBusy, got %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("queue did not stop on cancel")
	}
	waitSent(t, tr, func(ev protocol.Outbound) bool { _, ok := ev.(protocol.LeaveQueue); return ok })

	tr.push(protocol.MatchFound{GameID: "g2"})
	if gameID, err := mm.QueuePublic(context.Background(), "golang", "lang", 1000); err != nil || gameID != "g2" {
		t.Fatalf("expected queue to be free again, got %q (%v)", gameID, err)
	}
}

func TestJoinPrivateNormalizesCode(t *testing.T) {
	tr := newFakeTransport()
	mm := app.NewMatchmaker(tr)
	tr.push(protocol.MatchFound{GameID: "g3"})

	gameID, err := mm.JoinPrivate(context.Background(), "  ab12cd ")
	if err != nil || gameID != "g3" {
		t.Fatalf("expected g3, got %q (%v)", gameID, err)
	}
	if jp, ok := tr.sentFrames()[0].(protocol.JoinPrivate); !ok || jp.Code != "AB12CD" {
		t.Fatalf("expected normalized code, got %+v", tr.sentFrames()[0])
	}
}

func TestJoinPrivateErrorsAreGeneric(t *testing.T) {
	tr := newFakeTransport()
	mm := app.NewMatchmaker(tr)

	if _, err := mm.JoinPrivate(context.Background(), "ab1"); !errors.Is(err, domain.ErrInvalidRoomCode) {
		t.Fatalf("expected invalid code for malformed input, got %v", err)
	}
	if len(tr.sentFrames()) != 0 {
		t.Fatalf("malformed code must not be sent")
	}

	tr.push(protocol.Error{Message: "Room is full"})
	_, err := mm.JoinPrivate(context.Background(), "ZZ99ZZ")
	if !errors.Is(err, domain.ErrInvalidRoomCode) {
		t.Fatalf("expected invalid code for rejected join, got %v", err)
	}
	if err.Error() != domain.ErrInvalidRoomCode.Error() {
		t.Fatalf("authority reason leaked into error: %v", err)
	}
}

func TestCreatePrivateAndAwait(t *testing.T) {
	tr := newFakeTransport()
	mm := app.NewMatchmaker(tr)
	tr.push(protocol.PrivateCreated{Code: "XY12ZW"})

	room, err := mm.CreatePrivate(context.Background(), "golang", "lang")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer room.Close()
	if room.Code != "XY12ZW" {
		t.Fatalf("expected room code, got %q", room.Code)
	}
	if _, err := mm.QueuePublic(context.Background(), "golang", "lang", 1000); !errors.Is(err, domain.ErrQueueBusy) {
		t.Fatalf("expected open room to keep matchmaker busy, got %v", err)
	}

	tr.push(protocol.GameStarted{GameID: "g5"})
	gameID, err := room.Await(context.Background())
	if err != nil || gameID != "g5" {
		t.Fatalf("expected g5, got %q (%v)", gameID, err)
	}
	room.Close()
	room.Close()
	if tr.releasedCount() == 0 {
		t.Fatalf("expected room subscription released")
	}
}

func TestRunDispatchesIntent(t *testing.T) {
	tr := newFakeTransport()
	var shared string
	mm := app.NewMatchmaker(tr, app.WithRoomCodeHandler(func(code string) { shared = code }))

	tr.push(protocol.PrivateCreated{Code: "ROOM42"})
	tr.push(protocol.MatchFound{GameID: "g6"})
	gameID, err := mm.Run(context.Background(), domain.MatchIntent{Mode: domain.ModePrivateCreate, Topic: "golang"})
	if err != nil || gameID != "g6" || shared != "ROOM42" {
		t.Fatalf("expected g6 with shared code, got %q %q (%v)", gameID, shared, err)
	}

	if _, err := mm.Run(context.Background(), domain.MatchIntent{Mode: "RANKED"}); !errors.Is(err, domain.ErrUnknownMode) {
		t.Fatalf("expected unknown mode, got %v", err)
	}
}
