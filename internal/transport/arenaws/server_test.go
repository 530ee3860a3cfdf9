package arenaws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/NP5555/BlockChain-Chess-Arena/internal/connmgr"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/matchmaker"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/msgcat"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/relay"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/rules"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/session"
	"github.com/NP5555/BlockChain-Chess-Arena/pkg/arenadto"
)

func newTestServer(t *testing.T) (*matchmaker.Matchmaker, *httptest.Server) {
	t.Helper()
	reg := session.NewRegistry(nil, session.Config{})
	t.Cleanup(reg.Stop)
	match := matchmaker.New(reg)
	rel := relay.New(reg, rules.NewEngine())
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	srv := NewServer(":0", reg, match, rel, cat)
	conns := connmgr.New(reg, srv, time.Minute)
	conns.AttachAbandoner(rel)
	conns.AttachCatalog(cat)
	rel.AttachResolver(conns)
	srv.AttachConnManager(conns)
	rel.AttachBroadcaster(srv)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return match, ts
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?client=" + clientID
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", clientID, err)
	}
	return conn
}

func TestSupersededConnectionKeepsTicket(t *testing.T) {
	match, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first := dialWS(t, ctx, ts, "alice")
	if err := wsjson.Write(ctx, first, &arenadto.ClientMessage{Type: arenadto.TypeFindMatch}); err != nil {
		t.Fatalf("find-match: %v", err)
	}
	var queued arenadto.ServerMessage
	if err := wsjson.Read(ctx, first, &queued); err != nil {
		t.Fatalf("read queued: %v", err)
	}
	if queued.Type != arenadto.TypeQueued {
		t.Fatalf("expected queued, got %q", queued.Type)
	}

	// a second device for the same client supersedes the first socket
	second := dialWS(t, ctx, ts, "alice")
	defer second.Close(websocket.StatusNormalClosure, "")

	// the server closes the first socket; drain it until that happens so
	// its handler teardown has run
	for {
		var discard arenadto.ServerMessage
		if err := wsjson.Read(ctx, first, &discard); err != nil {
			break
		}
	}
	time.Sleep(100 * time.Millisecond)

	// the teardown of the superseded socket must not revoke the ticket
	if got := match.QueuedCount(); got != 1 {
		t.Fatalf("ticket must survive connection supersession, queued=%d", got)
	}

	bob := dialWS(t, ctx, ts, "bob")
	defer bob.Close(websocket.StatusNormalClosure, "")
	if err := wsjson.Write(ctx, bob, &arenadto.ClientMessage{Type: arenadto.TypeFindMatch}); err != nil {
		t.Fatalf("bob find-match: %v", err)
	}

	// pairing reaches alice on her live (second) connection
	var found arenadto.ServerMessage
	if err := wsjson.Read(ctx, second, &found); err != nil {
		t.Fatalf("read match-found on second connection: %v", err)
	}
	if found.Type != arenadto.TypeMatchFound || found.Color != "white" || found.Opponent != "bob" {
		t.Fatalf("expected match-found as white vs bob, got %+v", found)
	}
}

func TestDisconnectCancelsOwnTicket(t *testing.T) {
	match, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts, "carol")
	if err := wsjson.Write(ctx, conn, &arenadto.ClientMessage{Type: arenadto.TypeFindMatch}); err != nil {
		t.Fatalf("find-match: %v", err)
	}
	var queued arenadto.ServerMessage
	if err := wsjson.Read(ctx, conn, &queued); err != nil {
		t.Fatalf("read queued: %v", err)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && match.QueuedCount() != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := match.QueuedCount(); got != 0 {
		t.Fatalf("closing the only connection must cancel the ticket, queued=%d", got)
	}
}
