package ws

import (
	"testing"
	"time"
)

func testClient() *Client {
	return &Client{send: make(chan []byte, sendBuffer)}
}

func recv(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case data := <-c.send:
		return string(data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return ""
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastSkipsSender(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	sender, peer := testClient(), testClient()
	hub.register <- sender
	hub.register <- peer
	hub.join <- joinRequest{client: sender, room: "sheet-7"}
	hub.join <- joinRequest{client: peer, room: "sheet-7"}

	hub.broadcast <- envelope{room: "sheet-7", sender: sender, data: []byte(`{"type":"cellUpdated"}`)}

	if got := recv(t, peer); got != `{"type":"cellUpdated"}` {
		t.Fatalf("peer got %q", got)
	}
	assertNothing(t, sender)
}

func TestJoinLeavesPreviousRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	mover, sevenPeer := testClient(), testClient()
	hub.register <- mover
	hub.register <- sevenPeer
	hub.join <- joinRequest{client: sevenPeer, room: "sheet-7"}
	hub.join <- joinRequest{client: mover, room: "sheet-7"}

	// switch rooms: sheet-7 traffic must stop reaching the mover
	hub.join <- joinRequest{client: mover, room: "sheet-9"}

	hub.broadcast <- envelope{room: "sheet-7", sender: sevenPeer, data: []byte(`a`)}
	assertNothing(t, mover)

	hub.broadcast <- envelope{room: "sheet-9", sender: sevenPeer, data: []byte(`b`)}
	if got := recv(t, mover); got != "b" {
		t.Fatalf("mover got %q in sheet-9", got)
	}
}

func TestUnregisterRemovesFromRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	leaver, peer := testClient(), testClient()
	hub.register <- leaver
	hub.register <- peer
	hub.join <- joinRequest{client: leaver, room: "sheet-7"}
	hub.join <- joinRequest{client: peer, room: "sheet-7"}

	hub.unregister <- leaver

	hub.broadcast <- envelope{room: "sheet-7", sender: peer, data: []byte(`x`)}

	select {
	case _, ok := <-leaver.send:
		if ok {
			t.Fatal("leaver received a broadcast after unregister")
		}
	case <-time.After(time.Second):
		t.Fatal("leaver send channel was not closed")
	}
}

func TestSlowConsumerIsDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	slow := &Client{send: make(chan []byte)} // no buffer, never read
	fast, sender := testClient(), testClient()
	hub.register <- slow
	hub.register <- fast
	hub.register <- sender
	hub.join <- joinRequest{client: slow, room: "sheet-7"}
	hub.join <- joinRequest{client: fast, room: "sheet-7"}
	hub.join <- joinRequest{client: sender, room: "sheet-7"}

	hub.broadcast <- envelope{room: "sheet-7", sender: sender, data: []byte(`x`)}

	if got := recv(t, fast); got != "x" {
		t.Fatalf("fast client got %q", got)
	}

	// slow client's channel is closed instead of blocking the room
	select {
	case _, ok := <-slow.send:
		if ok {
			t.Fatal("expected closed channel for slow consumer")
		}
	case <-time.After(time.Second):
		t.Fatal("slow consumer was not dropped")
	}
}
