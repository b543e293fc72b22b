package main

import (
	"net"
	"testing"
)

func newRegistrySession(t *testing.T, server *RTMPServer) *RTMPSession {
	t.Helper()

	clientSide, serverSide := net.Pipe()

	id := server.NextSessionID()
	s := CreateRTMPSession(server, id, "127.0.0.1", serverSide)
	server.AddSession(&s)

	t.Cleanup(func() {
		clientSide.Close()
		serverSide.Close()
		server.RemoveSession(id)
	})

	return &s
}

func TestPublisherExclusivity(t *testing.T) {
	server := CreateRTMPServer(testServerConfig())

	a := newRegistrySession(t, server)
	c := newRegistrySession(t, server)

	if !server.SetPublisher("/live/stream1", a) {
		t.Fatalf("First publisher should be accepted")
	}

	if server.SetPublisher("/live/stream1", c) {
		t.Fatalf("Second publisher for the same path should be rejected")
	}

	if server.GetPublisher("/live/stream1") != a {
		t.Errorf("The incumbent publisher should stay registered")
	}

	// Another path is fine
	if !server.SetPublisher("/live/stream2", c) {
		t.Errorf("A different path should be accepted")
	}
}

func TestPlayerIdleTransitions(t *testing.T) {
	server := CreateRTMPServer(testServerConfig())

	a := newRegistrySession(t, server)
	b := newRegistrySession(t, server)

	// Player joins before any publisher
	idle := server.AddPlayer("/live/stream1", b)

	if !idle || !b.isIdling {
		t.Fatalf("Player should become idle when no publisher exists")
	}

	idlePlayers := server.GetIdlePlayers("/live/stream1")
	if len(idlePlayers) != 1 || idlePlayers[0] != b {
		t.Fatalf("Expected b in the idle players list")
	}

	// Publisher arrives
	server.SetPublisher("/live/stream1", a)
	a.isPublishing = true

	b.isIdling = false
	b.isPlaying = true

	players := server.GetPlayers("/live/stream1")
	if len(players) != 1 || players[0] != b {
		t.Fatalf("Expected b in the active players list")
	}

	// Publisher leaves, players are re-idled
	server.RemovePublisher("/live/stream1")

	if !b.isIdling || b.isPlaying {
		t.Errorf("Player should go back to idle when the publisher is removed")
	}
	if server.GetPublisher("/live/stream1") != nil {
		t.Errorf("No publisher should remain")
	}
}

func TestRemovePlayerCleansChannel(t *testing.T) {
	server := CreateRTMPServer(testServerConfig())

	b := newRegistrySession(t, server)

	server.AddPlayer("/live/stream1", b)
	server.RemovePlayer("/live/stream1", b)

	// Removing again is a no-op
	server.RemovePlayer("/live/stream1", b)

	if b.isIdling || b.isPlaying {
		t.Errorf("Removed player should not be idling nor playing")
	}

	if len(server.channels) != 0 {
		t.Errorf("Empty channel should be deleted")
	}
}

func TestGetSession(t *testing.T) {
	server := CreateRTMPServer(testServerConfig())

	s := newRegistrySession(t, server)

	if server.GetSession(s.id) != s {
		t.Errorf("Expected to find the session by its ID")
	}
	if server.GetSession(99999) != nil {
		t.Errorf("Expected nil for an unknown session ID")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	server := CreateRTMPServer(testServerConfig())

	newRegistrySession(t, server)

	server.Stop()

	channelsAfterFirst := len(server.channels)
	sessionsAfterFirst := len(server.sessions)

	server.Stop()

	if len(server.channels) != channelsAfterFirst || len(server.sessions) != sessionsAfterFirst {
		t.Errorf("Calling stop twice changed the broker state")
	}
	if !server.closed {
		t.Errorf("Server should be closed")
	}
}

func TestEventBus(t *testing.T) {
	server := CreateRTMPServer(testServerConfig())

	s := newRegistrySession(t, server)

	received := make([]string, 0)

	server.On("prePublish", func(event *RTMPServerEvent) {
		received = append(received, event.name+":"+event.path)

		if event.sessionId != s.id {
			t.Errorf("Wrong session id in event")
		}
	})

	server.EmitEvent("prePublish", s, "/live/stream1")
	server.EmitEvent("donePublish", s, "/live/stream1") // No subscribers, must not panic

	if len(received) != 1 || received[0] != "prePublish:/live/stream1" {
		t.Errorf("Expected one prePublish event, got %v", received)
	}
}

func TestIPLimit(t *testing.T) {
	config := testServerConfig()
	config.IpLimit = 2
	server := CreateRTMPServer(config)

	if !server.AddIP("10.0.0.1") || !server.AddIP("10.0.0.1") {
		t.Fatalf("Expected the first two connections to be accepted")
	}
	if server.AddIP("10.0.0.1") {
		t.Errorf("Expected the third connection to be rejected")
	}

	server.RemoveIP("10.0.0.1")

	if !server.AddIP("10.0.0.1") {
		t.Errorf("Expected a connection to be accepted after one left")
	}
}
