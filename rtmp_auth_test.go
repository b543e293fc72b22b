package main

import (
	"testing"
	"time"
)

func TestStreamSignRoundTrip(t *testing.T) {
	sign, err := MakeStreamSign("/live/stream1", "testsecret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if !verifyStreamSign(sign, "/live/stream1", "testsecret") {
		t.Errorf("Expected a valid signature to verify")
	}
}

func TestStreamSignWrongPath(t *testing.T) {
	sign, err := MakeStreamSign("/live/stream1", "testsecret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if verifyStreamSign(sign, "/live/other", "testsecret") {
		t.Errorf("A signature for another path must not verify")
	}
}

func TestStreamSignWrongSecret(t *testing.T) {
	sign, err := MakeStreamSign("/live/stream1", "testsecret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if verifyStreamSign(sign, "/live/stream1", "othersecret") {
		t.Errorf("A signature with another secret must not verify")
	}
}

func TestStreamSignExpired(t *testing.T) {
	sign, err := MakeStreamSign("/live/stream1", "testsecret", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if verifyStreamSign(sign, "/live/stream1", "testsecret") {
		t.Errorf("An expired signature must not verify")
	}
}

func TestStreamSignEmpty(t *testing.T) {
	if verifyStreamSign("", "/live/stream1", "testsecret") {
		t.Errorf("An empty signature must not verify")
	}
	if verifyStreamSign("garbage", "/live/stream1", "") {
		t.Errorf("An empty secret must not verify anything")
	}
}

func TestIsLocalhostAddr(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "::1", "::ffff:127.0.0.1"} {
		if !isLocalhostAddr(ip) {
			t.Errorf("Expected %s to be a localhost address", ip)
		}
	}
	for _, ip := range []string{"10.0.0.1", "192.168.1.5", "::2"} {
		if isLocalhostAddr(ip) {
			t.Errorf("Expected %s to not be a localhost address", ip)
		}
	}
}

// Publishing with auth enabled: a bad signature keeps
// the connection open and the path unclaimed
func TestScenarioPublishUnauthorized(t *testing.T) {
	config := testServerConfig()
	config.Auth.Publish = true
	config.Auth.Secret = "testsecret"
	server := CreateRTMPServer(config)

	a, aCh := newScenarioSession(t, server)
	a.ip = "10.0.0.1" // Not exempted
	connectSession(t, a, aCh, "live")
	createStream(t, a, aCh)

	publishStream(t, a, "stream1?sign=bogus", 1)
	expectStatusCode(t, aCh, "NetStream.publish.Unauthorized")

	if a.isPublishing {
		t.Errorf("Unauthorized session must not be publishing")
	}
	if server.GetPublisher("/live/stream1") != nil {
		t.Errorf("Path must stay unclaimed")
	}

	// With a valid signature, the same session can publish
	sign, err := MakeStreamSign("/live/stream1", "testsecret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	publishStream(t, a, "stream1?sign="+sign, 1)
	expectStatusCode(t, aCh, "NetStream.Publish.Start")

	if !a.isPublishing {
		t.Errorf("Expected the session to be publishing")
	}
}

func TestScenarioPublishLocalhostExempt(t *testing.T) {
	config := testServerConfig()
	config.Auth.Publish = true
	config.Auth.Secret = "testsecret"
	server := CreateRTMPServer(config)

	a, aCh := newScenarioSession(t, server)
	connectSession(t, a, aCh, "live")
	createStream(t, a, aCh)

	// No signature, but the peer is localhost
	publishStream(t, a, "stream1", 1)
	expectStatusCode(t, aCh, "NetStream.Publish.Start")

	if !a.isPublishing {
		t.Errorf("Localhost peers are exempted from auth")
	}
}
