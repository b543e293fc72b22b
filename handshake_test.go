package main

import (
	"bytes"
	"crypto/hmac"
	"math/rand"
	"testing"
)

// Builds a C1 signature carrying a valid digest
// at the schema-1 placement (digest block first)
func buildDigestC1(t *testing.T) []byte {
	t.Helper()

	c1 := make([]byte, RTMP_SIG_SIZE)
	rnd := rand.New(rand.NewSource(42))
	rnd.Read(c1)

	digestOffset := digestOffsetSchema1(c1[8:12])

	msg := make([]byte, 0, RTMP_SIG_SIZE-RTMP_DIGEST_LENGTH)
	msg = append(msg, c1[0:digestOffset]...)
	msg = append(msg, c1[(digestOffset+RTMP_DIGEST_LENGTH):]...)

	digest := calcHmac(msg, []byte(GenuineFPConst))
	copy(c1[digestOffset:digestOffset+RTMP_DIGEST_LENGTH], digest)

	return c1
}

func TestHandshakeEchoFallback(t *testing.T) {
	c1 := make([]byte, RTMP_SIG_SIZE)
	rnd := rand.New(rand.NewSource(7))
	rnd.Read(c1)

	response := generateS0S1S2(c1)

	if len(response) != 1+2*RTMP_SIG_SIZE {
		t.Fatalf("Expected %d bytes, got %d", 1+2*RTMP_SIG_SIZE, len(response))
	}
	if response[0] != RTMP_VERSION {
		t.Errorf("Expected S0 = %d, got %d", RTMP_VERSION, response[0])
	}
	if !bytes.Equal(response[1:1+RTMP_SIG_SIZE], c1) {
		t.Errorf("Expected S1 to echo C1")
	}
	if !bytes.Equal(response[1+RTMP_SIG_SIZE:], c1) {
		t.Errorf("Expected S2 to echo C1")
	}
}

func TestHandshakeDigestDetection(t *testing.T) {
	c1 := buildDigestC1(t)

	if detectClientSchema(c1) != CLIENT_SCHEMA_DIGEST_FIRST {
		t.Fatalf("Expected the digest-first schema to be detected")
	}
}

func TestHandshakeDigestResponse(t *testing.T) {
	c1 := buildDigestC1(t)

	response := generateS0S1S2(c1)

	if len(response) != 1+2*RTMP_SIG_SIZE {
		t.Fatalf("Expected %d bytes, got %d", 1+2*RTMP_SIG_SIZE, len(response))
	}
	if response[0] != RTMP_VERSION {
		t.Errorf("Expected S0 = %d, got %d", RTMP_VERSION, response[0])
	}

	s1 := response[1 : 1+RTMP_SIG_SIZE]
	s2 := response[1+RTMP_SIG_SIZE:]

	if bytes.Equal(s1, c1) {
		t.Errorf("S1 must not be an echo in the digest handshake")
	}

	// S1 must carry a digest verifiable with the Genuine-FMS key
	s1DigestOffset := digestOffsetSchema1(s1[8:12])

	msg := make([]byte, 0, RTMP_SIG_SIZE-RTMP_DIGEST_LENGTH)
	msg = append(msg, s1[0:s1DigestOffset]...)
	msg = append(msg, s1[(s1DigestOffset+RTMP_DIGEST_LENGTH):]...)

	expected := calcHmac(msg, []byte(GenuineFMSConst))
	provided := s1[s1DigestOffset : s1DigestOffset+RTMP_DIGEST_LENGTH]

	if !hmac.Equal(expected, provided) {
		t.Errorf("S1 digest does not verify with the Genuine-FMS key")
	}

	// The trailing 32 bytes of S2 must sign its first 1504 bytes
	// with a key derived from the client digest
	clientDigestOffset := digestOffsetSchema1(c1[8:12])
	challengeKey := c1[clientDigestOffset : clientDigestOffset+RTMP_DIGEST_LENGTH]

	h := calcHmac(challengeKey, GenuineFMSConstCrud)
	expectedSig := calcHmac(s2[0:RTMP_SIG_SIZE-RTMP_DIGEST_LENGTH], h)

	if !hmac.Equal(expectedSig, s2[RTMP_SIG_SIZE-RTMP_DIGEST_LENGTH:]) {
		t.Errorf("S2 signature does not verify")
	}
}
