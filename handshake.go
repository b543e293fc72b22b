// RTMP handshake

package main

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
)

const RTMP_SIG_SIZE = 1536
const RTMP_DIGEST_LENGTH = 32

// Client digest placements inside C1
const CLIENT_SCHEMA_UNKNOWN = 0
const CLIENT_SCHEMA_DIGEST_FIRST = 1
const CLIENT_SCHEMA_KEY_FIRST = 2

const GenuineFMSConst = "Genuine Adobe Flash Media Server 001"
const GenuineFPConst = "Genuine Adobe Flash Player 001"

var HandshakeRandomCrud = []byte{
	0xf0, 0xee, 0xc2, 0x4a, 0x80, 0x68, 0xbe, 0xe8,
	0x2e, 0x00, 0xd0, 0xd1, 0x02, 0x9e, 0x7e, 0x57,
	0x6e, 0xec, 0x5d, 0x2d, 0x29, 0x80, 0x6f, 0xab,
	0x93, 0xb8, 0xe6, 0x36, 0xcf, 0xeb, 0x31, 0xae,
}

var GenuineFMSConstCrud = append([]byte(GenuineFMSConst), HandshakeRandomCrud...)

// Computes the HMAC-SHA256 of a message
// message - The message
// key - The key
// Returns the signature
func calcHmac(message []byte, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	return h.Sum(nil)
}

// Pads a buffer with zeros, or trims it, to reach the given size
// buf - The buffer
// size - Desired size
// Returns the adjusted buffer
func padOrTrim(buf []byte, size int) []byte {
	if len(buf) < size {
		return append(buf, make([]byte, size-len(buf))...)
	}
	return buf[0:size]
}

// Digest offset when the digest block comes before the key block
// buf - The 4 scheme bytes
// Returns the offset of the digest inside the signature
func digestOffsetSchema1(buf []byte) uint32 {
	offset := uint32(buf[0]) + uint32(buf[1]) + uint32(buf[2]) + uint32(buf[3])
	return (offset % 728) + 12
}

// Digest offset when the key block comes before the digest block
// buf - The 4 scheme bytes
// Returns the offset of the digest inside the signature
func digestOffsetSchema2(buf []byte) uint32 {
	offset := uint32(buf[0]) + uint32(buf[1]) + uint32(buf[2]) + uint32(buf[3])
	return (offset % 728) + 776
}

// Checks a candidate digest placement against the Genuine-FP key
// clientSig - The C1 signature
// digestOffset - Candidate offset
// Returns true if the digest matches
func verifyClientDigest(clientSig []byte, digestOffset uint32) bool {
	msg := make([]byte, 0, RTMP_SIG_SIZE-RTMP_DIGEST_LENGTH)
	msg = append(msg, clientSig[0:digestOffset]...)
	msg = append(msg, clientSig[(digestOffset+RTMP_DIGEST_LENGTH):]...)
	msg = padOrTrim(msg, RTMP_SIG_SIZE-RTMP_DIGEST_LENGTH)

	computed := calcHmac(msg, []byte(GenuineFPConst))
	provided := clientSig[digestOffset:(digestOffset + RTMP_DIGEST_LENGTH)]

	return hmac.Equal(computed, provided)
}

// Searches C1 for a digest at the two canonical placements
// clientSig - The C1 signature
// Returns the detected schema
func detectClientSchema(clientSig []byte) uint32 {
	if verifyClientDigest(clientSig, digestOffsetSchema2(clientSig[772:776])) {
		return CLIENT_SCHEMA_KEY_FIRST
	}

	if verifyClientDigest(clientSig, digestOffsetSchema1(clientSig[8:12])) {
		return CLIENT_SCHEMA_DIGEST_FIRST
	}

	return CLIENT_SCHEMA_UNKNOWN
}

// Generates S1 with a digest computed with the Genuine-FMS key
// schema - Detected client schema
// Returns the S1 signature
func generateS1(schema uint32) []byte {
	randomBytes := make([]byte, RTMP_SIG_SIZE-8)
	_, err := rand.Read(randomBytes)

	if err != nil {
		// This should never happen
		panic(err)
	}

	s1 := []byte{0, 0, 0, 0, 1, 2, 3, 4}
	s1 = append(s1, randomBytes...)
	s1 = padOrTrim(s1, RTMP_SIG_SIZE)

	var digestOffset uint32
	if schema == CLIENT_SCHEMA_DIGEST_FIRST {
		digestOffset = digestOffsetSchema1(s1[8:12])
	} else {
		digestOffset = digestOffsetSchema1(s1[772:776])
	}

	msg := make([]byte, 0, RTMP_SIG_SIZE-RTMP_DIGEST_LENGTH)
	msg = append(msg, s1[0:digestOffset]...)
	msg = append(msg, s1[(digestOffset+RTMP_DIGEST_LENGTH):]...)
	msg = padOrTrim(msg, RTMP_SIG_SIZE-RTMP_DIGEST_LENGTH)

	h := calcHmac(msg, []byte(GenuineFMSConst))
	copy(s1[digestOffset:digestOffset+RTMP_DIGEST_LENGTH], h)

	return s1
}

// Generates S2: random bytes signed with a key derived from the client digest
// schema - Detected client schema
// clientSig - The C1 signature
// Returns the S2 signature
func generateS2(schema uint32, clientSig []byte) []byte {
	randomBytes := make([]byte, RTMP_SIG_SIZE-RTMP_DIGEST_LENGTH)
	_, err := rand.Read(randomBytes)

	if err != nil {
		// This should never happen
		panic(err)
	}

	var challengeKeyOffset uint32
	if schema == CLIENT_SCHEMA_DIGEST_FIRST {
		challengeKeyOffset = digestOffsetSchema1(clientSig[8:12])
	} else {
		challengeKeyOffset = digestOffsetSchema2(clientSig[772:776])
	}

	challengeKey := clientSig[challengeKeyOffset:(challengeKeyOffset + RTMP_DIGEST_LENGTH)]

	h := calcHmac(challengeKey, GenuineFMSConstCrud)
	signature := calcHmac(randomBytes, h)

	s2 := append(randomBytes, signature...)

	return padOrTrim(s2, RTMP_SIG_SIZE)
}

// Generates the full handshake response for a received C1
// Falls back to a plain echo when C1 carries no recognizable digest
// clientSig - The C1 signature
// Returns S0 + S1 + S2
func generateS0S1S2(clientSig []byte) []byte {
	allBytes := []byte{RTMP_VERSION}

	schema := detectClientSchema(clientSig)

	if schema == CLIENT_SCHEMA_UNKNOWN {
		LogDebug("Using basic handshake")
		allBytes = append(allBytes, clientSig...)
		allBytes = append(allBytes, clientSig...)
	} else {
		LogDebug("Using digest handshake")
		allBytes = append(allBytes, generateS1(schema)...)
		allBytes = append(allBytes, generateS2(schema, clientSig)...)
	}

	return allBytes
}
