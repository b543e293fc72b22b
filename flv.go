// FLV tag framing
// HTTP-FLV subscribers receive these tags instead of RTMP chunks

package main

import (
	"encoding/binary"
)

// Frames a media packet as an FLV tag followed
// by the 4-byte PreviousTagSize field
// packet - The media packet
// Returns the serialized tag
func createFlvTag(packet *RTMPPacket) []byte {
	tagSize := 11 + packet.header.length
	b := make([]byte, tagSize+4)

	b[0] = byte(packet.header.packet_type)

	b[1] = byte(packet.header.length>>16) & 0xff
	b[2] = byte(packet.header.length>>8) & 0xff
	b[3] = byte(packet.header.length) & 0xff

	b[4] = byte(packet.header.timestamp>>16) & 0xff
	b[5] = byte(packet.header.timestamp>>8) & 0xff
	b[6] = byte(packet.header.timestamp) & 0xff
	b[7] = byte(packet.header.timestamp>>24) & 0xff

	// Stream ID, always 0
	b[8] = 0
	b[9] = 0
	b[10] = 0

	copy(b[11:tagSize], packet.payload)

	binary.BigEndian.PutUint32(b[tagSize:], tagSize)

	return b
}
