// RTMP packet and chunk encoder

package main

import (
	"encoding/binary"
)

type RTMPPacketHeader struct {
	timestamp int64 // Absolute timestamp, or delta for fmt > 0

	fmt uint32
	cid uint32

	packet_type uint32

	stream_id uint32

	length uint32 // Payload length
}

type RTMPPacket struct {
	header  RTMPPacketHeader
	payload []byte

	capacity uint32 // Expected payload capacity
	bytes    uint32 // Bytes received so far

	clock int64 // Absolute clock of the message
	delta int64 // Last timestamp delta

	handled bool // True once dispatched
}

func createBlankRTMPPacket() RTMPPacket {
	return RTMPPacket{
		header: RTMPPacketHeader{
			timestamp:   0,
			fmt:         0,
			cid:         0,
			packet_type: 0,
			stream_id:   0,
			length:      0,
		},
		payload:  []byte{},
		capacity: 0,
		bytes:    0,
		clock:    0,
		delta:    0,
		handled:  false,
	}
}

// Encodes the basic header of a chunk
// fmt - Chunk format (0-3)
// cid - Chunk stream ID
// Returns the 1, 2 or 3 byte basic header
func encodeBasicHeader(chunkFmt uint32, cid uint32) []byte {
	if cid >= 64+256 {
		return []byte{
			byte(chunkFmt<<6) | 1,
			byte((cid - 64) & 0xff),
			byte((cid - 64) >> 8),
		}
	} else if cid >= 64 {
		return []byte{
			byte(chunkFmt << 6),
			byte(cid - 64),
		}
	} else {
		return []byte{byte(chunkFmt<<6) | byte(cid&0x3f)}
	}
}

// Slices the packet into chunks ready to be written.
// The first chunk carries a type-0 message header, the
// rest are type-3 continuations for the same cid. Messages
// with a timestamp of 0xffffff or more carry a 4-byte
// extended timestamp on every chunk.
// outChunkSize - Max payload bytes per chunk
// Returns the serialized chunk stream
func (packet *RTMPPacket) CreateChunks(outChunkSize uint32) []byte {
	timestamp := uint32(packet.header.timestamp)
	useExtendedTimestamp := timestamp >= 0xffffff

	payloadSize := packet.header.length
	if payloadSize > uint32(len(packet.payload)) {
		payloadSize = uint32(len(packet.payload))
	}

	b := encodeBasicHeader(RTMP_CHUNK_TYPE_0, packet.header.cid)

	// Message header (11 bytes)
	header := make([]byte, 11)
	if useExtendedTimestamp {
		header[0] = 0xff
		header[1] = 0xff
		header[2] = 0xff
	} else {
		header[0] = byte(timestamp>>16) & 0xff
		header[1] = byte(timestamp>>8) & 0xff
		header[2] = byte(timestamp) & 0xff
	}
	header[3] = byte(payloadSize>>16) & 0xff
	header[4] = byte(payloadSize>>8) & 0xff
	header[5] = byte(payloadSize) & 0xff
	header[6] = byte(packet.header.packet_type)
	binary.LittleEndian.PutUint32(header[7:11], packet.header.stream_id)

	b = append(b, header...)

	extendedTimestamp := make([]byte, 4)
	if useExtendedTimestamp {
		binary.BigEndian.PutUint32(extendedTimestamp, timestamp)
		b = append(b, extendedTimestamp...)
	}

	continuationHeader := encodeBasicHeader(RTMP_CHUNK_TYPE_3, packet.header.cid)

	var written uint32
	for written < payloadSize {
		if written > 0 {
			b = append(b, continuationHeader...)
			if useExtendedTimestamp {
				b = append(b, extendedTimestamp...)
			}
		}

		size := payloadSize - written
		if size > outChunkSize {
			size = outChunkSize
		}

		b = append(b, packet.payload[written:written+size]...)
		written += size
	}

	return b
}
