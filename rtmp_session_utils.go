// RTMP session message senders

package main

import (
	"encoding/binary"
	"time"
)

func (s *RTMPSession) SendACK(size uint32) {
	b := []byte{
		0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x04, 0x03,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}

	binary.BigEndian.PutUint32(b[12:16], size)

	s.SendSync(b)
}

func (s *RTMPSession) SendWindowACK(size uint32) {
	b := []byte{
		0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x04, 0x05,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}

	binary.BigEndian.PutUint32(b[12:16], size)

	s.SendSync(b)
}

func (s *RTMPSession) SetPeerBandwidth(size uint32, t byte) {
	b := []byte{
		0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x05, 0x06,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00,
	}

	binary.BigEndian.PutUint32(b[12:16], size)

	b[16] = t

	s.SendSync(b)
}

func (s *RTMPSession) SetChunkSize(size uint32) {
	b := []byte{
		0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x04, 0x01,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}

	binary.BigEndian.PutUint32(b[12:16], size)

	s.SendSync(b)
}

func (s *RTMPSession) SendStreamStatus(st uint16, id uint32) {
	b := []byte{
		0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x06, 0x04,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}

	binary.BigEndian.PutUint16(b[12:14], st)
	binary.BigEndian.PutUint32(b[14:18], id)

	s.SendSync(b)
}

// Sends a ping request (user control event 6)
// with the milliseconds since connect as payload
func (s *RTMPSession) SendPingRequest() {
	if !s.isConnected {
		return
	}

	currentTimestamp := time.Since(s.startTime).Milliseconds()
	packet := createBlankRTMPPacket()

	packet.header.fmt = RTMP_CHUNK_TYPE_0
	packet.header.cid = RTMP_CHANNEL_PROTOCOL
	packet.header.packet_type = RTMP_TYPE_EVENT
	packet.header.timestamp = currentTimestamp

	packet.payload = []byte{
		0,
		PING_EVENT_REQUEST,
		byte(currentTimestamp>>24) & 0xff,
		byte(currentTimestamp>>16) & 0xff,
		byte(currentTimestamp>>8) & 0xff,
		byte(currentTimestamp) & 0xff,
	}

	packet.header.length = uint32(len(packet.payload))

	s.SendSync(packet.CreateChunks(s.outChunkSize))
}

func (s *RTMPSession) SendInvokeMessage(stream_id uint32, cmd RTMPCommand) {
	packet := createBlankRTMPPacket()

	packet.header.fmt = RTMP_CHUNK_TYPE_0
	packet.header.cid = RTMP_CHANNEL_INVOKE
	packet.header.packet_type = RTMP_TYPE_INVOKE
	packet.header.stream_id = stream_id
	packet.payload = cmd.Encode()
	packet.header.length = uint32(len(packet.payload))

	s.SendSync(packet.CreateChunks(s.outChunkSize))
}

func (s *RTMPSession) SendDataMessage(stream_id uint32, data RTMPData) {
	packet := createBlankRTMPPacket()

	packet.header.fmt = RTMP_CHUNK_TYPE_0
	packet.header.cid = RTMP_CHANNEL_DATA
	packet.header.packet_type = RTMP_TYPE_DATA
	packet.header.stream_id = stream_id
	packet.payload = data.Encode()
	packet.header.length = uint32(len(packet.payload))

	s.SendSync(packet.CreateChunks(s.outChunkSize))
}

func (s *RTMPSession) SendStatusMessage(stream_id uint32, level string, code string, description string) {
	cmd := createRTMPCommand("onStatus")

	transId := createAMF0Value(AMF0_TYPE_NUMBER)
	transId.SetIntegerVal(0)
	cmd.SetArg("transId", transId)

	cmd.SetArg("cmdObj", createAMF0Value(AMF0_TYPE_NULL))

	info := createAMF0Value(AMF0_TYPE_OBJECT)

	info_level := createAMF0Value(AMF0_TYPE_STRING)
	info_level.SetStringVal(level)
	info.SetProperty("level", info_level)

	info_code := createAMF0Value(AMF0_TYPE_STRING)
	info_code.SetStringVal(code)
	info.SetProperty("code", info_code)

	if description != "" {
		info_description := createAMF0Value(AMF0_TYPE_STRING)
		info_description.SetStringVal(description)
		info.SetProperty("description", info_description)
	}

	cmd.SetArg("info", info)

	s.SendInvokeMessage(stream_id, cmd)
}

func (s *RTMPSession) SendSampleAccess(stream_id uint32) {
	data := createRTMPData("|RtmpSampleAccess")

	bool1 := createAMF0Value(AMF0_TYPE_BOOL)
	bool1.SetBoolVal(false)
	data.SetArg("bool1", bool1)

	bool2 := createAMF0Value(AMF0_TYPE_BOOL)
	bool2.SetBoolVal(false)
	data.SetArg("bool2", bool2)

	s.SendDataMessage(stream_id, data)
}

func (s *RTMPSession) RespondConnect(tid int64) {
	cmd := createRTMPCommand("_result")

	transId := createAMF0Value(AMF0_TYPE_NUMBER)
	transId.SetIntegerVal(tid)
	cmd.SetArg("transId", transId)

	cmdObj := createAMF0Value(AMF0_TYPE_OBJECT)

	fmsVer := createAMF0Value(AMF0_TYPE_STRING)
	fmsVer.SetStringVal("FMS/3,0,1,123")
	cmdObj.SetProperty("fmsVer", fmsVer)

	capabilities := createAMF0Value(AMF0_TYPE_NUMBER)
	capabilities.SetIntegerVal(31)
	cmdObj.SetProperty("capabilities", capabilities)

	cmd.SetArg("cmdObj", cmdObj)

	info := createAMF0Value(AMF0_TYPE_OBJECT)

	info_level := createAMF0Value(AMF0_TYPE_STRING)
	info_level.SetStringVal("status")
	info.SetProperty("level", info_level)

	info_code := createAMF0Value(AMF0_TYPE_STRING)
	info_code.SetStringVal("NetConnection.Connect.Success")
	info.SetProperty("code", info_code)

	info_description := createAMF0Value(AMF0_TYPE_STRING)
	info_description.SetStringVal("Connection succeeded.")
	info.SetProperty("description", info_description)

	objectEncoding := createAMF0Value(AMF0_TYPE_NUMBER)
	objectEncoding.SetIntegerVal(int64(s.objectEncoding))
	info.SetProperty("objectEncoding", objectEncoding)

	cmd.SetArg("info", info)

	s.SendInvokeMessage(0, cmd)
}

func (s *RTMPSession) RespondCreateStream(tid int64) {
	cmd := createRTMPCommand("_result")

	transId := createAMF0Value(AMF0_TYPE_NUMBER)
	transId.SetIntegerVal(tid)
	cmd.SetArg("transId", transId)

	cmd.SetArg("cmdObj", createAMF0Value(AMF0_TYPE_NULL))

	s.streams++

	info := createAMF0Value(AMF0_TYPE_NUMBER)
	info.SetIntegerVal(int64(s.streams))
	cmd.SetArg("info", info)

	s.SendInvokeMessage(0, cmd)
}

func (s *RTMPSession) RespondPlay() {
	s.SendStreamStatus(STREAM_BEGIN, s.playStreamId)
	s.SendStatusMessage(s.playStreamId, "status", "NetStream.Play.Reset", "Playing and resetting stream.")
	s.SendStatusMessage(s.playStreamId, "status", "NetStream.Play.Start", "Started playing stream.")
	s.SendSampleAccess(0)
}

// Sends a cached media packet to this player, with
// the stream id field rewritten to the play stream
// packet - The media packet
func (s *RTMPSession) SendCachePacket(packet *RTMPPacket) {
	copied := RTMPPacket{
		header:  packet.header,
		payload: packet.payload,
	}
	copied.header.stream_id = s.playStreamId

	s.SendSync(copied.CreateChunks(s.outChunkSize))
}

// Sends the stream metadata to this player
// metaData - The encoded metadata
func (s *RTMPSession) SendMetadata(metaData []byte) {
	if len(metaData) == 0 {
		return
	}

	packet := createBlankRTMPPacket()

	packet.header.fmt = RTMP_CHUNK_TYPE_0
	packet.header.cid = RTMP_CHANNEL_DATA
	packet.header.packet_type = RTMP_TYPE_DATA
	packet.header.stream_id = s.playStreamId
	packet.payload = metaData
	packet.header.length = uint32(len(packet.payload))

	s.SendSync(packet.CreateChunks(s.outChunkSize))
}

// Sends a cached sequence header to this player
// seqHeader - The sequence header payload
// packetType - RTMP_TYPE_AUDIO or RTMP_TYPE_VIDEO
// clock - Timestamp for the packet
func (s *RTMPSession) SendMediaHeader(seqHeader []byte, packetType uint32, clock int64) {
	if len(seqHeader) == 0 {
		return
	}

	packet := createBlankRTMPPacket()

	packet.header.fmt = RTMP_CHUNK_TYPE_0
	if packetType == RTMP_TYPE_AUDIO {
		packet.header.cid = RTMP_CHANNEL_AUDIO
	} else {
		packet.header.cid = RTMP_CHANNEL_VIDEO
	}
	packet.header.packet_type = packetType
	packet.header.stream_id = s.playStreamId
	packet.header.timestamp = clock
	packet.payload = seqHeader
	packet.header.length = uint32(len(packet.payload))

	s.SendSync(packet.CreateChunks(s.outChunkSize))
}
