// RTMP session

package main

import (
	"bufio"
	"container/list"
	"encoding/binary"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Structure to store the bit rate status
type BitRateCache struct {
	intervalMs  int64  // Interval of milliseconds to update
	last_update int64  // Last time updated (unix milliseconds)
	bytes       uint64 // The number of bytes received
}

// Stores the status of a RTMP session
type RTMPSession struct {
	server *RTMPServer // Reference to the server

	conn net.Conn // TCP connection

	id uint64 // Session ID
	ip string // IP address of the client

	inChunkSize  uint32 // Chunk size of incoming packets
	outChunkSize uint32 // Chunk size for outgoing packets

	ackSize   uint32 // Acknowledge window required by the client
	inAckSize uint32 // Amount of bytes received
	inLastAck uint32 // Position of the last acknowledgement sent

	objectEncoding uint32 // Encoding format required by the client

	connectTime int64     // Connection time (unix milliseconds)
	startTime   time.Time // Monotonic start timestamp

	mutex *sync.Mutex // Mutex to control access to the socket write path

	publish_mutex *sync.Mutex // Mutex to control the publishing group

	inPackets map[uint32]*RTMPPacket // Partially received packets. Map: chunk stream ID -> Packet

	playStreamId    uint32 // ID of the stream being played
	publishStreamId uint32 // ID of the stream being published
	streams         uint32 // Number of created streams

	receive_audio bool // True if the client wants to receive audio packets
	receive_video bool // True if the client wants to receive video packets

	appname string // Application name from the connect command

	publishPath string            // Stream path being published
	publishArgs map[string]string // Query args of the publish stream name

	playPath string            // Stream path being played
	playArgs map[string]string // Query args of the play stream name

	connectCmdObj *AMF0Value // The connect command object

	isConnected  bool // True if the client sent the connect message
	isPublishing bool // True if the client is publishing
	isPlaying    bool // True if the client is playing
	isIdling     bool // True if the client is waiting to play a stream
	isPause      bool // True if the client is paused

	killed bool // True if the session was externally stopped

	metaData   []byte         // Encoded metadata for the stream being published
	audioCodec AudioCodecInfo // Audio track description
	videoCodec VideoCodecInfo // Video track description

	aacSequenceHeader []byte // Sequence header for AAC codec (Audio)
	avcSequenceHeader []byte // Sequence header for AVC codec (Video)

	clock int64 // Current clock value

	rtmpGopCache     *list.List // GOP cache (RTMP packets)
	flvGopCache      *list.List // GOP cache (FLV tags)
	gopCacheSize     int64      // Current GOP cache size
	gopCacheLimit    int64      // GOP cache size limit
	gopCacheDisabled bool       // True if the cache is currently disabled
	gopPlayNo        bool       // True if the client refuses to receive the cache packets
	gopPlayClear     bool       // True if the client is requesting to clear the cache

	bitRate      uint64       // Bitrate (bit/ms)
	bitRateCache BitRateCache // Cache to compute bit rate
}

const RTMP_PACKET_BASE_SIZE = 64

// Creates a RTMP session
// server - Server that accepted the connection
// id - Session ID
// ip - Client IP address
// c - TCP connection
// Returns the session
func CreateRTMPSession(server *RTMPServer, id uint64, ip string, c net.Conn) RTMPSession {
	return RTMPSession{
		server:        server,
		conn:          c,
		ip:            ip,
		mutex:         &sync.Mutex{},
		publish_mutex: &sync.Mutex{},
		id:            id,
		inChunkSize:   DEFAULT_CHUNK_SIZE,
		outChunkSize:  uint32(server.config.RTMP.ChunkSize),
		inPackets:     make(map[uint32]*RTMPPacket),
		ackSize:       0,
		inAckSize:     0,
		inLastAck:     0,

		bitRate: 0,
		bitRateCache: BitRateCache{
			intervalMs:  1000,
			last_update: 0,
			bytes:       0,
		},

		objectEncoding:  0,
		streams:         0,
		playStreamId:    0,
		publishStreamId: 0,

		receive_audio: true,
		receive_video: true,

		appname:     "",
		publishPath: "",
		publishArgs: make(map[string]string),
		playPath:    "",
		playArgs:    make(map[string]string),

		connectCmdObj: nil,

		isConnected:  false,
		isPublishing: false,
		isPlaying:    false,
		isIdling:     false,
		isPause:      false,
		killed:       false,

		metaData:          make([]byte, 0),
		aacSequenceHeader: make([]byte, 0),
		avcSequenceHeader: make([]byte, 0),
		clock:             0,

		rtmpGopCache:     list.New(),
		flvGopCache:      list.New(),
		gopCacheSize:     0,
		gopCacheLimit:    server.config.GopCacheLimit,
		gopCacheDisabled: !server.config.RTMP.GopCache,
		gopPlayNo:        false,
		gopPlayClear:     false,
	}
}

// Sends data to the client
// b - The bytes to send
func (s *RTMPSession) SendSync(b []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.conn.Write(b) //nolint:errcheck
}

// Closes the connection, stopping the session
func (s *RTMPSession) Kill() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.killed = true
	s.conn.Close()
}

// Returns the idle timeout for socket reads
func (s *RTMPSession) readTimeout() time.Duration {
	return time.Duration(s.server.config.RTMP.PingTimeout) * time.Second
}

// Handles the session
// Does the handshake and starts reading the chunks
func (s *RTMPSession) HandleSession() {
	r := bufio.NewReader(s.conn)

	e := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout()))
	if e != nil {
		return
	}

	// Handshake

	version, e := r.ReadByte()
	if e != nil {
		return
	}

	if version != RTMP_VERSION {
		LogDebugSession(s.id, s.ip, "Invalid protocol version received")
		return
	}

	handshakeBytes := make([]byte, RTMP_HANDSHAKE_SIZE)
	e = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout()))
	if e != nil {
		return
	}
	n, e := io.ReadFull(r, handshakeBytes)
	if e != nil || n != RTMP_HANDSHAKE_SIZE {
		LogDebugSession(s.id, s.ip, "Invalid handshake received")
		return
	}

	s0s1s2 := generateS0S1S2(handshakeBytes)
	n, e = s.conn.Write(s0s1s2)
	if e != nil || n != len(s0s1s2) {
		LogDebugSession(s.id, s.ip, "Could not send handshake message")
		return
	}

	c2 := make([]byte, RTMP_HANDSHAKE_SIZE)
	e = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout()))
	if e != nil {
		return
	}
	n, e = io.ReadFull(r, c2)
	if e != nil || n != RTMP_HANDSHAKE_SIZE {
		LogDebugSession(s.id, s.ip, "Invalid handshake response received")
		return
	}

	// Read RTMP chunks
	for {
		if !s.ReadChunk(r) {
			return
		}
	}
}

// Reads a chunk
// r - Buffered reader associated with the TCP connection
// Returns true if success, false if the session must stop
func (s *RTMPSession) ReadChunk(r *bufio.Reader) bool {
	var bytesReadCount uint32

	// Basic header
	e := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout()))
	if e != nil {
		return false
	}
	startByte, e := r.ReadByte()
	bytesReadCount++
	if e != nil {
		LogDebugSession(s.id, s.ip, "Could not read chunk start byte. "+e.Error())
		return false
	}

	header := []byte{startByte}

	var parserBasicBytes int
	if (startByte & 0x3f) == 0 {
		parserBasicBytes = 2
	} else if (startByte & 0x3f) == 1 {
		parserBasicBytes = 3
	} else {
		parserBasicBytes = 1
	}

	for i := 1; i < parserBasicBytes; i++ {
		b, e := r.ReadByte()
		bytesReadCount++
		if e != nil {
			LogDebugSession(s.id, s.ip, "Could not read chunk basic bytes")
			return false
		}

		header = append(header, b)
	}

	// Message header
	size := int(rtmpHeaderSize[header[0]>>6])
	if size > 0 {
		headerLeft := make([]byte, size)
		n, e := io.ReadFull(r, headerLeft)
		bytesReadCount += uint32(size)
		if e != nil || n != size {
			LogDebugSession(s.id, s.ip, "Could not read chunk header")
			return false
		}
		header = append(header, headerLeft...)
	}

	// Parse header
	chunkFmt := uint32(header[0] >> 6)

	var cid uint32
	switch parserBasicBytes {
	case 2:
		cid = 64 + uint32(header[1])
	case 3:
		cid = 64 + uint32(header[1]) + (uint32(header[2]) << 8)
	default:
		cid = uint32(header[0] & 0x3f)
	}

	var packet *RTMPPacket

	if s.inPackets[cid] != nil {
		packet = s.inPackets[cid]
		if packet.handled {
			packet.handled = false
			packet.payload = make([]byte, 0)
			packet.bytes = 0
		}
	} else {
		bp := createBlankRTMPPacket()
		packet = &bp
		s.inPackets[cid] = packet
	}

	packet.header.cid = cid
	packet.header.fmt = chunkFmt

	offset := parserBasicBytes

	// Timestamp / delta
	if packet.header.fmt <= RTMP_CHUNK_TYPE_2 {
		packet.header.timestamp = int64((uint32(header[offset+2])) | (uint32(header[offset+1]) << 8) | (uint32(header[offset]) << 16))
		offset += 3
	}

	// Message length + type
	if packet.header.fmt <= RTMP_CHUNK_TYPE_1 {
		packet.header.length = (uint32(header[offset+2])) | (uint32(header[offset+1]) << 8) | (uint32(header[offset]) << 16)
		packet.header.packet_type = uint32(header[offset+3])
		offset += 4
	}

	// Stream ID
	if packet.header.fmt == RTMP_CHUNK_TYPE_0 {
		packet.header.stream_id = binary.LittleEndian.Uint32(header[offset : offset+4])
	}

	if packet.header.packet_type > RTMP_TYPE_METADATA {
		LogDebugSession(s.id, s.ip, "Received stop packet: "+strconv.Itoa(int(packet.header.packet_type)))
		return false
	}

	// Extended timestamp
	// Present on every chunk of a message whose
	// timestamp field saturated at 0xffffff
	var extended_timestamp int64
	if packet.header.timestamp == 0xffffff {
		tsBytes := make([]byte, 4)
		n, e := io.ReadFull(r, tsBytes)
		bytesReadCount += 4
		if e != nil || n != 4 {
			LogDebugSession(s.id, s.ip, "Could not read extended timestamp")
			return false
		}
		extended_timestamp = int64(binary.BigEndian.Uint32(tsBytes))
	} else {
		extended_timestamp = packet.header.timestamp
	}

	if packet.bytes == 0 {
		if packet.header.fmt == RTMP_CHUNK_TYPE_0 {
			packet.clock = extended_timestamp
			packet.delta = 0
		} else {
			// Type 3 reuses the previous delta
			if packet.header.fmt != RTMP_CHUNK_TYPE_3 {
				packet.delta = extended_timestamp
			}
			packet.clock += packet.delta
		}

		s.SetClock(packet.clock)

		if packet.capacity < packet.header.length {
			packet.capacity = 1024 + packet.header.length
		}
	}

	// Payload
	sizeToRead := s.inChunkSize - (packet.bytes % s.inChunkSize)
	if sizeToRead > (packet.header.length - packet.bytes) {
		sizeToRead = packet.header.length - packet.bytes
	}
	if sizeToRead > 0 {
		bytesToRead := make([]byte, sizeToRead)
		e := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout()))
		if e != nil {
			return false
		}
		n, e := io.ReadFull(r, bytesToRead)
		bytesReadCount += sizeToRead
		if e != nil || uint32(n) != sizeToRead {
			LogDebugSession(s.id, s.ip, "Could not read chunk payload")
			return false
		}

		packet.bytes += sizeToRead
		packet.payload = append(packet.payload, bytesToRead...)
	}

	// If packet is ready, handle
	if packet.bytes >= packet.header.length {
		packet.handled = true // Remove from pending packets
		if packet.clock <= 0xffffffff {
			if !s.HandlePacket(packet) {
				LogDebugSession(s.id, s.ip, "Could not handle packet")
				return false
			}
		}
	}

	// ACK
	s.inAckSize += bytesReadCount
	if s.inAckSize >= 0xf0000000 {
		s.inAckSize = 0
		s.inLastAck = 0
	}
	if s.ackSize > 0 && s.inAckSize-s.inLastAck >= s.ackSize {
		s.inLastAck = s.inAckSize
		s.SendACK(s.inAckSize)
	}

	// Bitrate
	now := time.Now().UnixMilli()
	s.bitRateCache.bytes += uint64(bytesReadCount)
	diff := now - s.bitRateCache.last_update
	if diff >= s.bitRateCache.intervalMs {
		s.bitRate = uint64(math.Round(float64(s.bitRateCache.bytes) * 8 / float64(diff)))
		s.bitRateCache.bytes = 0
		s.bitRateCache.last_update = now
	}

	return true
}

// Handles a packet
// packet - The received packet
func (s *RTMPSession) HandlePacket(packet *RTMPPacket) bool {
	switch packet.header.packet_type {
	case RTMP_TYPE_SET_CHUNK_SIZE:
		s.inChunkSize = binary.BigEndian.Uint32(packet.payload[0:4])
		LogDebugSession(s.id, s.ip, "Chunk size updated: "+strconv.Itoa(int(s.inChunkSize)))
	case RTMP_TYPE_ABORT:
		// Ignored
	case RTMP_TYPE_ACKNOWLEDGEMENT:
		// Ignored
	case RTMP_TYPE_WINDOW_ACKNOWLEDGEMENT_SIZE:
		s.ackSize = binary.BigEndian.Uint32(packet.payload[0:4])
		LogDebugSession(s.id, s.ip, "ACK size updated: "+strconv.Itoa(int(s.ackSize)))
	case RTMP_TYPE_SET_PEER_BANDWIDTH:
		// Ignored
	case RTMP_TYPE_EVENT:
		// Ignored
	case RTMP_TYPE_AUDIO:
		return s.HandleAudioPacket(packet)
	case RTMP_TYPE_VIDEO:
		return s.HandleVideoPacket(packet)
	case RTMP_TYPE_FLEX_MESSAGE:
		return s.HandleInvoke(packet)
	case RTMP_TYPE_INVOKE:
		return s.HandleInvoke(packet)
	case RTMP_TYPE_DATA:
		return s.HandleDataPacketAMF0(packet)
	case RTMP_TYPE_FLEX_STREAM:
		return s.HandleDataPacketAMF3(packet)
	default:
		LogDebugSession(s.id, s.ip, "Received packet: "+strconv.Itoa(int(packet.header.packet_type)))
	}

	return true
}

// Handles an INVOKE (command) packet
// packet - The packet
func (s *RTMPSession) HandleInvoke(packet *RTMPPacket) bool {
	var offset uint32
	if packet.header.packet_type == RTMP_TYPE_FLEX_MESSAGE {
		// AMF3 commands carry a type-switch prefix byte
		offset = 1
	}

	payload := packet.payload[offset:packet.header.length]

	cmd := decodeRTMPCommand(payload)

	LogDebugSession(s.id, s.ip, "Received invoke: "+cmd.ToString())

	switch cmd.cmd {
	case "connect":
		return s.HandleConnect(&cmd)
	case "createStream":
		return s.HandleCreateStream(&cmd)
	case "publish":
		return s.HandlePublish(&cmd, packet)
	case "play":
		return s.HandlePlay(&cmd, packet)
	case "pause":
		return s.HandlePause(&cmd)
	case "deleteStream":
		return s.HandleDeleteStream(&cmd)
	case "closeStream":
		return s.HandleCloseStream(&cmd, packet)
	case "receiveAudio":
		s.receive_audio = cmd.GetArg("bool").GetBool()
	case "receiveVideo":
		s.receive_video = cmd.GetArg("bool").GetBool()
	default:
		LogDebugSession(s.id, s.ip, "Unknown command: "+cmd.cmd)
	}

	return true
}

// Handles a connect command
// cmd - The command
func (s *RTMPSession) HandleConnect(cmd *RTMPCommand) bool {
	cmdObj := cmd.GetArg("cmdObj")

	// Some encoders send the app name with a leading slash
	s.appname = strings.TrimPrefix(cmdObj.GetProperty("app").GetString(), "/")

	if !validateStreamIDString(s.appname, s.server.config.StreamIdMaxLength) {
		LogRequest(s.id, s.ip, "INVALID APP '"+s.appname+"'")
		return false
	}

	s.connectCmdObj = cmdObj
	s.objectEncoding = uint32(cmdObj.GetProperty("objectEncoding").GetInteger())
	s.connectTime = time.Now().UnixMilli()
	s.startTime = time.Now()
	s.bitRateCache.last_update = s.connectTime
	s.bitRateCache.bytes = 0
	s.isConnected = true

	s.server.EmitEvent("preConnect", s, "")

	if s.killed {
		return false
	}

	transId := cmd.GetArg("transId").GetInteger()

	LogRequest(s.id, s.ip, "CONNECT '"+s.appname+"'")

	s.SendWindowACK(5000000)
	s.SetPeerBandwidth(5000000, 2)
	s.SetChunkSize(s.outChunkSize)
	s.RespondConnect(transId)

	s.server.EmitEvent("postConnect", s, "")

	return true
}

// Handles a createStream command
// cmd - The command
func (s *RTMPSession) HandleCreateStream(cmd *RTMPCommand) bool {
	transId := cmd.GetArg("transId").GetInteger()
	s.RespondCreateStream(transId)

	return true
}

// Handles a publish command
// cmd - The command
// packet - The packet
func (s *RTMPSession) HandlePublish(cmd *RTMPCommand, packet *RTMPPacket) bool {
	if !cmd.GetArg("streamName").IsString() {
		// Some encoders send a publish command
		// with no stream name, skip it
		return true
	}

	key, args := splitStreamName(cmd.GetArg("streamName").GetString())

	if key == "" || !s.isConnected {
		return true
	}

	if !validateStreamIDString(key, s.server.config.StreamIdMaxLength) {
		s.SendStatusMessage(s.publishStreamId, "error", "NetStream.Publish.BadName", "Invalid stream name provided")
		return false
	}

	s.publishStreamId = packet.header.stream_id
	s.publishPath = "/" + s.appname + "/" + key
	s.publishArgs = args

	if s.isPublishing {
		s.SendStatusMessage(s.publishStreamId, "error", "NetStream.Publish.BadConnection", "Connection already publishing")
		return true
	}

	s.server.EmitEvent("prePublish", s, s.publishPath)

	if s.killed {
		return false
	}

	LogRequest(s.id, s.ip, "PUBLISH ("+strconv.Itoa(int(s.publishStreamId))+") '"+s.publishPath+"'")

	if s.server.coordinatorConnection != nil {
		// Coordinator decides
		accepted := s.server.coordinatorConnection.RequestPublish(s.publishPath, s.ip)
		if !accepted {
			LogRequest(s.id, s.ip, "Error: Publishing denied by the coordinator")
			s.SendStatusMessage(s.publishStreamId, "error", "NetStream.Publish.Unauthorized", "Publishing denied")
			return true
		}
	} else if s.server.config.Auth.Publish && !isLocalhostAddr(s.ip) {
		if !verifyStreamSign(s.publishArgs["sign"], s.publishPath, s.server.config.Auth.Secret) {
			LogRequest(s.id, s.ip, "Error: Invalid publish signature provided")
			s.SendStatusMessage(s.publishStreamId, "error", "NetStream.publish.Unauthorized", "Invalid signature provided")
			return true
		}
	}

	if !s.server.SetPublisher(s.publishPath, s) {
		// The incumbent publisher is untouched
		s.SendStatusMessage(s.publishStreamId, "error", "NetStream.Publish.BadName", "Stream already publishing")
		return true
	}

	s.isPublishing = true

	s.SendStatusMessage(s.publishStreamId, "status", "NetStream.Publish.Start", s.publishPath+" is now published.")

	s.StartIdlePlayers()

	// Delay the post-publish event so listeners observe
	// the codec fields once media frames have arrived
	time.AfterFunc(200*time.Millisecond, func() {
		if s.isPublishing {
			s.server.EmitEvent("postPublish", s, s.publishPath)
		}
	})

	return true
}

// Handles a play command
// cmd - The command
// packet - The packet
func (s *RTMPSession) HandlePlay(cmd *RTMPCommand, packet *RTMPPacket) bool {
	key, args := splitStreamName(cmd.GetArg("streamName").GetString())

	if key == "" || !s.isConnected {
		return true
	}

	if !validateStreamIDString(key, s.server.config.StreamIdMaxLength) {
		s.SendStatusMessage(s.playStreamId, "error", "NetStream.Play.BadName", "Invalid stream name provided")
		return false
	}

	s.playStreamId = packet.header.stream_id
	s.playPath = "/" + s.appname + "/" + key
	s.playArgs = args

	s.gopPlayNo = (args["cache"] == "no")
	s.gopPlayClear = (args["cache"] == "clear")

	if s.isIdling || s.isPlaying {
		s.SendStatusMessage(s.playStreamId, "error", "NetStream.Play.BadConnection", "Connection already playing")
		return true
	}

	s.server.EmitEvent("prePlay", s, s.playPath)

	if s.killed {
		return false
	}

	if s.server.config.Auth.Play && !isLocalhostAddr(s.ip) {
		if !verifyStreamSign(s.playArgs["sign"], s.playPath, s.server.config.Auth.Secret) {
			LogRequest(s.id, s.ip, "Error: Invalid play signature provided")
			s.SendStatusMessage(s.playStreamId, "error", "NetStream.play.Unauthorized", "Invalid signature provided")
			return true
		}
	}

	LogRequest(s.id, s.ip, "PLAY ("+strconv.Itoa(int(s.playStreamId))+") '"+s.playPath+"'")

	s.RespondPlay()

	idle := s.server.AddPlayer(s.playPath, s)

	if !idle {
		publisher := s.server.GetPublisher(s.playPath)
		if publisher != nil {
			publisher.StartPlayer(s)
		}
	} else {
		LogRequest(s.id, s.ip, "PLAY IDLE '"+s.playPath+"'")
	}

	s.server.EmitEvent("postPlay", s, s.playPath)

	return true
}

// Handles a pause command
// cmd - The command
func (s *RTMPSession) HandlePause(cmd *RTMPCommand) bool {
	if !s.isPlaying {
		return true
	}

	s.isPause = cmd.GetArg("pause").GetBool()

	if s.isPause {
		s.SendStreamStatus(STREAM_EOF, s.playStreamId)
		s.SendStatusMessage(s.playStreamId, "status", "NetStream.Pause.Notify", "Paused live")
		LogRequest(s.id, s.ip, "PAUSE '"+s.playPath+"'")
	} else {
		s.SendStreamStatus(STREAM_BEGIN, s.playStreamId)
		publisher := s.server.GetPublisher(s.playPath)

		if publisher != nil {
			LogRequest(s.id, s.ip, "RESUME '"+s.playPath+"'")
			publisher.ResumePlayer(s)
		}

		s.SendStatusMessage(s.playStreamId, "status", "NetStream.Unpause.Notify", "Unpaused live")
	}

	return true
}

// Handles a deleteStream command
// cmd - The command
func (s *RTMPSession) HandleDeleteStream(cmd *RTMPCommand) bool {
	s.DeleteStream(uint32(cmd.GetArg("streamId").GetInteger()), false)
	return true
}

// Closes a play or publish stream
// streamId - ID of the stream
// isClose - True if closing due to a disconnection
func (s *RTMPSession) DeleteStream(streamId uint32, isClose bool) {
	if streamId == s.playStreamId && streamId > 0 {
		// Close play
		LogRequest(s.id, s.ip, "PLAY STOP '"+s.playPath+"'")

		s.server.RemovePlayer(s.playPath, s)

		if !isClose {
			s.SendStatusMessage(s.playStreamId, "status", "NetStream.Play.Stop", "Stopped playing stream.")
		}

		s.server.EmitEvent("donePlay", s, s.playPath)

		s.playStreamId = 0
		s.isPlaying = false
		s.isIdling = false
	}

	if streamId == s.publishStreamId && streamId > 0 {
		// Close publish
		LogDebugSession(s.id, s.ip, "Close publish stream: "+strconv.Itoa(int(streamId)))

		if s.isPublishing {
			s.EndPublish(isClose)
		}

		s.publishStreamId = 0
	}
}

// Handles a closeStream command
// cmd - The command
// packet - The packet
func (s *RTMPSession) HandleCloseStream(cmd *RTMPCommand, packet *RTMPPacket) bool {
	streamId := createAMF0Value(AMF0_TYPE_NUMBER)
	streamId.SetIntegerVal(int64(packet.header.stream_id))
	cmd.SetArg("streamId", streamId)
	return s.HandleDeleteStream(cmd)
}

// Handles an audio packet (contains audio data)
// packet - The packet
func (s *RTMPSession) HandleAudioPacket(packet *RTMPPacket) bool {
	s.publish_mutex.Lock()
	defer s.publish_mutex.Unlock()

	if !s.isPublishing || len(packet.payload) < 2 {
		return true
	}

	if s.audioCodec.codec == 0 {
		s.audioCodec = parseAudioFirstByte(packet.payload)
	}

	sound_format := (packet.payload[0] >> 4) & 0x0f

	isHeader := (sound_format == AUDIO_CODEC_AAC || sound_format == AUDIO_CODEC_OPUS) && packet.payload[1] == 0

	if isHeader {
		s.aacSequenceHeader = packet.payload

		if sound_format == AUDIO_CODEC_AAC {
			// The AudioSpecificConfig overrides the
			// sample rate from the first byte
			config := readAACSpecificConfig(s.aacSequenceHeader)
			s.audioCodec.sample_rate = config.sample_rate
			s.audioCodec.channels = config.channels
			s.audioCodec.profile = getAACProfileName(config)
		}
	}

	cachePacket := createBlankRTMPPacket()
	cachePacket.header.fmt = RTMP_CHUNK_TYPE_0
	cachePacket.header.cid = RTMP_CHANNEL_AUDIO
	cachePacket.header.packet_type = RTMP_TYPE_AUDIO
	cachePacket.payload = packet.payload
	cachePacket.header.length = uint32(len(cachePacket.payload))
	cachePacket.header.timestamp = s.clock

	flvTag := createFlvTag(&cachePacket)

	if !isHeader && !s.gopCacheDisabled {
		s.gopCachePush(&cachePacket, flvTag)
	}

	players := s.server.GetPlayers(s.publishPath)

	for i := 0; i < len(players); i++ {
		if players[i].isPlaying && !players[i].isPause && players[i].receive_audio {
			players[i].SendCachePacket(&cachePacket)
		}
	}

	return true
}

// Handles a video packet (contains video data)
// packet - The packet
func (s *RTMPSession) HandleVideoPacket(packet *RTMPPacket) bool {
	s.publish_mutex.Lock()
	defer s.publish_mutex.Unlock()

	if !s.isPublishing || len(packet.payload) < 2 {
		return true
	}

	frame_type := (packet.payload[0] >> 4) & 0x0f
	codec_id := packet.payload[0] & 0x0f

	isAVC := codec_id == VIDEO_CODEC_H264 || codec_id == VIDEO_CODEC_HEVC
	isHeader := isAVC && frame_type == 1 && packet.payload[1] == 0

	if isHeader {
		s.avcSequenceHeader = packet.payload
		s.videoCodec = readVideoSpecificConfig(s.avcSequenceHeader)
		s.gopCacheReset()
	} else if isAVC && frame_type == 1 && packet.payload[1] == 1 {
		// New IDR, the cache restarts at this keyframe
		s.gopCacheReset()
	}

	if s.videoCodec.codec == 0 {
		s.videoCodec.codec = uint32(codec_id)
		s.videoCodec.codec_name = getVideoCodecName(uint32(codec_id))
	}

	cachePacket := createBlankRTMPPacket()
	cachePacket.header.fmt = RTMP_CHUNK_TYPE_0
	cachePacket.header.cid = RTMP_CHANNEL_VIDEO
	cachePacket.header.packet_type = RTMP_TYPE_VIDEO
	cachePacket.payload = packet.payload
	cachePacket.header.length = uint32(len(cachePacket.payload))
	cachePacket.header.timestamp = s.clock

	flvTag := createFlvTag(&cachePacket)

	if !isHeader && !s.gopCacheDisabled {
		s.gopCachePush(&cachePacket, flvTag)
	}

	players := s.server.GetPlayers(s.publishPath)

	for i := 0; i < len(players); i++ {
		if players[i].isPlaying && !players[i].isPause && players[i].receive_video {
			players[i].SendCachePacket(&cachePacket)
		}
	}

	return true
}

// Handles a data packet encoded with AMF0
// packet - The packet
func (s *RTMPSession) HandleDataPacketAMF0(packet *RTMPPacket) bool {
	data := decodeRTMPData(packet.payload)
	return s.HandleRTMPData(packet, &data)
}

// Handles a data packet encoded with AMF3
// packet - The packet
func (s *RTMPSession) HandleDataPacketAMF3(packet *RTMPPacket) bool {
	// AMF3 data carries a type-switch prefix byte
	data := decodeRTMPData(packet.payload[1:])
	return s.HandleRTMPData(packet, &data)
}

// Handles a data message
// packet - The packet
// data - The decoded data message
func (s *RTMPSession) HandleRTMPData(packet *RTMPPacket, data *RTMPData) bool {
	switch data.tag {
	case "@setDataFrame":
		if data.GetArg("method").GetString() == "onMetaData" || data.GetArg("method").IsUndefined() {
			s.SetMetaData(s.BuildMetadata(data))
		}
	default:
		LogDebugSession(s.id, s.ip, "Unknown data tag: "+data.tag)
	}

	return true
}

// Captures the interesting metadata fields and
// re-encodes the metadata as an onMetaData message
// data - The received @setDataFrame message
// Returns the encoded metadata
func (s *RTMPSession) BuildMetadata(data *RTMPData) []byte {
	dataObj := data.GetArg("dataObj")

	if !dataObj.IsUndefined() {
		s.audioCodec.sample_rate = uint32(dataObj.GetProperty("audiosamplerate").GetInteger())

		if dataObj.GetProperty("stereo").GetBool() {
			s.audioCodec.channels = 2
		} else {
			s.audioCodec.channels = 1
		}

		s.videoCodec.width = uint32(dataObj.GetProperty("width").GetInteger())
		s.videoCodec.height = uint32(dataObj.GetProperty("height").GetInteger())
	}

	metaData := createRTMPData("onMetaData")
	metaData.SetArg("dataObj", *dataObj)

	return metaData.Encode()
}

// Call after the TCP connection is closed
func (s *RTMPSession) OnClose() {
	if s.playStreamId > 0 {
		s.DeleteStream(s.playStreamId, true)
	}
	if s.publishStreamId > 0 {
		s.DeleteStream(s.publishStreamId, true)
	}

	wasConnected := s.isConnected
	s.isConnected = false

	if wasConnected {
		s.server.EmitEvent("doneConnect", s, "")
	}
}
