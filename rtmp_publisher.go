// RTMP session publisher methods

package main

import (
	"container/list"
)

// Appends a media packet to the GOP caches,
// evicting the oldest packets over the size limit.
// Call only with the publish mutex held.
// packet - The media packet
// flvTag - The same packet framed as an FLV tag
func (s *RTMPSession) gopCachePush(packet *RTMPPacket, flvTag []byte) {
	s.rtmpGopCache.PushBack(packet)
	s.flvGopCache.PushBack(flvTag)
	s.gopCacheSize += int64(packet.header.length) + RTMP_PACKET_BASE_SIZE

	for s.gopCacheSize > s.gopCacheLimit && s.rtmpGopCache.Len() > 0 {
		toDelete := s.rtmpGopCache.Front()
		switch x := toDelete.Value.(type) {
		case *RTMPPacket:
			s.gopCacheSize -= int64(x.header.length)
		}
		s.rtmpGopCache.Remove(toDelete)
		s.gopCacheSize -= RTMP_PACKET_BASE_SIZE

		if s.flvGopCache.Len() > 0 {
			s.flvGopCache.Remove(s.flvGopCache.Front())
		}
	}
}

// Clears the GOP caches.
// Call only with the publish mutex held.
func (s *RTMPSession) gopCacheReset() {
	s.rtmpGopCache = list.New()
	s.flvGopCache = list.New()
	s.gopCacheSize = 0
}

// Replays the stream state to a player: metadata,
// sequence headers, then the cached GOP.
// Call only with the publish mutex held.
// player - The player session
func (s *RTMPSession) replayToPlayer(player *RTMPSession) {
	player.SendMetadata(s.metaData)
	player.SendMediaHeader(s.aacSequenceHeader, RTMP_TYPE_AUDIO, 0)
	player.SendMediaHeader(s.avcSequenceHeader, RTMP_TYPE_VIDEO, 0)

	if !player.gopPlayNo && s.rtmpGopCache.Len() > 0 {
		for t := s.rtmpGopCache.Front(); t != nil; t = t.Next() {
			switch x := t.Value.(type) {
			case *RTMPPacket:
				player.SendCachePacket(x)
			}
		}
	}

	player.isPlaying = true
	player.isIdling = false

	if player.gopPlayClear {
		s.gopCacheReset()
		s.gopCacheDisabled = true
	}
}

// Starts sending to idle players
// Call only for publishers
func (s *RTMPSession) StartIdlePlayers() {
	s.publish_mutex.Lock()
	defer s.publish_mutex.Unlock()

	idlePlayers := s.server.GetIdlePlayers(s.publishPath)

	for i := 0; i < len(idlePlayers); i++ {
		player := idlePlayers[i]

		LogRequest(player.id, player.ip, "PLAY START '"+player.playPath+"'")

		s.replayToPlayer(player)
	}
}

// Starts a specific player
// Call only for publishers
// player - The player session
func (s *RTMPSession) StartPlayer(player *RTMPSession) {
	s.publish_mutex.Lock()
	defer s.publish_mutex.Unlock()

	if !s.isPublishing {
		player.isPlaying = false
		player.isIdling = true
		LogRequest(player.id, player.ip, "PLAY IDLE '"+player.playPath+"'")
		return
	}

	LogRequest(player.id, player.ip, "PLAY START '"+player.playPath+"'")

	s.replayToPlayer(player)
}

// Resumes a player that was paused
// Call only for publishers
// player - The player session
func (s *RTMPSession) ResumePlayer(player *RTMPSession) {
	s.publish_mutex.Lock()
	defer s.publish_mutex.Unlock()

	player.SendMediaHeader(s.aacSequenceHeader, RTMP_TYPE_AUDIO, s.clock)
	player.SendMediaHeader(s.avcSequenceHeader, RTMP_TYPE_VIDEO, s.clock)
}

// Finishes a publishing session
// Call only for publishers
// isClose - True if it was closed due to a disconnection
func (s *RTMPSession) EndPublish(isClose bool) {
	s.publish_mutex.Lock()
	defer s.publish_mutex.Unlock()

	if !s.isPublishing {
		return
	}

	LogRequest(s.id, s.ip, "PUBLISH END '"+s.publishPath+"'")

	if !isClose {
		s.SendStatusMessage(s.publishStreamId, "status", "NetStream.Unpublish.Success", s.publishPath+" is now unpublished.")
	}

	players := s.server.GetPlayers(s.publishPath)

	for i := 0; i < len(players); i++ {
		players[i].isIdling = true
		players[i].isPlaying = false
		LogRequest(players[i].id, players[i].ip, "PLAY IDLE '"+players[i].playPath+"'")
		players[i].SendStatusMessage(players[i].playStreamId, "status", "NetStream.Play.UnpublishNotify", "stream is now unpublished.")
		players[i].SendStreamStatus(STREAM_EOF, players[i].playStreamId)
	}

	s.server.RemovePublisher(s.publishPath)

	s.gopCacheReset()

	s.isPublishing = false

	s.server.EmitEvent("donePublish", s, s.publishPath)

	if s.server.coordinatorConnection != nil {
		if s.server.coordinatorConnection.PublishEnd(s.publishPath) {
			LogDebugSession(s.id, s.ip, "Stop event sent")
		} else {
			LogDebugSession(s.id, s.ip, "Could not send stop event")
		}
	}
}

// Sets the clock for a publishing session
// clock - The value of the clock
func (s *RTMPSession) SetClock(clock int64) {
	s.publish_mutex.Lock()
	defer s.publish_mutex.Unlock()

	s.clock = clock
}

// Sets the stream metadata that is being published
// and forwards it to the current players
// metaData - The encoded metadata
func (s *RTMPSession) SetMetaData(metaData []byte) {
	s.publish_mutex.Lock()
	defer s.publish_mutex.Unlock()

	if !s.isPublishing {
		return
	}

	s.metaData = metaData

	players := s.server.GetPlayers(s.publishPath)

	for i := 0; i < len(players); i++ {
		players[i].SendMetadata(metaData)
	}
}
