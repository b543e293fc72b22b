// RTMP server

package main

import (
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Status data for a specific stream path
type RTMPChannel struct {
	path string // The stream path: /{app}/{name}

	is_publishing bool   // True if there is an stream being published
	publisher     uint64 // The ID of the session that is publishing

	players map[uint64]bool // Players receiving the stream or waiting for it
}

// Broker event, passed to subscribed listeners
type RTMPServerEvent struct {
	name      string // Event name (preConnect, postPublish, ...)
	sessionId uint64 // Session that caused the event
	path      string // Stream path, when the event concerns one

	session *RTMPSession
}

type RTMPEventListener func(event *RTMPServerEvent)

// RTMP server
type RTMPServer struct {
	config ServerConfig // Configuration snapshot

	listener net.Listener // TCP listener

	coordinatorConnection *ControlServerConnection // Connection to the coordinator server

	mutex *sync.Mutex // Mutex to access the status data (sessions, channels)

	sessions map[uint64]*RTMPSession // Active sessions
	channels map[string]*RTMPChannel // Active streaming channels. Map: stream path -> channel

	ipCount  map[string]uint32 // Mapping IP -> Number of active sessions
	ip_mutex *sync.Mutex       // Mutex for the IP count mapping

	next_session_id  uint64      // ID for the next incoming session
	session_id_mutex *sync.Mutex // Mutex to ensure session IDs are unique

	listeners      map[string][]RTMPEventListener // Event bus subscribers
	listeners_lock *sync.Mutex                    // Mutex for the subscribers mapping

	closed bool // True if the server is closed
}

// Creates a RTMP server. Does not bind any socket,
// so independent instances can be created for tests.
// config - The configuration to use
func CreateRTMPServer(config ServerConfig) *RTMPServer {
	server := RTMPServer{
		config:                config,
		listener:              nil,
		mutex:                 &sync.Mutex{},
		session_id_mutex:      &sync.Mutex{},
		ip_mutex:              &sync.Mutex{},
		listeners_lock:        &sync.Mutex{},
		sessions:              make(map[uint64]*RTMPSession),
		channels:              make(map[string]*RTMPChannel),
		listeners:             make(map[string][]RTMPEventListener),
		next_session_id:       1,
		closed:                false,
		ipCount:               make(map[string]uint32),
		coordinatorConnection: nil,
	}

	if os.Getenv("CONTROL_USE") == "YES" {
		server.coordinatorConnection = &ControlServerConnection{}
	}

	return &server
}

// Binds the TCP listener
// Returns true on success
func (server *RTMPServer) Bind() bool {
	addr := server.config.BindAddress + ":" + strconv.Itoa(server.config.RTMP.Port)

	l, err := net.Listen("tcp", addr)
	if err != nil {
		LogError(err)
		return false
	}

	server.listener = l
	LogInfo("[RTMP] Listening on " + addr)

	return true
}

// Subscribes a listener to a broker event
// name - Event name
// listener - The listener
func (server *RTMPServer) On(name string, listener RTMPEventListener) {
	server.listeners_lock.Lock()
	defer server.listeners_lock.Unlock()

	server.listeners[name] = append(server.listeners[name], listener)
}

// Emits a broker event to every subscribed listener
// name - Event name
// s - The session that caused it
// path - Stream path, or empty
func (server *RTMPServer) EmitEvent(name string, s *RTMPSession, path string) {
	server.listeners_lock.Lock()
	listeners := server.listeners[name]
	server.listeners_lock.Unlock()

	if len(listeners) == 0 {
		return
	}

	event := RTMPServerEvent{
		name:      name,
		sessionId: s.id,
		path:      path,
		session:   s,
	}

	for i := 0; i < len(listeners); i++ {
		listeners[i](&event)
	}
}

// Adds an active session to the count for an IP address
// ip - The IP address
// Returns true if it was added, false if it reached the limit
func (server *RTMPServer) AddIP(ip string) bool {
	server.ip_mutex.Lock()
	defer server.ip_mutex.Unlock()

	c := server.ipCount[ip]

	if c >= server.config.IpLimit {
		return false
	}

	server.ipCount[ip] = c + 1

	return true
}

// Checks if an IP address is exempted from the IP limit
// ipStr - The IP address
// Returns true if exempted
func (server *RTMPServer) isIPExempted(ipStr string) bool {
	r := os.Getenv("CONCURRENT_LIMIT_WHITELIST")

	if r == "" {
		return false
	}

	if r == "*" {
		return true
	}

	ip := net.ParseIP(ipStr)

	parts := strings.Split(r, ",")

	for i := 0; i < len(parts); i++ {
		_, rang, e := net.ParseCIDR(parts[i])

		if e != nil {
			LogError(e)
			continue
		}

		if rang.Contains(ip) {
			return true
		}
	}

	return false
}

// Removes an active session from the count of an IP
// Call after the session is closed
// ip - The IP address
func (server *RTMPServer) RemoveIP(ip string) {
	server.ip_mutex.Lock()
	defer server.ip_mutex.Unlock()

	c := server.ipCount[ip]

	if c <= 1 {
		delete(server.ipCount, ip)
	} else {
		server.ipCount[ip] = c - 1
	}
}

// Generates an unique session ID
func (server *RTMPServer) NextSessionID() uint64 {
	server.session_id_mutex.Lock()
	defer server.session_id_mutex.Unlock()

	r := server.next_session_id
	server.next_session_id++
	return r
}

// Adds a session to the registry
// s - The session
func (server *RTMPServer) AddSession(s *RTMPSession) {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	server.sessions[s.id] = s
}

// Removes a session from the registry (idempotent)
// id - The session ID
func (server *RTMPServer) RemoveSession(id uint64) {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	delete(server.sessions, id)
}

// Returns a session by its ID, or nil
// id - The session ID
func (server *RTMPServer) GetSession(id uint64) *RTMPSession {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	return server.sessions[id]
}

// Checks if there is an active stream being published on a path
// path - The stream path
// Returns true if active publishing
func (server *RTMPServer) isPublishing(path string) bool {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	return server.channels[path] != nil && server.channels[path].is_publishing
}

// Obtains a reference to the session that is publishing on a path
// path - The stream path
// Returns the reference, or nil
func (server *RTMPServer) GetPublisher(path string) *RTMPSession {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	if server.channels[path] == nil {
		return nil
	}

	if !server.channels[path].is_publishing {
		return nil
	}

	id := server.channels[path].publisher
	return server.sessions[id]
}

// Sets the publisher for a stream path
// path - The stream path
// s - The session that is publishing
// Returns true if success, false if there was another session publishing
func (server *RTMPServer) SetPublisher(path string, s *RTMPSession) bool {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	if server.channels[path] != nil && server.channels[path].is_publishing {
		return false
	}

	if server.channels[path] == nil {
		c := RTMPChannel{
			path:          path,
			is_publishing: true,
			publisher:     s.id,
			players:       make(map[uint64]bool),
		}
		server.channels[path] = &c
	} else {
		server.channels[path].is_publishing = true
		server.channels[path].publisher = s.id
	}

	return true
}

// Removes the current publisher for a stream path
// Any players are kept, marked idle
// path - The stream path
func (server *RTMPServer) RemovePublisher(path string) {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	if server.channels[path] == nil {
		return
	}

	server.channels[path].publisher = 0
	server.channels[path].is_publishing = false

	players := server.channels[path].players

	for sid := range players {
		player := server.sessions[sid]
		if player != nil {
			player.isIdling = true
			player.isPlaying = false
		}
	}

	if len(server.channels[path].players) == 0 {
		delete(server.channels, path)
	}
}

// Obtains the list of idle players for a stream path
// path - The stream path
// Returns the list of sessions waiting to play the stream
func (server *RTMPServer) GetIdlePlayers(path string) []*RTMPSession {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	if server.channels[path] == nil {
		return make([]*RTMPSession, 0)
	}

	players := server.channels[path].players

	result := make([]*RTMPSession, 0)

	for sid := range players {
		player := server.sessions[sid]
		if player != nil && player.isIdling {
			result = append(result, player)
		}
	}

	return result
}

// Obtains the list of active players for a stream path
// path - The stream path
// Returns the list of sessions playing the stream
func (server *RTMPServer) GetPlayers(path string) []*RTMPSession {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	if server.channels[path] == nil {
		return make([]*RTMPSession, 0)
	}

	players := server.channels[path].players

	result := make([]*RTMPSession, 0)

	for sid := range players {
		player := server.sessions[sid]
		if player != nil && player.isPlaying {
			result = append(result, player)
		}
	}

	return result
}

// Adds a player to a stream path
// path - The stream path
// s - The session
// Returns true if the path had no publisher, so the player becomes idle.
// False means the player can begin receiving the stream.
func (server *RTMPServer) AddPlayer(path string, s *RTMPSession) bool {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	if server.channels[path] == nil {
		c := RTMPChannel{
			path:          path,
			is_publishing: false,
			publisher:     0,
			players:       make(map[uint64]bool),
		}
		server.channels[path] = &c
	}

	s.isIdling = !server.channels[path].is_publishing

	server.channels[path].players[s.id] = true

	return s.isIdling
}

// Removes a player from a stream path (idempotent)
// path - The stream path
// s - The session
func (server *RTMPServer) RemovePlayer(path string, s *RTMPSession) {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	if server.channels[path] == nil {
		return
	}

	delete(server.channels[path].players, s.id)

	s.isIdling = false
	s.isPlaying = false

	if !server.channels[path].is_publishing && len(server.channels[path].players) == 0 {
		delete(server.channels, path)
	}
}

// Runs a loop to indefinitely accept incoming connections
// listener - The TCP listener
// wg - The waiting group
func (server *RTMPServer) AcceptConnections(listener net.Listener, wg *sync.WaitGroup) {
	defer func() {
		listener.Close()
		wg.Done()
	}()
	for {
		c, err := listener.Accept()
		if err != nil {
			if !server.closed {
				LogError(err)
			}
			return
		}
		id := server.NextSessionID()
		var ip string
		if addr, ok := c.RemoteAddr().(*net.TCPAddr); ok {
			ip = addr.IP.String()
		} else {
			ip = c.RemoteAddr().String()
		}

		if !server.isIPExempted(ip) {
			if !server.AddIP(ip) {
				c.Close()
				LogRequest(id, ip, "Connection rejected: Too many requests")
				continue
			}
		}

		LogDebugSession(id, ip, "Connection accepted!")
		go server.HandleConnection(id, ip, c)
	}
}

// Sends ping requests to active sessions
// Runs a loop indefinitely. Call in a separate routine.
// wg - The waiting group
func (server *RTMPServer) SendPings(wg *sync.WaitGroup) {
	defer wg.Done()

	interval := time.Duration(server.config.RTMP.Ping) * time.Second

	for !server.closed {
		// Wait
		time.Sleep(interval)

		func() {
			server.mutex.Lock()
			defer server.mutex.Unlock()

			for _, s := range server.sessions {
				s.SendPingRequest()
			}
		}()
	}
}

// Starts the server. Call Bind first.
// Blocks until the server is stopped.
func (server *RTMPServer) Start() {
	// Initialize coordinator connection
	if server.coordinatorConnection != nil {
		server.coordinatorConnection.Initialize(server)
	}

	var wg sync.WaitGroup
	if server.listener != nil {
		wg.Add(1)
		go server.AcceptConnections(server.listener, &wg)
	}

	wg.Add(1)
	go server.SendPings(&wg)

	wg.Wait()
}

// Stops the server: closes the listener and
// destroys every session. Idempotent.
func (server *RTMPServer) Stop() {
	server.mutex.Lock()

	if server.closed {
		server.mutex.Unlock()
		return
	}

	server.closed = true

	if server.listener != nil {
		server.listener.Close()
	}

	sessions := make([]*RTMPSession, 0, len(server.sessions))
	for _, s := range server.sessions {
		sessions = append(sessions, s)
	}

	server.mutex.Unlock()

	for i := 0; i < len(sessions); i++ {
		sessions[i].Kill()
	}
}

// Handles a connection
// id - Session ID
// ip - Client IP address
// c - The TCP connection
func (server *RTMPServer) HandleConnection(id uint64, ip string, c net.Conn) {
	s := CreateRTMPSession(server, id, ip, c)

	server.AddSession(&s)

	defer func() {
		if err := recover(); err != nil {
			switch x := err.(type) {
			case string:
				LogRequest(id, ip, "Error: "+x)
			case error:
				LogRequest(id, ip, "Error: "+x.Error())
			default:
				LogRequest(id, ip, "Connection Crashed!")
			}
		}
		s.OnClose()
		c.Close()
		server.RemoveSession(id)
		server.RemoveIP(ip)
		LogDebugSession(id, ip, "Connection closed!")
	}()

	s.HandleSession()
}

// Kills any sessions publishing streams
func (server *RTMPServer) KillAllActivePublishers() {
	activePublishers := make([]*RTMPSession, 0)

	server.mutex.Lock()

	for _, channel := range server.channels {
		if channel == nil || !channel.is_publishing {
			continue
		}

		session := server.sessions[channel.publisher]

		if session != nil {
			activePublishers = append(activePublishers, session)
		}
	}

	server.mutex.Unlock()

	for i := 0; i < len(activePublishers); i++ {
		activePublishers[i].Kill()
	}
}
