// Coordinator server connection

package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	messages "github.com/AgustinSRG/go-simple-rpc-message"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// Status data of the connection with the coordinator server
type ControlServerConnection struct {
	server *RTMPServer // Reference to the RTMP server

	connectionURL string          // Connection URL
	connection    *websocket.Conn // Websocket connection

	lock *sync.Mutex // Mutex to control access to this struct

	nextRequestId uint64 // ID for the next request

	requests map[string]*ControlServerPendingRequest // Pending requests. Map: ID -> Request status data

	enabled bool // True if the connection is enabled (will reconnect)
}

// Status data for a pending request
type ControlServerPendingRequest struct {
	waiter chan PublishResponse // Channel to wait for the response
}

// Response for a publish request
type PublishResponse struct {
	accepted bool // True if accepted, false if denied
}

// Creates an authentication token to connect
// to the coordinator server
// Returns the token (base 64)
func MakeCoordinatorAuthToken() string {
	secret := os.Getenv("CONTROL_SECRET")

	if secret == "" {
		return ""
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "rtmp-control",
	})

	tokenBase64, e := token.SignedString([]byte(secret))

	if e != nil {
		LogError(e)
		return ""
	}

	return tokenBase64
}

// Initializes connection
// server - Reference to the RTMP server
func (c *ControlServerConnection) Initialize(server *RTMPServer) {
	c.server = server
	c.lock = &sync.Mutex{}
	c.nextRequestId = 0
	c.requests = make(map[string]*ControlServerPendingRequest)

	baseURL := os.Getenv("CONTROL_BASE_URL")

	if baseURL == "" {
		LogWarning("CONTROL_BASE_URL not provided. The server will run in stand-alone mode.")
		c.enabled = false
		return
	}

	connectionURL, err := url.Parse(baseURL)
	if err != nil {
		LogError(err)
		LogWarning("CONTROL_BASE_URL is not valid. The server will run in stand-alone mode.")
		c.enabled = false
		return
	}

	pathURL := &url.URL{Path: "/ws/control/rtmp"}

	c.connectionURL = connectionURL.ResolveReference(pathURL).String()
	c.enabled = true

	go c.Connect()
	go c.RunHeartBeatLoop()
}

// Connect to the websocket server
func (c *ControlServerConnection) Connect() {
	c.lock.Lock()

	if c.connection != nil {
		c.lock.Unlock()
		return // Already connected
	}

	LogInfo("[WS-CONTROL] Connecting to " + c.connectionURL)

	headers := http.Header{}

	authToken := MakeCoordinatorAuthToken()

	if authToken != "" {
		headers.Set("x-control-auth-token", authToken)
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.connectionURL, headers)

	if err != nil {
		c.lock.Unlock()
		LogErrorMessage("[WS-CONTROL] Connection error: " + err.Error())
		go c.Reconnect()
		return
	}

	c.connection = conn

	c.lock.Unlock()

	// After a connection is established, any previous publishing sessions must be killed,
	// since the coordinator server thinks the streaming server went down
	c.server.KillAllActivePublishers()

	go c.RunReaderLoop(conn)
}

// Waits 10 seconds and reconnects
func (c *ControlServerConnection) Reconnect() {
	LogInfo("[WS-CONTROL] Waiting 10 seconds to reconnect.")
	time.Sleep(10 * time.Second)
	c.Connect()
}

// Called when disconnected
// err - Disconnection error
func (c *ControlServerConnection) OnDisconnect(err error) {
	c.lock.Lock()
	c.connection = nil
	LogInfo("[WS-CONTROL] Disconnected: " + err.Error())
	c.lock.Unlock()

	go c.Connect() // Reconnect
}

// Sends a message
// msg - The message
// Returns true if the message was successfully sent
func (c *ControlServerConnection) Send(msg messages.RPCMessage) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.connection == nil {
		return false
	}

	c.connection.WriteMessage(websocket.TextMessage, []byte(msg.Serialize())) //nolint:errcheck

	if LOG_DEBUG_ENABLED {
		LogDebug("[WS-CONTROL] >>>\n" + msg.Serialize())
	}

	return true
}

// Generates a new request-id
func (c *ControlServerConnection) GetNextRequestId() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	requestId := c.nextRequestId

	c.nextRequestId++

	return requestId
}

// Reads messages until the connection is finished
// conn - Websocket connection
func (c *ControlServerConnection) RunReaderLoop(conn *websocket.Conn) {
	for {
		err := conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		if err != nil {
			conn.Close()
			c.OnDisconnect(err)
			return
		}

		_, message, err := conn.ReadMessage()

		if err != nil {
			conn.Close()
			c.OnDisconnect(err)
			return
		}

		msgStr := string(message)

		if LOG_DEBUG_ENABLED {
			LogDebug("[WS-CONTROL] <<<\n" + msgStr)
		}

		msg := messages.ParseRPCMessage(msgStr)

		c.ParseIncomingMessage(&msg)
	}
}

// Parses an incoming message
// msg - Received parsed message
func (c *ControlServerConnection) ParseIncomingMessage(msg *messages.RPCMessage) {
	switch msg.Method {
	case "ERROR":
		LogErrorMessage("[WS-CONTROL] Remote error. Code=" + msg.GetParam("Error-Code") + " / Details: " + msg.GetParam("Error-Message"))
	case "PUBLISH-ACCEPT":
		c.OnPublishAccept(msg.GetParam("Request-Id"))
	case "PUBLISH-DENY":
		c.OnPublishDeny(msg.GetParam("Request-Id"))
	case "STREAM-KILL":
		c.OnStreamKill(msg.GetParam("Stream-Path"))
	}
}

// Handles a PUBLISH-ACCEPT message
// requestId - Request ID
func (c *ControlServerConnection) OnPublishAccept(requestId string) {
	c.resolvePublishRequest(requestId, true)
}

// Handles a PUBLISH-DENY message
// requestId - Request ID
func (c *ControlServerConnection) OnPublishDeny(requestId string) {
	c.resolvePublishRequest(requestId, false)
}

func (c *ControlServerConnection) resolvePublishRequest(requestId string, accepted bool) {
	c.lock.Lock()
	req := c.requests[requestId]
	c.lock.Unlock()

	if req == nil {
		return
	}

	req.waiter <- PublishResponse{
		accepted: accepted,
	}
}

// Handles a STREAM-KILL message
// path - The stream path
func (c *ControlServerConnection) OnStreamKill(path string) {
	publisher := c.server.GetPublisher(path)

	if publisher != nil {
		publisher.Kill()
	}
}

// Sends heart-beat messages to keep the connection alive
func (c *ControlServerConnection) RunHeartBeatLoop() {
	for {
		time.Sleep(20 * time.Second)

		heartbeatMessage := messages.RPCMessage{
			Method: "HEARTBEAT",
		}

		c.Send(heartbeatMessage)
	}
}

// Requests publishing to the coordinator server
// path - The stream path
// userIP - IP address of the user
// Returns true if the publish request was accepted
// This method waits for the server to return a response
func (c *ControlServerConnection) RequestPublish(path string, userIP string) bool {
	if !c.enabled {
		return true
	}

	requestId := fmt.Sprint(c.GetNextRequestId())

	request := ControlServerPendingRequest{
		waiter: make(chan PublishResponse),
	}

	msgParams := make(map[string]string)

	msgParams["Request-Id"] = requestId
	msgParams["Stream-Path"] = path
	msgParams["User-IP"] = userIP

	msg := messages.RPCMessage{
		Method: "PUBLISH-REQUEST",
		Params: msgParams,
	}

	c.lock.Lock()
	c.requests[requestId] = &request
	c.lock.Unlock()

	success := c.Send(msg)

	if !success {
		c.lock.Lock()
		delete(c.requests, requestId)
		c.lock.Unlock()

		return false
	}

	timeout := time.AfterFunc(20*time.Second, func() {
		c.resolvePublishRequest(requestId, false)
	})

	res := <-request.waiter // Wait

	timeout.Stop()

	c.lock.Lock()
	delete(c.requests, requestId)
	c.lock.Unlock()

	return res.accepted
}

// Send Publish-End message to the coordinator server
// path - The stream path
// Returns true if success
func (c *ControlServerConnection) PublishEnd(path string) bool {
	msgParams := make(map[string]string)

	msgParams["Stream-Path"] = path

	msg := messages.RPCMessage{
		Method: "PUBLISH-END",
		Params: msgParams,
	}

	return c.Send(msg)
}
