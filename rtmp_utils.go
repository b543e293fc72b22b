// RTMP protocol constants and command codec

package main

import (
	"regexp"
	"strings"
)

/* Constants */

const RTMP_VERSION = 3
const RTMP_HANDSHAKE_SIZE = 1536

const RTMP_CHUNK_TYPE_0 = 0 // 11-bytes: timestamp(3) + length(3) + stream type(1) + stream id(4)
const RTMP_CHUNK_TYPE_1 = 1 // 7-bytes: delta(3) + length(3) + stream type(1)
const RTMP_CHUNK_TYPE_2 = 2 // 3-bytes: delta(3)
const RTMP_CHUNK_TYPE_3 = 3 // 0-byte

const RTMP_CHANNEL_PROTOCOL = 2
const RTMP_CHANNEL_INVOKE = 3
const RTMP_CHANNEL_AUDIO = 4
const RTMP_CHANNEL_VIDEO = 5
const RTMP_CHANNEL_DATA = 6

var rtmpHeaderSize = []uint32{11, 7, 3, 0}

/* Protocol Control Messages */
const RTMP_TYPE_SET_CHUNK_SIZE = 1
const RTMP_TYPE_ABORT = 2
const RTMP_TYPE_ACKNOWLEDGEMENT = 3             // bytes read report
const RTMP_TYPE_WINDOW_ACKNOWLEDGEMENT_SIZE = 5 // server bandwidth
const RTMP_TYPE_SET_PEER_BANDWIDTH = 6          // client bandwidth

/* User Control Messages Event (4) */
const RTMP_TYPE_EVENT = 4

const RTMP_TYPE_AUDIO = 8
const RTMP_TYPE_VIDEO = 9

/* Data Message */
const RTMP_TYPE_FLEX_STREAM = 15 // AMF3
const RTMP_TYPE_DATA = 18        // AMF0

/* Shared Object Message */
const RTMP_TYPE_FLEX_OBJECT = 16   // AMF3
const RTMP_TYPE_SHARED_OBJECT = 19 // AMF0

/* Command Message */
const RTMP_TYPE_FLEX_MESSAGE = 17 // AMF3
const RTMP_TYPE_INVOKE = 20       // AMF0

/* Aggregate Message */
const RTMP_TYPE_METADATA = 22

const PING_EVENT_REQUEST = 6

const STREAM_BEGIN = 0x00
const STREAM_EOF = 0x01
const STREAM_DRY = 0x02
const STREAM_EMPTY = 0x1f
const STREAM_READY = 0x20

// Named argument lists of the known commands,
// in their wire order
var rtmpCmdCode = map[string][]string{
	"_result":         {"transId", "cmdObj", "info"},
	"_error":          {"transId", "cmdObj", "info", "streamId"},
	"onStatus":        {"transId", "cmdObj", "info"},
	"releaseStream":   {"transId", "cmdObj", "streamName"},
	"getStreamLength": {"transId", "cmdObj", "streamId"},
	"getMovLen":       {"transId", "cmdObj", "streamId"},
	"FCPublish":       {"transId", "cmdObj", "streamName"},
	"FCUnpublish":     {"transId", "cmdObj", "streamName"},
	"FCSubscribe":     {"transId", "cmdObj", "streamName"},
	"onFCPublish":     {"transId", "cmdObj", "info"},
	"connect":         {"transId", "cmdObj", "args"},
	"call":            {"transId", "cmdObj", "args"},
	"createStream":    {"transId", "cmdObj"},
	"close":           {"transId", "cmdObj"},
	"play":            {"transId", "cmdObj", "streamName", "start", "duration", "reset"},
	"play2":           {"transId", "cmdObj", "params"},
	"deleteStream":    {"transId", "cmdObj", "streamId"},
	"closeStream":     {"transId", "cmdObj"},
	"receiveAudio":    {"transId", "cmdObj", "bool"},
	"receiveVideo":    {"transId", "cmdObj", "bool"},
	"publish":         {"transId", "cmdObj", "streamName", "type"},
	"seek":            {"transId", "cmdObj", "ms"},
	"pause":           {"transId", "cmdObj", "pause", "ms"},
}

var rtmpDataCode = map[string][]string{
	"@setDataFrame":     {"method", "dataObj"},
	"onFI":              {"info"},
	"onMetaData":        {"dataObj"},
	"|RtmpSampleAccess": {"bool1", "bool2"},
}

type RTMPCommand struct {
	cmd       string
	arguments map[string]*AMF0Value
}

func (c *RTMPCommand) GetArg(argName string) *AMF0Value {
	if c.arguments[argName] != nil {
		return c.arguments[argName]
	}
	n := createAMF0Value(AMF0_TYPE_UNDEFINED)
	return &n
}

func (c *RTMPCommand) SetArg(argName string, val AMF0Value) {
	c.arguments[argName] = &val
}

func (c *RTMPCommand) ToString() string {
	str := "" + c.cmd + " {\n"

	for _, argName := range rtmpCmdCode[c.cmd] {
		if c.arguments[argName] != nil {
			str += "    '" + argName + "' = " + c.arguments[argName].ToString("    ") + "\n"
		}
	}

	str += "}"
	return str
}

func (c *RTMPCommand) Encode() []byte {
	name := createAMF0Value(AMF0_TYPE_STRING)
	name.str_val = c.cmd

	buf := amf0EncodeOne(name)

	argList := rtmpCmdCode[c.cmd]

	for i := 0; i < len(argList); i++ {
		val := c.arguments[argList[i]]
		if val != nil {
			buf = append(buf, amf0EncodeOne(*val)...)
		} else {
			buf = append(buf, amf0EncodeOne(createAMF0Value(AMF0_TYPE_UNDEFINED))...)
		}
	}

	return buf
}

func createRTMPCommand(cmd string) RTMPCommand {
	return RTMPCommand{
		cmd:       cmd,
		arguments: make(map[string]*AMF0Value),
	}
}

// Decodes a command message.
// Unknown command names yield a command
// with no arguments, the caller logs and skips
func decodeRTMPCommand(data []byte) RTMPCommand {
	c := createRTMPCommand("")
	s := AMFDecodingStream{
		buffer: data,
		pos:    0,
	}

	c.cmd = s.ReadOne().str_val

	argList := rtmpCmdCode[c.cmd]

	for i := 0; i < len(argList) && !s.IsEnded(); i++ {
		val := s.ReadOne()
		c.arguments[argList[i]] = &val
	}

	return c
}

type RTMPData struct {
	tag       string
	arguments map[string]*AMF0Value
}

func (c *RTMPData) GetArg(argName string) *AMF0Value {
	if c.arguments[argName] != nil {
		return c.arguments[argName]
	}
	n := createAMF0Value(AMF0_TYPE_UNDEFINED)
	return &n
}

func (c *RTMPData) SetArg(argName string, val AMF0Value) {
	c.arguments[argName] = &val
}

func (c *RTMPData) ToString() string {
	str := "" + c.tag + " {\n"

	for _, argName := range rtmpDataCode[c.tag] {
		if c.arguments[argName] != nil {
			str += "    '" + argName + "' = " + c.arguments[argName].ToString("    ") + "\n"
		}
	}

	str += "}"
	return str
}

func (c *RTMPData) Encode() []byte {
	name := createAMF0Value(AMF0_TYPE_STRING)
	name.str_val = c.tag

	buf := amf0EncodeOne(name)

	argList := rtmpDataCode[c.tag]

	for i := 0; i < len(argList); i++ {
		val := c.arguments[argList[i]]
		if val != nil {
			buf = append(buf, amf0EncodeOne(*val)...)
		}
	}

	return buf
}

func createRTMPData(tag string) RTMPData {
	return RTMPData{
		tag:       tag,
		arguments: make(map[string]*AMF0Value),
	}
}

func decodeRTMPData(data []byte) RTMPData {
	c := createRTMPData("")
	s := AMFDecodingStream{
		buffer: data,
		pos:    0,
	}

	c.tag = s.ReadOne().str_val

	argList := rtmpDataCode[c.tag]

	for i := 0; i < len(argList) && !s.IsEnded(); i++ {
		val := s.ReadOne()
		c.arguments[argList[i]] = &val
	}

	return c
}

/* Stream paths */

var streamIdPattern = regexp.MustCompile("^[A-Za-z0-9_-]+$")

// Checks an app name or stream key component
// str - The component
// maxLength - Max accepted length
func validateStreamIDString(str string, maxLength int) bool {
	if str == "" || len(str) > maxLength {
		return false
	}

	return streamIdPattern.MatchString(str)
}

// Parses the query-string portion of a stream name
// str - The part after '?'
// Returns the key/value arguments
func parseStreamArgs(str string) map[string]string {
	result := make(map[string]string)

	if len(str) == 0 {
		return result
	}

	parts := strings.Split(str, "&")

	for i := 0; i < len(parts); i++ {
		keyVal := strings.SplitN(parts[i], "=", 2)
		if len(keyVal) == 2 {
			result[keyVal[0]] = keyVal[1]
		}
	}

	return result
}

// Splits a stream name into its key and arguments
// streamName - The publish/play stream name
// Returns the name before '?' and the parsed args
func splitStreamName(streamName string) (string, map[string]string) {
	split := strings.SplitN(streamName, "?", 2)

	if len(split) > 1 {
		return split[0], parseStreamArgs(split[1])
	}

	return split[0], make(map[string]string)
}

// Checks if a peer address is a localhost address,
// exempted from authentication
// ip - The IP address
func isLocalhostAddr(ip string) bool {
	return ip == "127.0.0.1" || ip == "::1" || ip == "::ffff:127.0.0.1"
}
