package main

import (
	"testing"
)

func decodeOneAMF0(t *testing.T, data []byte) AMF0Value {
	s := AMFDecodingStream{
		buffer: data,
		pos:    0,
	}

	v := s.ReadOne()

	if !s.IsEnded() {
		t.Errorf("Decoder left %d trailing bytes", len(data)-s.pos)
	}

	return v
}

func TestAMF0NumberRoundTrip(t *testing.T) {
	for _, num := range []float64{0, 1, -1, 3.5, 5000000, -123456.789} {
		v := createAMF0Value(AMF0_TYPE_NUMBER)
		v.SetFloatVal(num)

		d := decodeOneAMF0(t, amf0EncodeOne(v))

		if d.amf_type != AMF0_TYPE_NUMBER {
			t.Fatalf("Expected number, got type %d", d.amf_type)
		}
		if d.GetFloat() != num {
			t.Errorf("Expected %f, got %f", num, d.GetFloat())
		}
	}
}

func TestAMF0BoolRoundTrip(t *testing.T) {
	for _, b := range []bool{true, false} {
		v := createAMF0Value(AMF0_TYPE_BOOL)
		v.SetBoolVal(b)

		d := decodeOneAMF0(t, amf0EncodeOne(v))

		if d.GetBool() != b {
			t.Errorf("Expected %v, got %v", b, d.GetBool())
		}
	}
}

func TestAMF0StringRoundTrip(t *testing.T) {
	for _, str := range []string{"", "live", "a somewhat longer string / with ? punctuation"} {
		v := createAMF0Value(AMF0_TYPE_STRING)
		v.SetStringVal(str)

		d := decodeOneAMF0(t, amf0EncodeOne(v))

		if d.GetString() != str {
			t.Errorf("Expected '%s', got '%s'", str, d.GetString())
		}
	}
}

func TestAMF0LongStringRoundTrip(t *testing.T) {
	str := string(make([]byte, 70000))

	v := createAMF0Value(AMF0_TYPE_LONG_STRING)
	v.SetStringVal(str)

	d := decodeOneAMF0(t, amf0EncodeOne(v))

	if d.amf_type != AMF0_TYPE_LONG_STRING {
		t.Fatalf("Expected long string, got type %d", d.amf_type)
	}
	if d.GetString() != str {
		t.Errorf("Long string did not round-trip")
	}
}

func TestAMF0NullUndefinedRoundTrip(t *testing.T) {
	for _, amfType := range []byte{AMF0_TYPE_NULL, AMF0_TYPE_UNDEFINED} {
		v := createAMF0Value(amfType)

		d := decodeOneAMF0(t, amf0EncodeOne(v))

		if d.amf_type != amfType {
			t.Errorf("Expected type %d, got %d", amfType, d.amf_type)
		}
		if !d.IsUndefined() {
			t.Errorf("Expected undefined-like value")
		}
	}
}

func TestAMF0DateRoundTrip(t *testing.T) {
	v := createAMF0Value(AMF0_TYPE_DATE)
	v.SetFloatVal(1700000000000)

	d := decodeOneAMF0(t, amf0EncodeOne(v))

	if d.amf_type != AMF0_TYPE_DATE {
		t.Fatalf("Expected date, got type %d", d.amf_type)
	}
	if d.GetFloat() != 1700000000000 {
		t.Errorf("Expected 1700000000000, got %f", d.GetFloat())
	}
}

func TestAMF0ObjectRoundTripKeepsKeyOrder(t *testing.T) {
	v := createAMF0Value(AMF0_TYPE_OBJECT)

	app := createAMF0Value(AMF0_TYPE_STRING)
	app.SetStringVal("live")
	v.SetProperty("app", app)

	flashVer := createAMF0Value(AMF0_TYPE_STRING)
	flashVer.SetStringVal("FMLE/3.0")
	v.SetProperty("flashVer", flashVer)

	encoding := createAMF0Value(AMF0_TYPE_NUMBER)
	encoding.SetIntegerVal(3)
	v.SetProperty("objectEncoding", encoding)

	d := decodeOneAMF0(t, amf0EncodeOne(v))

	if d.amf_type != AMF0_TYPE_OBJECT {
		t.Fatalf("Expected object, got type %d", d.amf_type)
	}

	expectedKeys := []string{"app", "flashVer", "objectEncoding"}
	if len(d.obj_keys) != len(expectedKeys) {
		t.Fatalf("Expected %d keys, got %d", len(expectedKeys), len(d.obj_keys))
	}
	for i, key := range expectedKeys {
		if d.obj_keys[i] != key {
			t.Errorf("Expected key '%s' at position %d, got '%s'", key, i, d.obj_keys[i])
		}
	}

	if d.GetProperty("app").GetString() != "live" {
		t.Errorf("Wrong app property")
	}
	if d.GetProperty("objectEncoding").GetInteger() != 3 {
		t.Errorf("Wrong objectEncoding property")
	}
}

func TestAMF0EmptyObjectRoundTrip(t *testing.T) {
	v := createAMF0Value(AMF0_TYPE_OBJECT)

	d := decodeOneAMF0(t, amf0EncodeOne(v))

	if d.amf_type != AMF0_TYPE_OBJECT {
		t.Fatalf("Expected object, got type %d", d.amf_type)
	}
	if len(d.obj_keys) != 0 {
		t.Errorf("Expected empty object, got %d keys", len(d.obj_keys))
	}
}

func TestAMF0ECMAArrayRoundTrip(t *testing.T) {
	v := createAMF0Value(AMF0_TYPE_ARRAY)

	width := createAMF0Value(AMF0_TYPE_NUMBER)
	width.SetIntegerVal(1280)
	v.SetProperty("width", width)

	height := createAMF0Value(AMF0_TYPE_NUMBER)
	height.SetIntegerVal(720)
	v.SetProperty("height", height)

	d := decodeOneAMF0(t, amf0EncodeOne(v))

	if d.amf_type != AMF0_TYPE_ARRAY {
		t.Fatalf("Expected ECMA array, got type %d", d.amf_type)
	}
	if d.GetProperty("width").GetInteger() != 1280 {
		t.Errorf("Wrong width")
	}
	if d.GetProperty("height").GetInteger() != 720 {
		t.Errorf("Wrong height")
	}
}

func TestAMF0StrictArrayRoundTrip(t *testing.T) {
	v := createAMF0Value(AMF0_TYPE_STRICT_ARRAY)

	for i := 0; i < 3; i++ {
		item := createAMF0Value(AMF0_TYPE_NUMBER)
		item.SetIntegerVal(int64(i * 10))
		v.array_val = append(v.array_val, &item)
	}

	d := decodeOneAMF0(t, amf0EncodeOne(v))

	if d.amf_type != AMF0_TYPE_STRICT_ARRAY {
		t.Fatalf("Expected strict array, got type %d", d.amf_type)
	}
	if len(d.array_val) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(d.array_val))
	}
	for i := 0; i < 3; i++ {
		if d.array_val[i].GetInteger() != int64(i*10) {
			t.Errorf("Wrong item at %d", i)
		}
	}
}

func TestAMF0NestedObjectRoundTrip(t *testing.T) {
	inner := createAMF0Value(AMF0_TYPE_OBJECT)
	code := createAMF0Value(AMF0_TYPE_STRING)
	code.SetStringVal("NetStream.Play.Start")
	inner.SetProperty("code", code)

	outer := createAMF0Value(AMF0_TYPE_OBJECT)
	outer.SetProperty("info", inner)

	d := decodeOneAMF0(t, amf0EncodeOne(outer))

	if d.GetProperty("info").GetProperty("code").GetString() != "NetStream.Play.Start" {
		t.Errorf("Nested object did not round-trip")
	}
}

func TestRTMPCommandRoundTrip(t *testing.T) {
	cmd := createRTMPCommand("connect")

	transId := createAMF0Value(AMF0_TYPE_NUMBER)
	transId.SetIntegerVal(1)
	cmd.SetArg("transId", transId)

	cmdObj := createAMF0Value(AMF0_TYPE_OBJECT)
	app := createAMF0Value(AMF0_TYPE_STRING)
	app.SetStringVal("live")
	cmdObj.SetProperty("app", app)
	tcUrl := createAMF0Value(AMF0_TYPE_STRING)
	tcUrl.SetStringVal("rtmp://localhost/live")
	cmdObj.SetProperty("tcUrl", tcUrl)
	cmd.SetArg("cmdObj", cmdObj)

	decoded := decodeRTMPCommand(cmd.Encode())

	if decoded.cmd != "connect" {
		t.Fatalf("Expected command 'connect', got '%s'", decoded.cmd)
	}
	if decoded.GetArg("transId").GetInteger() != 1 {
		t.Errorf("Wrong transId")
	}
	if decoded.GetArg("cmdObj").GetProperty("app").GetString() != "live" {
		t.Errorf("Wrong app")
	}
	if decoded.GetArg("cmdObj").GetProperty("tcUrl").GetString() != "rtmp://localhost/live" {
		t.Errorf("Wrong tcUrl")
	}
}

func TestRTMPCommandPublishRoundTrip(t *testing.T) {
	cmd := createRTMPCommand("publish")

	transId := createAMF0Value(AMF0_TYPE_NUMBER)
	transId.SetIntegerVal(5)
	cmd.SetArg("transId", transId)

	cmd.SetArg("cmdObj", createAMF0Value(AMF0_TYPE_NULL))

	streamName := createAMF0Value(AMF0_TYPE_STRING)
	streamName.SetStringVal("stream1?sign=abc")
	cmd.SetArg("streamName", streamName)

	pubType := createAMF0Value(AMF0_TYPE_STRING)
	pubType.SetStringVal("live")
	cmd.SetArg("type", pubType)

	decoded := decodeRTMPCommand(cmd.Encode())

	if decoded.cmd != "publish" {
		t.Fatalf("Expected command 'publish', got '%s'", decoded.cmd)
	}
	if decoded.GetArg("streamName").GetString() != "stream1?sign=abc" {
		t.Errorf("Wrong streamName")
	}
	if decoded.GetArg("type").GetString() != "live" {
		t.Errorf("Wrong type")
	}
}

func TestRTMPCommandUnknownName(t *testing.T) {
	cmd := createRTMPCommand("someUnknownCommand")

	decoded := decodeRTMPCommand(cmd.Encode())

	if decoded.cmd != "someUnknownCommand" {
		t.Fatalf("Expected the unknown name, got '%s'", decoded.cmd)
	}
	if len(decoded.arguments) != 0 {
		t.Errorf("Expected no arguments for an unknown command")
	}
}

func TestRTMPDataRoundTrip(t *testing.T) {
	data := createRTMPData("@setDataFrame")

	method := createAMF0Value(AMF0_TYPE_STRING)
	method.SetStringVal("onMetaData")
	data.SetArg("method", method)

	dataObj := createAMF0Value(AMF0_TYPE_OBJECT)
	rate := createAMF0Value(AMF0_TYPE_NUMBER)
	rate.SetIntegerVal(48000)
	dataObj.SetProperty("audiosamplerate", rate)
	stereo := createAMF0Value(AMF0_TYPE_BOOL)
	stereo.SetBoolVal(true)
	dataObj.SetProperty("stereo", stereo)
	data.SetArg("dataObj", dataObj)

	decoded := decodeRTMPData(data.Encode())

	if decoded.tag != "@setDataFrame" {
		t.Fatalf("Expected tag '@setDataFrame', got '%s'", decoded.tag)
	}
	if decoded.GetArg("method").GetString() != "onMetaData" {
		t.Errorf("Wrong method")
	}
	if decoded.GetArg("dataObj").GetProperty("audiosamplerate").GetInteger() != 48000 {
		t.Errorf("Wrong audiosamplerate")
	}
	if !decoded.GetArg("dataObj").GetProperty("stereo").GetBool() {
		t.Errorf("Wrong stereo flag")
	}
}
