package main

import (
	"bytes"
	"testing"
)

func TestAMF3UI29RoundTrip(t *testing.T) {
	values := []uint32{
		0, 1, 0x7F,
		0x80, 0x3FFF,
		0x4000, 0x1FFFFF,
		0x200000, 0x0FFFFFFF, 0x1FFFFFFF,
	}

	for _, num := range values {
		encoded := amf3encUI29(num)
		s := AMFDecodingStream{
			buffer: encoded,
			pos:    0,
		}

		decoded := s.amf3decUI29()

		if decoded != num {
			t.Errorf("Expected %d, got %d (encoded as %v)", num, decoded, encoded)
		}
		if s.pos != len(encoded) {
			t.Errorf("Decoder left trailing bytes for %d", num)
		}
	}
}

func TestAMF3UI29EncodedLengths(t *testing.T) {
	cases := []struct {
		num uint32
		len int
	}{
		{0x7F, 1},
		{0x80, 2},
		{0x3FFF, 2},
		{0x4000, 3},
		{0x1FFFFF, 3},
		{0x200000, 4},
		{0x1FFFFFFF, 4},
	}

	for _, c := range cases {
		encoded := amf3encUI29(c.num)
		if len(encoded) != c.len {
			t.Errorf("Expected %d bytes for %d, got %d", c.len, c.num, len(encoded))
		}
	}
}

func TestAMF3IntegerRoundTrip(t *testing.T) {
	for _, num := range []int32{0, 1, 1000, 0x0FFFFFFF, -1, -1000, -0x10000000} {
		v := createAMF3Value(AMF3_TYPE_INTEGER)
		v.int_val = num

		s := AMFDecodingStream{
			buffer: amf3EncodeOne(v),
			pos:    0,
		}
		d := s.ReadAMF3()

		if d.amf_type != AMF3_TYPE_INTEGER {
			t.Fatalf("Expected integer, got type %d", d.amf_type)
		}
		if d.int_val != num {
			t.Errorf("Expected %d, got %d", num, d.int_val)
		}
	}
}

func TestAMF3DoubleRoundTrip(t *testing.T) {
	v := createAMF3Value(AMF3_TYPE_DOUBLE)
	v.float_val = -1234.5

	s := AMFDecodingStream{
		buffer: amf3EncodeOne(v),
		pos:    0,
	}
	d := s.ReadAMF3()

	if d.float_val != -1234.5 {
		t.Errorf("Expected -1234.5, got %f", d.float_val)
	}
}

func TestAMF3StringRoundTrip(t *testing.T) {
	for _, str := range []string{"", "onMetaData", "a longer string value"} {
		v := createAMF3Value(AMF3_TYPE_STRING)
		v.str_val = str

		s := AMFDecodingStream{
			buffer: amf3EncodeOne(v),
			pos:    0,
		}
		d := s.ReadAMF3()

		if d.str_val != str {
			t.Errorf("Expected '%s', got '%s'", str, d.str_val)
		}
	}
}

func TestAMF3ByteArrayRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0xff, 0x00}

	v := createAMF3Value(AMF3_TYPE_BYTE_ARRAY)
	v.bytes_val = payload

	s := AMFDecodingStream{
		buffer: amf3EncodeOne(v),
		pos:    0,
	}
	d := s.ReadAMF3()

	if !bytes.Equal(d.bytes_val, payload) {
		t.Errorf("Expected %v, got %v", payload, d.bytes_val)
	}
}

func TestAMF3BoolMarkers(t *testing.T) {
	s := AMFDecodingStream{
		buffer: []byte{AMF3_TYPE_TRUE, AMF3_TYPE_FALSE},
		pos:    0,
	}

	v1 := s.ReadAMF3()
	if !v1.GetBool() {
		t.Errorf("Expected true")
	}
	v2 := s.ReadAMF3()
	if v2.GetBool() {
		t.Errorf("Expected false")
	}
}

func TestAMF3ToAMF0Conversion(t *testing.T) {
	v := createAMF3Value(AMF3_TYPE_INTEGER)
	v.int_val = 42

	a := v.ToAMF0()

	if a.amf_type != AMF0_TYPE_NUMBER {
		t.Fatalf("Expected number, got type %d", a.amf_type)
	}
	if a.GetInteger() != 42 {
		t.Errorf("Expected 42, got %d", a.GetInteger())
	}

	n := createAMF3Value(AMF3_TYPE_NULL)
	if n.ToAMF0().amf_type != AMF0_TYPE_NULL {
		t.Errorf("Expected null conversion")
	}
}
