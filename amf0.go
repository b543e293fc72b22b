// Encoding / Decoding for AMF0

package main

import (
	"encoding/binary"
	"math"
	"strconv"
)

// Types
const AMF0_TYPE_NUMBER = 0x00
const AMF0_TYPE_BOOL = 0x01
const AMF0_TYPE_STRING = 0x02
const AMF0_TYPE_OBJECT = 0x03
const AMF0_TYPE_NULL = 0x05
const AMF0_TYPE_UNDEFINED = 0x06
const AMF0_TYPE_REF = 0x07
const AMF0_TYPE_ARRAY = 0x08
const AMF0_TYPE_STRICT_ARRAY = 0x0A
const AMF0_TYPE_DATE = 0x0B
const AMF0_TYPE_LONG_STRING = 0x0C
const AMF0_TYPE_XML_DOC = 0x0F
const AMF0_TYPE_TYPED_OBJ = 0x10
const AMF0_TYPE_SWITCH_AMF3 = 0x11

const AMF0_OBJECT_TERM_CODE = 0x09

// An AMF0 typed value
// Objects keep their property names in obj_keys,
// in declared order, so encoding round-trips
type AMF0Value struct {
	amf_type byte

	bool_val  bool
	str_val   string
	int_val   int64
	float_val float64

	obj_keys  []string
	obj_val   map[string]*AMF0Value
	array_val []*AMF0Value
}

func createAMF0Value(amf_type byte) AMF0Value {
	return AMF0Value{
		amf_type:  amf_type,
		bool_val:  false,
		str_val:   "",
		int_val:   0,
		float_val: 0,
		obj_keys:  make([]string, 0),
		obj_val:   make(map[string]*AMF0Value),
		array_val: make([]*AMF0Value, 0),
	}
}

func (v *AMF0Value) SetFloatVal(val float64) {
	v.float_val = val
	v.int_val = int64(val)
}

func (v *AMF0Value) SetIntegerVal(val int64) {
	v.int_val = val
	v.float_val = float64(val)
}

func (v *AMF0Value) SetStringVal(val string) {
	v.str_val = val
}

func (v *AMF0Value) SetBoolVal(val bool) {
	v.bool_val = val
}

// Sets an object property, keeping declared key order
// key - Property name
// val - Property value
func (v *AMF0Value) SetProperty(key string, val AMF0Value) {
	if _, found := v.obj_val[key]; !found {
		v.obj_keys = append(v.obj_keys, key)
	}
	v.obj_val[key] = &val
}

// Gets an object property
// Returns an undefined value if not present
func (v *AMF0Value) GetProperty(key string) *AMF0Value {
	if v.obj_val[key] != nil {
		return v.obj_val[key]
	}
	n := createAMF0Value(AMF0_TYPE_UNDEFINED)
	return &n
}

func (v *AMF0Value) IsUndefined() bool {
	return v.amf_type == AMF0_TYPE_UNDEFINED || v.amf_type == AMF0_TYPE_NULL
}

func (v *AMF0Value) IsString() bool {
	return v.amf_type == AMF0_TYPE_STRING || v.amf_type == AMF0_TYPE_LONG_STRING
}

func (v *AMF0Value) GetBool() bool {
	return v.bool_val
}

func (v *AMF0Value) GetString() string {
	return v.str_val
}

func (v *AMF0Value) GetInteger() int64 {
	return v.int_val
}

func (v *AMF0Value) GetFloat() float64 {
	return v.float_val
}

// Dumps the value as a string, for debug logs
// tabs - Indent prefix
func (v *AMF0Value) ToString(tabs string) string {
	switch v.amf_type {
	case AMF0_TYPE_NUMBER:
		return strconv.FormatFloat(v.float_val, 'f', -1, 64)
	case AMF0_TYPE_BOOL:
		return strconv.FormatBool(v.bool_val)
	case AMF0_TYPE_STRING, AMF0_TYPE_LONG_STRING, AMF0_TYPE_XML_DOC:
		return "'" + v.str_val + "'"
	case AMF0_TYPE_NULL:
		return "NULL"
	case AMF0_TYPE_UNDEFINED:
		return "UNDEFINED"
	case AMF0_TYPE_DATE:
		return "DATE(" + strconv.FormatFloat(v.float_val, 'f', -1, 64) + ")"
	case AMF0_TYPE_OBJECT, AMF0_TYPE_TYPED_OBJ, AMF0_TYPE_ARRAY:
		str := "{\n"
		for _, key := range v.obj_keys {
			str += tabs + "    '" + key + "' = " + v.obj_val[key].ToString(tabs+"    ") + "\n"
		}
		str += tabs + "}"
		return str
	case AMF0_TYPE_STRICT_ARRAY:
		str := "[\n"
		for i := 0; i < len(v.array_val); i++ {
			str += tabs + "    " + v.array_val[i].ToString(tabs+"    ") + "\n"
		}
		str += tabs + "]"
		return str
	default:
		return "UNKNOWN(" + strconv.Itoa(int(v.amf_type)) + ")"
	}
}

/* Encoding */

func amf0EncodeOne(val AMF0Value) []byte {
	result := []byte{val.amf_type}

	switch val.amf_type {
	case AMF0_TYPE_NUMBER:
		result = append(result, amf0EncodeNumber(val.float_val)...)
	case AMF0_TYPE_BOOL:
		result = append(result, amf0EncodeBool(val.bool_val)...)
	case AMF0_TYPE_DATE:
		result = append(result, amf0EncodeDate(val.float_val)...)
	case AMF0_TYPE_STRING:
		result = append(result, amf0EncodeString(val.str_val)...)
	case AMF0_TYPE_XML_DOC:
		result = append(result, amf0EncodeLongString(val.str_val)...)
	case AMF0_TYPE_LONG_STRING:
		result = append(result, amf0EncodeLongString(val.str_val)...)
	case AMF0_TYPE_OBJECT:
		result = append(result, amf0EncodeObject(&val)...)
	case AMF0_TYPE_REF:
		result = append(result, amf0EncodeRef(uint16(val.int_val))...)
	case AMF0_TYPE_ARRAY:
		result = append(result, amf0EncodeECMAArray(&val)...)
	case AMF0_TYPE_STRICT_ARRAY:
		result = append(result, amf0EncodeStrictArray(val.array_val)...)
	case AMF0_TYPE_TYPED_OBJ:
		result = append(result, amf0EncodeString(val.str_val)...)
		result = append(result, amf0EncodeObject(&val)...)
	}

	return result
}

func amf0EncodeNumber(num float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(num))
	return b
}

func amf0EncodeBool(b bool) []byte {
	if b {
		return []byte{0x01}
	}
	return []byte{0x00}
}

func amf0EncodeDate(date float64) []byte {
	return append([]byte{0x00, 0x00}, amf0EncodeNumber(date)...)
}

func amf0EncodeString(str string) []byte {
	b := []byte(str)
	l := make([]byte, 2)
	binary.BigEndian.PutUint16(l, uint16(len(b)))
	return append(l, b...)
}

func amf0EncodeLongString(str string) []byte {
	b := []byte(str)
	l := make([]byte, 4)
	binary.BigEndian.PutUint32(l, uint32(len(b)))
	return append(l, b...)
}

func amf0EncodeObject(o *AMF0Value) []byte {
	r := make([]byte, 0)

	for _, key := range o.obj_keys {
		r = append(r, amf0EncodeString(key)...)
		r = append(r, amf0EncodeOne(*o.obj_val[key])...)
	}

	r = append(r, amf0EncodeString("")...)
	r = append(r, AMF0_OBJECT_TERM_CODE)

	return r
}

func amf0EncodeECMAArray(o *AMF0Value) []byte {
	r := make([]byte, 4)
	binary.BigEndian.PutUint32(r, uint32(len(o.obj_keys)))
	return append(r, amf0EncodeObject(o)...)
}

func amf0EncodeStrictArray(array []*AMF0Value) []byte {
	r := make([]byte, 4)
	binary.BigEndian.PutUint32(r, uint32(len(array)))

	for i := 0; i < len(array); i++ {
		r = append(r, amf0EncodeOne(*array[i])...)
	}

	return r
}

func amf0EncodeRef(index uint16) []byte {
	l := make([]byte, 2)
	binary.BigEndian.PutUint16(l, index)
	return l
}

/* Decoding */

type AMFDecodingStream struct {
	buffer []byte
	pos    int
}

func (s *AMFDecodingStream) Read(n int) []byte {
	r := s.buffer[s.pos:(s.pos + n)]
	s.pos += n
	return r
}

func (s *AMFDecodingStream) Look(n int) []byte {
	return s.buffer[s.pos:(s.pos + n)]
}

func (s *AMFDecodingStream) Skip(n int) {
	s.pos += n
}

func (s *AMFDecodingStream) IsEnded() bool {
	return s.pos >= len(s.buffer)
}

func (s *AMFDecodingStream) ReadOne() AMF0Value {
	amf_type := s.Read(1)[0]
	r := createAMF0Value(amf_type)
	switch amf_type {
	case AMF0_TYPE_NUMBER:
		r.SetFloatVal(s.ReadNumber())
	case AMF0_TYPE_BOOL:
		r.bool_val = s.ReadBool()
	case AMF0_TYPE_DATE:
		s.Skip(2) // Timezone, unused
		r.SetFloatVal(s.ReadNumber())
	case AMF0_TYPE_STRING:
		r.str_val = s.ReadString()
	case AMF0_TYPE_XML_DOC:
		r.str_val = s.ReadLongString()
	case AMF0_TYPE_LONG_STRING:
		r.str_val = s.ReadLongString()
	case AMF0_TYPE_OBJECT:
		s.ReadObjectBody(&r)
	case AMF0_TYPE_TYPED_OBJ:
		r.str_val = s.ReadString()
		s.ReadObjectBody(&r)
	case AMF0_TYPE_REF:
		r.int_val = int64(binary.BigEndian.Uint16(s.Read(2)))
	case AMF0_TYPE_ARRAY:
		s.Skip(4) // Associative count, the terminator is authoritative
		s.ReadObjectBody(&r)
	case AMF0_TYPE_STRICT_ARRAY:
		r.array_val = s.ReadStrictArray()
	case AMF0_TYPE_SWITCH_AMF3:
		// The rest of the value is AMF3
		r = s.ReadAMF3().ToAMF0()
	}
	return r
}

func (s *AMFDecodingStream) ReadNumber() float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(s.Read(8)))
}

func (s *AMFDecodingStream) ReadBool() bool {
	return s.Read(1)[0] != 0x00
}

func (s *AMFDecodingStream) ReadString() string {
	l := binary.BigEndian.Uint16(s.Read(2))
	return string(s.Read(int(l)))
}

func (s *AMFDecodingStream) ReadLongString() string {
	l := binary.BigEndian.Uint32(s.Read(4))
	return string(s.Read(int(l)))
}

// Reads object properties until the terminator,
// filling the value in declared key order.
// Tolerates the associative-array-as-object
// encoding some clients produce.
// r - Destination value
func (s *AMFDecodingStream) ReadObjectBody(r *AMF0Value) {
	for !s.IsEnded() {
		propName := s.ReadString()

		if s.Look(1)[0] == AMF0_OBJECT_TERM_CODE {
			s.Skip(1)
			return
		}

		propVal := s.ReadOne()
		r.SetProperty(propName, propVal)
	}
}

func (s *AMFDecodingStream) ReadStrictArray() []*AMF0Value {
	r := make([]*AMF0Value, 0)

	l := binary.BigEndian.Uint32(s.Read(4))

	for i := uint32(0); i < l && !s.IsEnded(); i++ {
		v := s.ReadOne()
		r = append(r, &v)
	}

	return r
}
