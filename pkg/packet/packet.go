package packet

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

type PacketType int32

const (
	PacketType_UNKNOWN PacketType = iota
	PacketType_OPEN_REQUEST
	PacketType_OPEN_RESPONSE
	PacketType_CLOSE_REQUEST
	PacketType_CLOSE_RESPONSE
	PacketType_ADD_TOPIC
	PacketType_ADD_TOPIC_RESPONSE
	PacketType_REMOVE_TOPIC
	PacketType_REMOVE_TOPIC_RESPONSE
	PacketType_SET_TOPIC
	PacketType_SET_TOPIC_RESPONSE
	PacketType_FETCH
	PacketType_FETCH_RESPONSE
	PacketType_TIME_SERIES_APPEND
	PacketType_TIME_SERIES_APPEND_RESPONSE
	PacketType_TIME_SERIES_RANGE
	PacketType_TIME_SERIES_RANGE_RESPONSE
	PacketType_SUBSCRIBE
	PacketType_UNSUBSCRIBE
	PacketType_SUBSCRIPTION_RESPONSE
	PacketType_TOPIC_EVENT
	PacketType_PING
	PacketType_PONG
	PacketType_ERROR_MESSAGE
)

var packetTypeNames = map[PacketType]string{
	PacketType_UNKNOWN:                     "UNKNOWN",
	PacketType_OPEN_REQUEST:                "OPEN_REQUEST",
	PacketType_OPEN_RESPONSE:               "OPEN_RESPONSE",
	PacketType_CLOSE_REQUEST:               "CLOSE_REQUEST",
	PacketType_CLOSE_RESPONSE:              "CLOSE_RESPONSE",
	PacketType_ADD_TOPIC:                   "ADD_TOPIC",
	PacketType_ADD_TOPIC_RESPONSE:          "ADD_TOPIC_RESPONSE",
	PacketType_REMOVE_TOPIC:                "REMOVE_TOPIC",
	PacketType_REMOVE_TOPIC_RESPONSE:       "REMOVE_TOPIC_RESPONSE",
	PacketType_SET_TOPIC:                   "SET_TOPIC",
	PacketType_SET_TOPIC_RESPONSE:          "SET_TOPIC_RESPONSE",
	PacketType_FETCH:                       "FETCH",
	PacketType_FETCH_RESPONSE:              "FETCH_RESPONSE",
	PacketType_TIME_SERIES_APPEND:          "TIME_SERIES_APPEND",
	PacketType_TIME_SERIES_APPEND_RESPONSE: "TIME_SERIES_APPEND_RESPONSE",
	PacketType_TIME_SERIES_RANGE:           "TIME_SERIES_RANGE",
	PacketType_TIME_SERIES_RANGE_RESPONSE:  "TIME_SERIES_RANGE_RESPONSE",
	PacketType_SUBSCRIBE:                   "SUBSCRIBE",
	PacketType_UNSUBSCRIBE:                 "UNSUBSCRIBE",
	PacketType_SUBSCRIPTION_RESPONSE:       "SUBSCRIPTION_RESPONSE",
	PacketType_TOPIC_EVENT:                 "TOPIC_EVENT",
	PacketType_PING:                        "PING",
	PacketType_PONG:                        "PONG",
	PacketType_ERROR_MESSAGE:               "ERROR_MESSAGE",
}

func (t PacketType) String() string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PacketType(%d)", int32(t))
}

type ErrorCode int32

const (
	ErrorCode_NONE ErrorCode = iota
	ErrorCode_AUTHENTICATION_FAILED
	ErrorCode_INVALID_PATH
	ErrorCode_EXISTS_MISMATCH
	ErrorCode_INVALID_SPECIFICATION
	ErrorCode_TOPIC_NOT_FOUND
	ErrorCode_INCOMPATIBLE_TYPE
	ErrorCode_INVALID_VALUE
	ErrorCode_UNKNOWN_REQUEST
	ErrorCode_SESSION_CLOSED
	ErrorCode_MALFORMED_PACKET
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCode_NONE:                  "NONE",
	ErrorCode_AUTHENTICATION_FAILED: "AUTHENTICATION_FAILED",
	ErrorCode_INVALID_PATH:          "INVALID_PATH",
	ErrorCode_EXISTS_MISMATCH:       "EXISTS_MISMATCH",
	ErrorCode_INVALID_SPECIFICATION: "INVALID_SPECIFICATION",
	ErrorCode_TOPIC_NOT_FOUND:       "TOPIC_NOT_FOUND",
	ErrorCode_INCOMPATIBLE_TYPE:     "INCOMPATIBLE_TYPE",
	ErrorCode_INVALID_VALUE:         "INVALID_VALUE",
	ErrorCode_UNKNOWN_REQUEST:       "UNKNOWN_REQUEST",
	ErrorCode_SESSION_CLOSED:        "SESSION_CLOSED",
	ErrorCode_MALFORMED_PACKET:      "MALFORMED_PACKET",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int32(c))
}

// Payload field names shared by client and server.
const (
	FieldPrincipal    = "principal"
	FieldCredentials  = "credentials"
	FieldLifetime     = "lifetime"
	FieldPath         = "path"
	FieldSpec         = "specification"
	FieldResult       = "result"
	FieldRemoved      = "removed"
	FieldValueType    = "value_type"
	FieldValue        = "value"
	FieldEvent        = "event"
	FieldEvents       = "events"
	FieldFrom         = "from"
	FieldLimit        = "limit"
	FieldSelector     = "selector"
	FieldKind         = "kind"
	FieldSequence     = "sequence"
	FieldErrorCode    = "error_code"
	FieldErrorMessage = "error_message"
)

type PacketHeader struct {
	ProtocolVersion uint32
	PacketType      PacketType
	PacketUid       uint32
	SequenceNumber  uint32
	SessionId       string
	Timestamp       uint64
}

// Packet is one protocol frame. Responses and error messages carry the
// PacketUid of the request they answer.
type Packet struct {
	Header  *PacketHeader
	Payload *structpb.Struct
}

func (p *Packet) GetHeader() *PacketHeader {
	if p == nil || p.Header == nil {
		return &PacketHeader{}
	}
	return p.Header
}

func (p *Packet) field(key string) *structpb.Value {
	if p == nil || p.Payload == nil {
		return nil
	}
	return p.Payload.GetFields()[key]
}

func (p *Packet) GetString(key string) string {
	return p.field(key).GetStringValue()
}

func (p *Packet) GetNumber(key string) float64 {
	return p.field(key).GetNumberValue()
}

func (p *Packet) GetValue(key string) *structpb.Value {
	return p.field(key)
}

func (p *Packet) GetStruct(key string) *structpb.Struct {
	return p.field(key).GetStructValue()
}

func (p *Packet) GetList(key string) []*structpb.Value {
	return p.field(key).GetListValue().GetValues()
}

func (p *Packet) GetErrorCode() ErrorCode {
	return ErrorCode(p.GetNumber(FieldErrorCode))
}

func (p *Packet) GetErrorMessage() string {
	return p.GetString(FieldErrorMessage)
}

// IsResponseTo reports whether p answers the request identified by uid.
func (p *Packet) IsResponseTo(uid uint32) bool {
	return p.GetHeader().PacketUid == uid
}
