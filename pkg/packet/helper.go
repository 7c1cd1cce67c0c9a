package packet

import (
	"math/rand"
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	Version = 1
)

var (
	sequenceNumber atomic.Uint32
)

func getUID() uint32 {
	for {
		if uid := rand.Uint32(); uid != 0 {
			return uid
		}
	}
}

func getTimestamp() uint64 {
	return uint64(time.Now().UnixMicro())
}

func getSeqNo() uint32 {
	return sequenceNumber.Add(1)
}

// PayloadLength returns the encoded size of the payload alone.
func PayloadLength(pkt *Packet) uint32 {
	if pkt == nil || pkt.Payload == nil {
		return 0
	}
	return uint32(proto.Size(pkt.Payload))
}

func createHeader(packetType PacketType, uid, seqNo uint32, sessionID string) *PacketHeader {
	return &PacketHeader{
		ProtocolVersion: Version,
		PacketType:      packetType,
		PacketUid:       uid,
		SequenceNumber:  seqNo,
		SessionId:       sessionID,
		Timestamp:       getTimestamp(),
	}
}

func newPacket(packetType PacketType, uid uint32, sessionID string, fields map[string]*structpb.Value) *Packet {
	if fields == nil {
		fields = map[string]*structpb.Value{}
	}
	return &Packet{
		Header:  createHeader(packetType, uid, getSeqNo(), sessionID),
		Payload: &structpb.Struct{Fields: fields},
	}
}

func CreateOpenRequestPacket(principal, credentials string) *Packet {
	return newPacket(PacketType_OPEN_REQUEST, getUID(), "", map[string]*structpb.Value{
		FieldPrincipal:   structpb.NewStringValue(principal),
		FieldCredentials: structpb.NewStringValue(credentials),
	})
}

func CreateOpenResponsePacket(uid uint32, sessionID string, lifetime int) *Packet {
	return newPacket(PacketType_OPEN_RESPONSE, uid, sessionID, map[string]*structpb.Value{
		FieldLifetime: structpb.NewNumberValue(float64(lifetime)),
	})
}

func CreateCloseRequestPacket(sessionID string) *Packet {
	return newPacket(PacketType_CLOSE_REQUEST, getUID(), sessionID, nil)
}

func CreateCloseResponsePacket(uid uint32, sessionID string) *Packet {
	return newPacket(PacketType_CLOSE_RESPONSE, uid, sessionID, nil)
}

func CreateAddTopicPacket(sessionID, path string, spec *structpb.Struct) *Packet {
	return newPacket(PacketType_ADD_TOPIC, getUID(), sessionID, map[string]*structpb.Value{
		FieldPath: structpb.NewStringValue(path),
		FieldSpec: structpb.NewStructValue(spec),
	})
}

func CreateAddTopicResponsePacket(uid uint32, sessionID, result string) *Packet {
	return newPacket(PacketType_ADD_TOPIC_RESPONSE, uid, sessionID, map[string]*structpb.Value{
		FieldResult: structpb.NewStringValue(result),
	})
}

func CreateRemoveTopicPacket(sessionID, path string) *Packet {
	return newPacket(PacketType_REMOVE_TOPIC, getUID(), sessionID, map[string]*structpb.Value{
		FieldPath: structpb.NewStringValue(path),
	})
}

func CreateRemoveTopicResponsePacket(uid uint32, sessionID string, removed int) *Packet {
	return newPacket(PacketType_REMOVE_TOPIC_RESPONSE, uid, sessionID, map[string]*structpb.Value{
		FieldRemoved: structpb.NewNumberValue(float64(removed)),
	})
}

func CreateSetTopicPacket(sessionID, path, valueType string, value *structpb.Value) *Packet {
	return newPacket(PacketType_SET_TOPIC, getUID(), sessionID, map[string]*structpb.Value{
		FieldPath:      structpb.NewStringValue(path),
		FieldValueType: structpb.NewStringValue(valueType),
		FieldValue:     value,
	})
}

func CreateSetTopicResponsePacket(uid uint32, sessionID string) *Packet {
	return newPacket(PacketType_SET_TOPIC_RESPONSE, uid, sessionID, nil)
}

func CreateFetchPacket(sessionID, path string) *Packet {
	return newPacket(PacketType_FETCH, getUID(), sessionID, map[string]*structpb.Value{
		FieldPath: structpb.NewStringValue(path),
	})
}

// CreateFetchResponsePacket carries the topic specification and, when the
// topic holds one, its current value.
func CreateFetchResponsePacket(uid uint32, sessionID string, spec *structpb.Struct, value *structpb.Value) *Packet {
	fields := map[string]*structpb.Value{
		FieldSpec: structpb.NewStructValue(spec),
	}
	if value != nil {
		fields[FieldValue] = value
	}
	return newPacket(PacketType_FETCH_RESPONSE, uid, sessionID, fields)
}

func CreateAppendPacket(sessionID, path, valueType string, value *structpb.Value) *Packet {
	return newPacket(PacketType_TIME_SERIES_APPEND, getUID(), sessionID, map[string]*structpb.Value{
		FieldPath:      structpb.NewStringValue(path),
		FieldValueType: structpb.NewStringValue(valueType),
		FieldValue:     value,
	})
}

func CreateAppendResponsePacket(uid uint32, sessionID string, event *structpb.Struct) *Packet {
	return newPacket(PacketType_TIME_SERIES_APPEND_RESPONSE, uid, sessionID, map[string]*structpb.Value{
		FieldEvent: structpb.NewStructValue(event),
	})
}

func CreateRangePacket(sessionID, path string, from uint64, limit int) *Packet {
	return newPacket(PacketType_TIME_SERIES_RANGE, getUID(), sessionID, map[string]*structpb.Value{
		FieldPath:  structpb.NewStringValue(path),
		FieldFrom:  structpb.NewNumberValue(float64(from)),
		FieldLimit: structpb.NewNumberValue(float64(limit)),
	})
}

func CreateRangeResponsePacket(uid uint32, sessionID string, events []*structpb.Value) *Packet {
	return newPacket(PacketType_TIME_SERIES_RANGE_RESPONSE, uid, sessionID, map[string]*structpb.Value{
		FieldEvents: structpb.NewListValue(&structpb.ListValue{Values: events}),
	})
}

func CreateSubscribePacket(sessionID, selector string) *Packet {
	return newPacket(PacketType_SUBSCRIBE, getUID(), sessionID, map[string]*structpb.Value{
		FieldSelector: structpb.NewStringValue(selector),
	})
}

func CreateUnsubscribePacket(sessionID, selector string) *Packet {
	return newPacket(PacketType_UNSUBSCRIBE, getUID(), sessionID, map[string]*structpb.Value{
		FieldSelector: structpb.NewStringValue(selector),
	})
}

func CreateSubscriptionResponsePacket(uid uint32, sessionID, selector string) *Packet {
	return newPacket(PacketType_SUBSCRIPTION_RESPONSE, uid, sessionID, map[string]*structpb.Value{
		FieldSelector: structpb.NewStringValue(selector),
	})
}

func CreateTopicEventPacket(sessionID, selector string, event *structpb.Struct) *Packet {
	return newPacket(PacketType_TOPIC_EVENT, getUID(), sessionID, map[string]*structpb.Value{
		FieldSelector: structpb.NewStringValue(selector),
		FieldEvent:    structpb.NewStructValue(event),
	})
}

func CreatePingPacket(sessionID string) *Packet {
	return newPacket(PacketType_PING, getUID(), sessionID, nil)
}

// CreatePongPacket echoes the ping timestamp so the sender can measure
// round-trip latency.
func CreatePongPacket(uid uint32, sessionID string, txTimestamp uint64) *Packet {
	return newPacket(PacketType_PONG, uid, sessionID, map[string]*structpb.Value{
		FieldValue: structpb.NewNumberValue(float64(txTimestamp)),
	})
}

func CreateErrorMessagePacket(uid uint32, sessionID string, errorCode ErrorCode, message string) *Packet {
	return newPacket(PacketType_ERROR_MESSAGE, uid, sessionID, map[string]*structpb.Value{
		FieldErrorCode:    structpb.NewNumberValue(float64(errorCode)),
		FieldErrorMessage: structpb.NewStringValue(message),
	})
}
