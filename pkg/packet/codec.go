package packet

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrMalformed          = errors.New("malformed packet")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

const (
	keyHeader  = "header"
	keyPayload = "payload"
	keyVersion = "version"
	keyType    = "type"
	keyUID     = "uid"
	keySeq     = "seq"
	keySession = "session"
	keyTime    = "ts"
)

// Encode serializes pkt as a protobuf Struct with a header and a payload.
func Encode(pkt *Packet) ([]byte, error) {
	if pkt == nil || pkt.Header == nil {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}
	h := pkt.Header
	header := &structpb.Struct{Fields: map[string]*structpb.Value{
		keyVersion: structpb.NewNumberValue(float64(h.ProtocolVersion)),
		keyType:    structpb.NewNumberValue(float64(h.PacketType)),
		keyUID:     structpb.NewNumberValue(float64(h.PacketUid)),
		keySeq:     structpb.NewNumberValue(float64(h.SequenceNumber)),
		keySession: structpb.NewStringValue(h.SessionId),
		keyTime:    structpb.NewNumberValue(float64(h.Timestamp)),
	}}
	payload := pkt.Payload
	if payload == nil {
		payload = &structpb.Struct{Fields: map[string]*structpb.Value{}}
	}
	frame := &structpb.Struct{Fields: map[string]*structpb.Value{
		keyHeader:  structpb.NewStructValue(header),
		keyPayload: structpb.NewStructValue(payload),
	}}
	return proto.Marshal(frame)
}

func Decode(buf []byte) (*Packet, error) {
	frame := &structpb.Struct{}
	if err := proto.Unmarshal(buf, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	header := frame.GetFields()[keyHeader].GetStructValue()
	if header == nil {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}
	fields := header.GetFields()
	version := uint32(fields[keyVersion].GetNumberValue())
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	pkt := &Packet{
		Header: &PacketHeader{
			ProtocolVersion: version,
			PacketType:      PacketType(fields[keyType].GetNumberValue()),
			PacketUid:       uint32(fields[keyUID].GetNumberValue()),
			SequenceNumber:  uint32(fields[keySeq].GetNumberValue()),
			SessionId:       fields[keySession].GetStringValue(),
			Timestamp:       uint64(fields[keyTime].GetNumberValue()),
		},
		Payload: frame.GetFields()[keyPayload].GetStructValue(),
	}
	if pkt.Header.PacketType == PacketType_UNKNOWN {
		return nil, fmt.Errorf("%w: unknown packet type", ErrMalformed)
	}
	if pkt.Payload == nil {
		pkt.Payload = &structpb.Struct{Fields: map[string]*structpb.Value{}}
	}
	return pkt, nil
}
