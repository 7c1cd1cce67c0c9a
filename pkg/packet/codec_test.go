package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestEncodeDecodePreservesHeaderAndPayload(t *testing.T) {
	pkt := CreateAppendPacket("session-1", "time-series/string/now", "string", structpb.NewStringValue("Value 1"))

	buf, err := Encode(pkt)
	require.NoError(t, err)

	decoded, err := Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, PacketType_TIME_SERIES_APPEND, decoded.GetHeader().PacketType)
	assert.Equal(t, pkt.Header.PacketUid, decoded.GetHeader().PacketUid)
	assert.Equal(t, pkt.Header.Timestamp, decoded.GetHeader().Timestamp)
	assert.Equal(t, "session-1", decoded.GetHeader().SessionId)
	assert.Equal(t, "time-series/string/now", decoded.GetString(FieldPath))
	assert.Equal(t, "Value 1", decoded.GetValue(FieldValue).GetStringValue())
}

func TestResponsesReuseRequestUID(t *testing.T) {
	req := CreateRemoveTopicPacket("s", "a/b")
	resp := CreateRemoveTopicResponsePacket(req.Header.PacketUid, "s", 1)
	errResp := CreateErrorMessagePacket(req.Header.PacketUid, "s", ErrorCode_TOPIC_NOT_FOUND, "no topic")

	assert.True(t, resp.IsResponseTo(req.Header.PacketUid))
	assert.True(t, errResp.IsResponseTo(req.Header.PacketUid))
	assert.Equal(t, ErrorCode_TOPIC_NOT_FOUND, errResp.GetErrorCode())
	assert.Equal(t, "no topic", errResp.GetErrorMessage())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x01, 0x02})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsMissingHeader(t *testing.T) {
	buf, err := proto.Marshal(&structpb.Struct{Fields: map[string]*structpb.Value{
		"payload": structpb.NewStructValue(&structpb.Struct{}),
	}})
	require.NoError(t, err)

	_, err = Decode(buf)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsOtherVersions(t *testing.T) {
	pkt := CreatePingPacket("s")
	pkt.Header.ProtocolVersion = Version + 1
	buf, err := Encode(pkt)
	require.NoError(t, err)

	_, err = Decode(buf)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestSequenceNumbersIncrease(t *testing.T) {
	a := CreatePingPacket("s")
	b := CreatePingPacket("s")
	assert.Greater(t, b.Header.SequenceNumber, a.Header.SequenceNumber)
}

func TestPacketTypeString(t *testing.T) {
	assert.Equal(t, "TIME_SERIES_APPEND", PacketType_TIME_SERIES_APPEND.String())
	assert.Equal(t, "PacketType(99)", PacketType(99).String())
	assert.Equal(t, "EXISTS_MISMATCH", ErrorCode_EXISTS_MISMATCH.String())
}
