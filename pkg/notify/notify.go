// Package notify fans topic mutations out to interested sessions.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/AmyangXYZ/rtseries/pkg/packet"
	"github.com/AmyangXYZ/rtseries/pkg/topics"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type Kind string

const (
	ADDED    Kind = "ADDED"
	UPDATED  Kind = "UPDATED"
	APPENDED Kind = "APPENDED"
	REMOVED  Kind = "REMOVED"
)

const (
	busTopic    = "topic-events"
	metaKeyPath = packet.FieldPath
	metaKeyKind = packet.FieldKind
)

type Event struct {
	Kind     Kind
	Path     string
	Sequence uint64
	Value    *structpb.Value
}

func (e Event) ToStruct() *structpb.Struct {
	fields := map[string]*structpb.Value{
		packet.FieldKind:     structpb.NewStringValue(string(e.Kind)),
		packet.FieldPath:     structpb.NewStringValue(e.Path),
		packet.FieldSequence: structpb.NewNumberValue(float64(e.Sequence)),
	}
	if e.Value != nil {
		fields[packet.FieldValue] = e.Value
	}
	return &structpb.Struct{Fields: fields}
}

func FromStruct(st *structpb.Struct) Event {
	fields := st.GetFields()
	return Event{
		Kind:     Kind(fields[packet.FieldKind].GetStringValue()),
		Path:     fields[packet.FieldPath].GetStringValue(),
		Sequence: uint64(fields[packet.FieldSequence].GetNumberValue()),
		Value:    fields[packet.FieldValue],
	}
}

type Bus struct {
	pubsub *gochannel.GoChannel
	buffer int
	logger *log.Logger
}

// NewBus creates an in-memory bus. Publish blocks until every subscriber
// has taken the event, which keeps per-subscriber delivery in publish order.
func NewBus(buffer int) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            int64(buffer),
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NewStdLogger(false, false),
		),
		buffer: buffer,
		logger: log.New(log.Writer(), "[Notify] ", 0),
	}
}

// Publish hands ev to every matching subscriber. It blocks until each
// subscriber has buffered the event, so a subscriber whose channel is full
// stalls publishers until it drains or its context is cancelled.
func (b *Bus) Publish(ev Event) error {
	payload, err := proto.Marshal(ev.ToStruct())
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaKeyPath, ev.Path)
	msg.Metadata.Set(metaKeyKind, string(ev.Kind))
	return b.pubsub.Publish(busTopic, msg)
}

// Subscribe delivers events for selector and its descendants until ctx is
// done, then closes the returned channel.
func (b *Bus) Subscribe(ctx context.Context, selector string) (<-chan Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, busTopic)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, b.buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			if !topics.Matches(selector, msg.Metadata.Get(metaKeyPath)) {
				msg.Ack()
				continue
			}
			st := &structpb.Struct{}
			if err := proto.Unmarshal(msg.Payload, st); err != nil {
				b.logger.Printf("Dropping undecodable event %s: %v", msg.UUID, err)
				msg.Ack()
				continue
			}
			select {
			case out <- FromStruct(st):
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
