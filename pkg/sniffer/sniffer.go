package sniffer

import (
	"context"
	"log"
	"sync"

	"github.com/AmyangXYZ/rtseries/pkg/core"
	"github.com/AmyangXYZ/rtseries/pkg/packet"
)

// PacketSniffer records metadata of every packet the server sends or
// receives. Both the stream and the recent list keep only the newest
// capacity entries.
type PacketSniffer struct {
	mu         sync.Mutex
	count      int
	packetChan chan *core.PacketMeta
	recent     []*core.PacketMeta
	capacity   int
	stopped    bool
	logger     *log.Logger
}

func NewPacketSniffer(ctx context.Context, capacity int) *PacketSniffer {
	s := &PacketSniffer{
		packetChan: make(chan *core.PacketMeta, capacity),
		recent:     make([]*core.PacketMeta, 0, capacity),
		capacity:   capacity,
		logger:     log.New(log.Writer(), "[PacketSniffer] ", 0),
	}
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopped = true
		close(s.packetChan)
	}()
	return s
}

func (s *PacketSniffer) Add(pkt *packet.Packet, inbound bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.count++
	metadata := &core.PacketMeta{
		Count:         s.count,
		UID:           pkt.GetHeader().PacketUid,
		Type:          pkt.GetHeader().PacketType,
		Session:       pkt.GetHeader().SessionId,
		Seq:           pkt.GetHeader().SequenceNumber,
		Inbound:       inbound,
		Timestamp:     pkt.GetHeader().Timestamp,
		PayloadLength: packet.PayloadLength(pkt),
		Path:          pkt.GetString(packet.FieldPath),
	}

	if len(s.recent) == s.capacity {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:len(s.recent)-1]
	}
	s.recent = append(s.recent, metadata)

	select {
	case s.packetChan <- metadata:
	default:
		// full: drop the oldest
		select {
		case <-s.packetChan:
		default:
		}
		s.packetChan <- metadata
	}
}

func (s *PacketSniffer) Stream() <-chan *core.PacketMeta {
	return s.packetChan
}

// Recent returns a copy of the newest recorded packets, oldest first.
func (s *PacketSniffer) Recent() []*core.PacketMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.PacketMeta(nil), s.recent...)
}
