package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AmyangXYZ/rtseries/pkg/core"
	"github.com/AmyangXYZ/rtseries/pkg/datatype"
	"github.com/AmyangXYZ/rtseries/pkg/packet"
	"github.com/AmyangXYZ/rtseries/pkg/timeseries"
	"github.com/AmyangXYZ/rtseries/pkg/topics"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/types/known/structpb"
)

// Session serves one authenticated connection. Packets are handled in the
// order the server reads them; everything sent back goes through outQueue
// so writes to the connection are serialized.
type Session struct {
	engine        core.Engine
	id            string
	principal     string
	lifetime      atomic.Int64
	conn          *websocket.Conn
	logger        *log.Logger
	outQueue      chan *packet.Packet
	subscriptions map[string]context.CancelFunc
	subMu         sync.Mutex
	stopOnce      sync.Once
	ctx           context.Context
	cancel        context.CancelFunc
}

func NewSession(engine core.Engine, id, principal string, conn *websocket.Conn) *Session {
	ctx, cancel := context.WithCancel(engine.Ctx())
	logger := log.New(log.Writer(), fmt.Sprintf("[Session %s] ", shortID(id)), 0)
	s := &Session{
		engine:        engine,
		id:            id,
		principal:     principal,
		conn:          conn,
		logger:        logger,
		outQueue:      make(chan *packet.Packet, engine.Config().Server.PktQueueSize),
		subscriptions: make(map[string]context.CancelFunc),
		ctx:           ctx,
		cancel:        cancel,
	}
	s.ResetLifetime()
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Principal() string {
	return s.principal
}

func (s *Session) Lifetime() int {
	return int(s.lifetime.Load())
}

func (s *Session) RemoteAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}

func (s *Session) Conn() *websocket.Conn {
	return s.conn
}

func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) ResetLifetime() {
	s.lifetime.Store(int64(s.engine.Config().Server.SessionLifetime))
}

func (s *Session) lifetimeTimer() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.lifetime.Load() > 0 {
				s.lifetime.Add(-1)
			} else {
				s.logger.Println("Lifetime expired")
			}
		}
	}
}

func (s *Session) Start() {
	go s.lifetimeTimer()
	s.processQueue()
}

func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Println("Stop session")
		s.cancel()
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

func (s *Session) processQueue() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case pkt := <-s.outQueue:
			s.sendPacket(pkt)
			if pkt.GetHeader().PacketType == packet.PacketType_CLOSE_RESPONSE {
				s.Stop()
				return
			}
		}
	}
}

func (s *Session) sendPacket(pkt *packet.Packet) {
	if err := s.engine.Server().Send(s, pkt); err != nil {
		s.logger.Println(err)
	}
}

func (s *Session) enqueue(pkt *packet.Packet) {
	select {
	case s.outQueue <- pkt:
	case <-s.ctx.Done():
	}
}

func (s *Session) sendError(uid uint32, err error) {
	code := errorCode(err)
	s.logger.Printf("Request 0x%X failed with %s: %v", uid, code, err)
	s.enqueue(packet.CreateErrorMessagePacket(uid, s.id, code, err.Error()))
}

// SendError queues an ERROR_MESSAGE answering the request uid, or 0 when
// the offending packet could not be decoded.
func (s *Session) SendError(uid uint32, code packet.ErrorCode, message string) {
	s.enqueue(packet.CreateErrorMessagePacket(uid, s.id, code, message))
}

func errorCode(err error) packet.ErrorCode {
	switch {
	case errors.Is(err, topics.ErrInvalidPath):
		return packet.ErrorCode_INVALID_PATH
	case errors.Is(err, topics.ErrInvalidSpecification):
		return packet.ErrorCode_INVALID_SPECIFICATION
	case errors.Is(err, core.ErrExistsMismatch):
		return packet.ErrorCode_EXISTS_MISMATCH
	case errors.Is(err, core.ErrTopicNotFound):
		return packet.ErrorCode_TOPIC_NOT_FOUND
	case errors.Is(err, core.ErrIncompatibleType):
		return packet.ErrorCode_INCOMPATIBLE_TYPE
	case errors.Is(err, datatype.ErrInvalidValue), errors.Is(err, datatype.ErrUnknownDataType):
		return packet.ErrorCode_INVALID_VALUE
	default:
		return packet.ErrorCode_UNKNOWN_REQUEST
	}
}

func (s *Session) HandlePacket(pkt *packet.Packet) {
	uid := pkt.GetHeader().PacketUid
	s.logger.Printf("Received %s-0x%X\n", pkt.GetHeader().PacketType, uid)
	s.ResetLifetime()

	switch pkt.GetHeader().PacketType {
	case packet.PacketType_OPEN_REQUEST:
		s.enqueue(packet.CreateOpenResponsePacket(uid, s.id, s.engine.Config().Server.SessionLifetime))
	case packet.PacketType_CLOSE_REQUEST:
		s.enqueue(packet.CreateCloseResponsePacket(uid, s.id))
	case packet.PacketType_PING:
		s.enqueue(packet.CreatePongPacket(uid, s.id, pkt.GetHeader().Timestamp))
	case packet.PacketType_ADD_TOPIC:
		path := pkt.GetString(packet.FieldPath)
		spec, err := topics.FromStruct(pkt.GetStruct(packet.FieldSpec))
		if err != nil {
			s.sendError(uid, err)
			return
		}
		result, err := s.engine.Tree().Add(path, spec)
		if err != nil {
			s.sendError(uid, err)
			return
		}
		s.enqueue(packet.CreateAddTopicResponsePacket(uid, s.id, string(result)))
	case packet.PacketType_REMOVE_TOPIC:
		path := pkt.GetString(packet.FieldPath)
		removed, err := s.engine.Tree().Remove(path)
		if err != nil {
			s.sendError(uid, err)
			return
		}
		if removed == 0 {
			s.sendError(uid, fmt.Errorf("%w: %s", core.ErrTopicNotFound, path))
			return
		}
		s.enqueue(packet.CreateRemoveTopicResponsePacket(uid, s.id, removed))
	case packet.PacketType_SET_TOPIC:
		err := s.engine.Tree().Set(pkt.GetString(packet.FieldPath), pkt.GetString(packet.FieldValueType), pkt.GetValue(packet.FieldValue))
		if err != nil {
			s.sendError(uid, err)
			return
		}
		s.enqueue(packet.CreateSetTopicResponsePacket(uid, s.id))
	case packet.PacketType_FETCH:
		path := pkt.GetString(packet.FieldPath)
		item := s.engine.Tree().Get(path)
		if item == nil {
			s.sendError(uid, fmt.Errorf("%w: %s", core.ErrTopicNotFound, path))
			return
		}
		value := item.Value
		if item.Series != nil {
			if latest, ok := item.Series.Latest(); ok {
				value = latest.Value
			}
		}
		s.enqueue(packet.CreateFetchResponsePacket(uid, s.id, item.Spec.ToStruct(), value))
	case packet.PacketType_TIME_SERIES_APPEND:
		event, err := s.engine.Tree().Append(pkt.GetString(packet.FieldPath), s.principal, pkt.GetString(packet.FieldValueType), pkt.GetValue(packet.FieldValue))
		if err != nil {
			s.sendError(uid, err)
			return
		}
		s.enqueue(packet.CreateAppendResponsePacket(uid, s.id, event.ToStruct()))
	case packet.PacketType_TIME_SERIES_RANGE:
		events, err := s.engine.Tree().Range(pkt.GetString(packet.FieldPath), uint64(pkt.GetNumber(packet.FieldFrom)), int(pkt.GetNumber(packet.FieldLimit)))
		if err != nil {
			s.sendError(uid, err)
			return
		}
		s.enqueue(packet.CreateRangeResponsePacket(uid, s.id, eventValues(events)))
	case packet.PacketType_SUBSCRIBE:
		selector := pkt.GetString(packet.FieldSelector)
		if err := s.subscribe(selector); err != nil {
			s.sendError(uid, err)
			return
		}
		s.enqueue(packet.CreateSubscriptionResponsePacket(uid, s.id, selector))
	case packet.PacketType_UNSUBSCRIBE:
		selector := pkt.GetString(packet.FieldSelector)
		s.unsubscribe(selector)
		s.enqueue(packet.CreateSubscriptionResponsePacket(uid, s.id, selector))
	default:
		s.logger.Printf("Received unknown packet type: %s", pkt.GetHeader().PacketType)
		s.enqueue(packet.CreateErrorMessagePacket(uid, s.id, packet.ErrorCode_UNKNOWN_REQUEST, pkt.GetHeader().PacketType.String()))
	}
}

func eventValues(events []timeseries.Event) []*structpb.Value {
	values := make([]*structpb.Value, 0, len(events))
	for _, e := range events {
		values = append(values, structpb.NewStructValue(e.ToStruct()))
	}
	return values
}

// subscribe forwards bus events for selector as TOPIC_EVENT packets.
// Subscribing twice to the same selector is a no-op.
func (s *Session) subscribe(selector string) error {
	if err := topics.ValidatePath(selector); err != nil {
		return err
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subscriptions[selector]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(s.ctx)
	events, err := s.engine.Bus().Subscribe(ctx, selector)
	if err != nil {
		cancel()
		return err
	}
	s.subscriptions[selector] = cancel
	go func() {
		for ev := range events {
			s.enqueue(packet.CreateTopicEventPacket(s.id, selector, ev.ToStruct()))
		}
	}()
	return nil
}

func (s *Session) unsubscribe(selector string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if cancel, ok := s.subscriptions[selector]; ok {
		cancel()
		delete(s.subscriptions, selector)
	}
}
