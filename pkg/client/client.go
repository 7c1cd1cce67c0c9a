package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AmyangXYZ/rtseries/pkg/config"
	"github.com/AmyangXYZ/rtseries/pkg/datatype"
	"github.com/AmyangXYZ/rtseries/pkg/notify"
	"github.com/AmyangXYZ/rtseries/pkg/packet"
	"github.com/AmyangXYZ/rtseries/pkg/timeseries"
	"github.com/AmyangXYZ/rtseries/pkg/topics"
	"github.com/gorilla/websocket"
)

// EventHandler receives topic events for a subscription, in server order.
type EventHandler func(ev notify.Event)

// Session is a client connection to an rtseries server. Requests block
// until their response arrives; a single read loop routes responses by
// packet UID. Requests are never retried.
type Session struct {
	id       string
	lifetime time.Duration
	cfg      config.ClientConfig
	conn     *websocket.Conn
	writeMu  sync.Mutex
	pending  sync.Map
	handlers sync.Map
	events   chan *packet.Packet
	closing  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
	readErr  error
	logger   *log.Logger
}

// Open dials cfg.ServerURL and authenticates with the configured principal
// and credentials. The returned session must be closed.
func Open(ctx context.Context, cfg config.ClientConfig) (*Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, cfg.ServerURL, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("dial: status=%d: %w", resp.StatusCode, err)
		}
		return nil, &SessionError{URL: cfg.ServerURL, Err: err}
	}
	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}

	s := &Session{
		cfg:    cfg,
		conn:   conn,
		events: make(chan *packet.Packet, 256),
		done:   make(chan struct{}),
		logger: log.New(log.Writer(), "[Client] ", 0),
	}
	go s.readLoop()
	go s.dispatchLoop()

	response, err := s.request(ctx, packet.CreateOpenRequestPacket(cfg.Principal, cfg.Credentials), packet.PacketType_OPEN_RESPONSE)
	if err != nil {
		s.stop()
		return nil, &SessionError{URL: cfg.ServerURL, Err: err}
	}
	s.id = response.GetHeader().SessionId
	s.lifetime = time.Duration(response.GetNumber(packet.FieldLifetime)) * time.Second
	s.logger.SetPrefix(fmt.Sprintf("[Client %s] ", s.id))
	s.logger.Printf("Session opened as %s\n", cfg.Principal)
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Lifetime is how long the server keeps the session open without traffic.
func (s *Session) Lifetime() time.Duration {
	return s.lifetime
}

// IsClosed reports whether the session has been released.
func (s *Session) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close asks the server to end the session and releases the connection.
// Only the first call does anything; later calls return nil.
func (s *Session) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	defer s.stop()
	if s.IsClosed() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ResponseTimeout)
	defer cancel()
	if _, err := s.request(ctx, packet.CreateCloseRequestPacket(s.id), packet.PacketType_CLOSE_RESPONSE); err != nil && !errors.Is(err, ErrSessionClosed) {
		return fmt.Errorf("close session: %w", err)
	}
	s.logger.Println("Session closed")
	return nil
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *Session) send(pkt *packet.Packet) error {
	buf, err := packet.Encode(pkt)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, buf)
}

// request sends pkt and waits for the response carrying its UID.
func (s *Session) request(ctx context.Context, pkt *packet.Packet, expected packet.PacketType) (*packet.Packet, error) {
	if s.IsClosed() {
		return nil, ErrSessionClosed
	}
	if s.cfg.ResponseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ResponseTimeout)
		defer cancel()
	}

	uid := pkt.GetHeader().PacketUid
	responses := make(chan *packet.Packet, 1)
	s.pending.Store(uid, responses)
	defer s.pending.Delete(uid)

	if err := s.send(pkt); err != nil {
		return nil, fmt.Errorf("send %s: %w", pkt.GetHeader().PacketType, err)
	}

	select {
	case response := <-responses:
		return checkResponse(pkt, response, expected)
	case <-s.done:
		// the server may answer and hang up in one go
		select {
		case response := <-responses:
			return checkResponse(pkt, response, expected)
		default:
		}
		if s.readErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionClosed, s.readErr)
		}
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", expected, ctx.Err())
	}
}

func checkResponse(request, response *packet.Packet, expected packet.PacketType) (*packet.Packet, error) {
	if response.GetHeader().PacketType == packet.PacketType_ERROR_MESSAGE {
		return nil, &ServerError{Code: response.GetErrorCode(), Message: response.GetErrorMessage()}
	}
	if response.GetHeader().PacketType != expected {
		return nil, fmt.Errorf("%w: %s for %s", ErrUnexpectedResponse, response.GetHeader().PacketType, request.GetHeader().PacketType)
	}
	return response, nil
}

func (s *Session) readLoop() {
	for {
		msgType, buf, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() {
				s.readErr = err
			}
			s.stop()
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		pkt, err := packet.Decode(buf)
		if err != nil {
			s.logger.Println("Dropping packet:", err)
			continue
		}

		if pkt.GetHeader().PacketType == packet.PacketType_TOPIC_EVENT {
			select {
			case s.events <- pkt:
			case <-s.done:
				return
			}
			continue
		}
		if ch, ok := s.pending.Load(pkt.GetHeader().PacketUid); ok {
			select {
			case ch.(chan *packet.Packet) <- pkt:
			default:
			}
		} else {
			s.logger.Printf("Response for unknown request 0x%X", pkt.GetHeader().PacketUid)
		}
	}
}

func (s *Session) dispatchLoop() {
	for {
		select {
		case <-s.done:
			return
		case pkt := <-s.events:
			selector := pkt.GetString(packet.FieldSelector)
			if h, ok := s.handlers.Load(selector); ok {
				h.(EventHandler)(notify.FromStruct(pkt.GetStruct(packet.FieldEvent)))
			}
		}
	}
}

// AddTopic creates a topic. An existing topic with the same specification
// yields EXISTS rather than an error.
func (s *Session) AddTopic(ctx context.Context, path string, spec topics.Specification) (topics.AddResult, error) {
	response, err := s.request(ctx, packet.CreateAddTopicPacket(s.id, path, spec.ToStruct()), packet.PacketType_ADD_TOPIC_RESPONSE)
	if err != nil {
		return "", &TopicCreationError{Path: path, Err: err}
	}
	return topics.AddResult(response.GetString(packet.FieldResult)), nil
}

// RemoveTopic removes the topic at path and every topic beneath it. It
// fails if nothing was removed.
func (s *Session) RemoveTopic(ctx context.Context, path string) (int, error) {
	response, err := s.request(ctx, packet.CreateRemoveTopicPacket(s.id, path), packet.PacketType_REMOVE_TOPIC_RESPONSE)
	if err != nil {
		return 0, &RemovalError{Path: path, Err: err}
	}
	return int(response.GetNumber(packet.FieldRemoved)), nil
}

// SetTopic replaces the value of a non time-series topic.
func (s *Session) SetTopic(ctx context.Context, path string, value any, dt datatype.DataType) error {
	encoded, err := dt.Encode(value)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	if _, err := s.request(ctx, packet.CreateSetTopicPacket(s.id, path, dt.Name(), encoded), packet.PacketType_SET_TOPIC_RESPONSE); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

type FetchResult struct {
	Spec  topics.Specification
	Value any
}

// Fetch returns a topic's specification and its current value, or its
// latest event for a time series. Value is nil when nothing was set yet.
func (s *Session) Fetch(ctx context.Context, path string) (FetchResult, error) {
	response, err := s.request(ctx, packet.CreateFetchPacket(s.id, path), packet.PacketType_FETCH_RESPONSE)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", path, err)
	}
	spec, err := topics.FromStruct(response.GetStruct(packet.FieldSpec))
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", path, err)
	}
	result := FetchResult{Spec: spec}
	if raw := response.GetValue(packet.FieldValue); raw != nil {
		dt, err := spec.DataType()
		if err != nil {
			return FetchResult{}, fmt.Errorf("fetch %s: %w", path, err)
		}
		if result.Value, err = dt.Decode(raw); err != nil {
			return FetchResult{}, fmt.Errorf("fetch %s: %w", path, err)
		}
	}
	return result, nil
}

// Append adds value to the time series at path and returns the event the
// server stored.
func (s *Session) Append(ctx context.Context, path string, value any, dt datatype.DataType) (timeseries.Event, error) {
	encoded, err := dt.Encode(value)
	if err != nil {
		return timeseries.Event{}, &AppendError{Path: path, Err: err}
	}
	response, err := s.request(ctx, packet.CreateAppendPacket(s.id, path, dt.Name(), encoded), packet.PacketType_TIME_SERIES_APPEND_RESPONSE)
	if err != nil {
		return timeseries.Event{}, &AppendError{Path: path, Err: err}
	}
	return timeseries.FromStruct(response.GetStruct(packet.FieldEvent)), nil
}

// Range returns up to limit events starting at sequence from. A limit of
// zero returns everything retained.
func (s *Session) Range(ctx context.Context, path string, from uint64, limit int) ([]timeseries.Event, error) {
	response, err := s.request(ctx, packet.CreateRangePacket(s.id, path, from, limit), packet.PacketType_TIME_SERIES_RANGE_RESPONSE)
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", path, err)
	}
	values := response.GetList(packet.FieldEvents)
	events := make([]timeseries.Event, 0, len(values))
	for _, v := range values {
		events = append(events, timeseries.FromStruct(v.GetStructValue()))
	}
	return events, nil
}

// Subscribe routes events for selector and its descendants to handler.
// Handlers run on a single goroutine and must not block for long.
func (s *Session) Subscribe(ctx context.Context, selector string, handler EventHandler) error {
	s.handlers.Store(selector, handler)
	if _, err := s.request(ctx, packet.CreateSubscribePacket(s.id, selector), packet.PacketType_SUBSCRIPTION_RESPONSE); err != nil {
		s.handlers.Delete(selector)
		return fmt.Errorf("subscribe %s: %w", selector, err)
	}
	return nil
}

func (s *Session) Unsubscribe(ctx context.Context, selector string) error {
	defer s.handlers.Delete(selector)
	if _, err := s.request(ctx, packet.CreateUnsubscribePacket(s.id, selector), packet.PacketType_SUBSCRIPTION_RESPONSE); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", selector, err)
	}
	return nil
}

// Ping measures the round trip to the server.
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := s.request(ctx, packet.CreatePingPacket(s.id), packet.PacketType_PONG); err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}
	return time.Since(start), nil
}
