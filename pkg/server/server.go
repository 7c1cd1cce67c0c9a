package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/AmyangXYZ/rtseries/pkg/core"
	"github.com/AmyangXYZ/rtseries/pkg/packet"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	engine     core.Engine
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	wsUpgrader websocket.Upgrader
	logger     *log.Logger
}

func NewServer(engine core.Engine) *Server {
	s := &Server{
		engine: engine,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.New(log.Writer(), "[Server] ", 0),
	}
	s.httpServer = &http.Server{
		Addr:              engine.Config().Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWs)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Println("Server listening on", ln.Addr())

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr is the bound address once Start is listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

func (s *Server) Stop() {
	s.logger.Println("Stop server")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Println(err)
	}
}

func (s *Server) Send(session core.Session, pkt *packet.Packet) error {
	return s.write(session.Conn(), pkt)
}

func (s *Server) write(conn *websocket.Conn, pkt *packet.Packet) error {
	s.engine.PacketSniffer().Add(pkt, false)
	countPacket(pkt, false)
	buf, err := packet.Encode(pkt)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(s.engine.Config().Server.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, buf)
}

func (s *Server) read(conn *websocket.Conn) (*packet.Packet, error) {
	msgType, buf, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: expected binary message", packet.ErrMalformed)
	}
	pkt, err := packet.Decode(buf)
	if err != nil {
		return nil, err
	}
	s.engine.PacketSniffer().Add(pkt, true)
	countPacket(pkt, true)
	return pkt, nil
}

func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Println("Websocket upgrade error:", err)
		return
	}
	conn.SetReadLimit(s.engine.Config().Server.ReadLimit)

	session, err := s.open(conn)
	if err != nil {
		s.logger.Println(err)
		conn.Close()
		return
	}
	metricActiveSessions.Inc()
	defer func() {
		s.engine.SessionManager().RemoveSession(session.ID())
		metricActiveSessions.Dec()
	}()
	go session.Start()

	for {
		pkt, err := s.read(conn)
		if err != nil {
			if errors.Is(err, packet.ErrMalformed) || errors.Is(err, packet.ErrUnsupportedVersion) {
				s.logger.Println("Rejecting packet:", err)
				session.SendError(0, packet.ErrorCode_MALFORMED_PACKET, err.Error())
				continue
			}
			select {
			case <-session.Done():
			default:
				s.logger.Printf("Connection from %s closed: %v", session.RemoteAddr(), err)
			}
			return
		}
		session.HandlePacket(pkt)
	}
}

// open authenticates the first packet on conn and registers a session.
func (s *Server) open(conn *websocket.Conn) (core.Session, error) {
	pkt, err := s.read(conn)
	if err != nil {
		return nil, fmt.Errorf("read open request: %w", err)
	}
	uid := pkt.GetHeader().PacketUid
	if pkt.GetHeader().PacketType != packet.PacketType_OPEN_REQUEST {
		s.write(conn, packet.CreateErrorMessagePacket(uid, "", packet.ErrorCode_SESSION_CLOSED, "session not open"))
		return nil, fmt.Errorf("expected %s, got %s", packet.PacketType_OPEN_REQUEST, pkt.GetHeader().PacketType)
	}

	principal := pkt.GetString(packet.FieldPrincipal)
	expected, ok := s.engine.Config().Server.Principals[principal]
	if !ok || expected != pkt.GetString(packet.FieldCredentials) {
		metricAuthFailures.Inc()
		s.write(conn, packet.CreateErrorMessagePacket(uid, "", packet.ErrorCode_AUTHENTICATION_FAILED, "authentication failed"))
		return nil, fmt.Errorf("authentication failed for principal %q", principal)
	}

	session := s.engine.SessionManager().CreateSession(principal, conn)
	s.logger.Printf("New session id:%s, principal:%s", session.ID(), principal)
	session.HandlePacket(pkt)
	return session, nil
}
