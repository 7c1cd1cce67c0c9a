package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AmyangXYZ/rtseries/pkg/config"
	"github.com/AmyangXYZ/rtseries/pkg/notify"
	"github.com/AmyangXYZ/rtseries/pkg/packet"
	"github.com/AmyangXYZ/rtseries/pkg/timeseries"
	"github.com/AmyangXYZ/rtseries/pkg/topics"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrTopicNotFound    = errors.New("topic not found")
	ErrExistsMismatch   = errors.New("topic exists with a different specification")
	ErrIncompatibleType = errors.New("incompatible topic type")
)

type Engine interface {
	Start() error
	Stop()
	Config() *config.Config
	Server() Server
	SessionManager() SessionManager
	Tree() Tree
	Bus() EventBus
	PacketSniffer() PacketSniffer
	Ctx() context.Context
}

type Server interface {
	Start() error
	Stop()
	Addr() string
	Handler() http.Handler
	Send(session Session, pkt *packet.Packet) error
}

type Tree interface {
	Add(path string, spec topics.Specification) (topics.AddResult, error)
	Get(path string) *TopicItem
	Remove(path string) (int, error)
	Set(path, valueType string, value *structpb.Value) error
	Append(path, author, valueType string, value *structpb.Value) (timeseries.Event, error)
	Range(path string, from uint64, limit int) ([]timeseries.Event, error)
	GetAll() []*TopicItem
	ClearAll()
	Housekeeping(ctx context.Context, interval time.Duration)
}

// TopicItem is a snapshot of one topic. Series is shared with the tree.
type TopicItem struct {
	Path    string               `json:"path"`
	Spec    topics.Specification `json:"specification"`
	Value   *structpb.Value      `json:"-"`
	Series  *timeseries.Series   `json:"-"`
	Created time.Time            `json:"created"`
	Expiry  time.Time            `json:"expiry,omitempty"`
}

type EventBus interface {
	Publish(ev notify.Event) error
	Subscribe(ctx context.Context, selector string) (<-chan notify.Event, error)
	Close() error
}

type SessionManager interface {
	Start()
	CreateSession(principal string, conn *websocket.Conn) Session
	GetSession(id string) Session
	GetAllSessions() []Session
	RemoveSession(id string)
	Housekeeping()
}

type Session interface {
	Start()
	Stop()
	ID() string
	Principal() string
	Lifetime() int
	RemoteAddr() string
	Conn() *websocket.Conn
	HandlePacket(pkt *packet.Packet)
	SendError(uid uint32, code packet.ErrorCode, message string)
	Done() <-chan struct{}
}

type PacketMeta struct {
	Count         int               `json:"count"`
	UID           uint32            `json:"uid"`
	Type          packet.PacketType `json:"type"`
	Session       string            `json:"session"`
	Seq           uint32            `json:"seq"`
	Inbound       bool              `json:"inbound"`
	Timestamp     uint64            `json:"timestamp"`
	PayloadLength uint32            `json:"payload_length"`
	Path          string            `json:"path,omitempty"`
}

type PacketSniffer interface {
	Add(pkt *packet.Packet, inbound bool)
	Stream() <-chan *PacketMeta
	Recent() []*PacketMeta
}
