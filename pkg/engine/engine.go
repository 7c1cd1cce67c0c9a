package engine

import (
	"context"

	"github.com/AmyangXYZ/rtseries/pkg/config"
	"github.com/AmyangXYZ/rtseries/pkg/core"
	"github.com/AmyangXYZ/rtseries/pkg/notify"
	"github.com/AmyangXYZ/rtseries/pkg/server"
	"github.com/AmyangXYZ/rtseries/pkg/session"
	"github.com/AmyangXYZ/rtseries/pkg/sniffer"
	"github.com/AmyangXYZ/rtseries/pkg/tree"
)

type RTSeriesEngine struct {
	cfg            config.Config
	server         *server.Server
	sessionManager *session.SessionManager
	tree           *tree.Tree
	bus            *notify.Bus
	sniffer        *sniffer.PacketSniffer
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewEngine wires the components and starts their background loops. The
// network listener only starts with Start; Handler can be served directly.
func NewEngine(cfg config.Config) *RTSeriesEngine {
	ctx, cancel := context.WithCancel(context.Background())
	engine := &RTSeriesEngine{
		cfg:    cfg,
		bus:    notify.NewBus(cfg.Server.EventBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	engine.tree = tree.NewTree(engine.bus)
	engine.sniffer = sniffer.NewPacketSniffer(ctx, cfg.Server.PacketSnifferCapacity)
	engine.sessionManager = session.NewSessionManager(engine)
	engine.server = server.NewServer(engine)

	go engine.sessionManager.Start()
	go engine.tree.Housekeeping(ctx, cfg.Server.HouseKeepingInterval)
	return engine
}

func (e *RTSeriesEngine) Config() *config.Config {
	return &e.cfg
}

// Start serves on the configured address until Stop is called.
func (e *RTSeriesEngine) Start() error {
	return e.server.Start()
}

func (e *RTSeriesEngine) Stop() {
	e.server.Stop()
	e.cancel()
	e.bus.Close()
}

func (e *RTSeriesEngine) Server() core.Server {
	return e.server
}

func (e *RTSeriesEngine) SessionManager() core.SessionManager {
	return e.sessionManager
}

func (e *RTSeriesEngine) Tree() core.Tree {
	return e.tree
}

func (e *RTSeriesEngine) Bus() core.EventBus {
	return e.bus
}

func (e *RTSeriesEngine) PacketSniffer() core.PacketSniffer {
	return e.sniffer
}

func (e *RTSeriesEngine) Ctx() context.Context {
	return e.ctx
}

var _ core.Engine = (*RTSeriesEngine)(nil)
