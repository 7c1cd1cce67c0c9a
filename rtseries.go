// for easier import

package rtseries

import (
	"github.com/AmyangXYZ/rtseries/pkg/appender"
	"github.com/AmyangXYZ/rtseries/pkg/client"
	"github.com/AmyangXYZ/rtseries/pkg/config"
	"github.com/AmyangXYZ/rtseries/pkg/core"
	"github.com/AmyangXYZ/rtseries/pkg/engine"
	"github.com/AmyangXYZ/rtseries/pkg/topics"
)

type Engine = core.Engine
type Session = client.Session
type Config = config.Config
type Specification = topics.Specification
type TopicItem = core.TopicItem
type PacketMeta = core.PacketMeta
type Appender = appender.Appender

var NewEngine = engine.NewEngine
var Open = client.Open
var NewAppender = appender.New
var DefaultConfig = config.DefaultConfig
