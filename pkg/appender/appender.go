// Package appender runs the time-series append workflow: open a session,
// create a uniquely named time series of strings, append the configured
// values in order, let them settle, remove the topic and close the session.
package appender

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/AmyangXYZ/rtseries/pkg/client"
	"github.com/AmyangXYZ/rtseries/pkg/config"
	"github.com/AmyangXYZ/rtseries/pkg/datatype"
	"github.com/AmyangXYZ/rtseries/pkg/timeseries"
	"github.com/AmyangXYZ/rtseries/pkg/topics"
)

// Session is the subset of a client session the workflow uses.
type Session interface {
	AddTopic(ctx context.Context, path string, spec topics.Specification) (topics.AddResult, error)
	Append(ctx context.Context, path string, value any, dt datatype.DataType) (timeseries.Event, error)
	RemoveTopic(ctx context.Context, path string) (int, error)
	Close() error
}

type Opener func(ctx context.Context) (Session, error)

// ClientOpener opens real client sessions.
func ClientOpener(cfg config.ClientConfig) Opener {
	return func(ctx context.Context) (Session, error) {
		s, err := client.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Result records how far a run got.
type Result struct {
	Path     string
	Created  bool
	Appended []timeseries.Event
	Removed  bool
}

type Appender struct {
	cfg    config.AppenderConfig
	open   Opener
	out    io.Writer
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *log.Logger
}

// New creates an appender that prints failure reports to out.
func New(cfg config.AppenderConfig, open Opener, out io.Writer) *Appender {
	return &Appender{
		cfg:    cfg,
		open:   open,
		out:    out,
		now:    time.Now,
		sleep:  sleep,
		logger: log.New(log.Writer(), "[Appender] ", 0),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// report prints a failure and carries on.
func (a *Appender) report(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(a.out, msg)
	a.logger.Println(msg)
}

// Run executes the workflow once. A failure to open the session, or ctx
// being cancelled during the settle delay, is returned; creation, append
// and removal failures are reported to out.
// The session is closed exactly once on every path.
func (a *Appender) Run(ctx context.Context) (Result, error) {
	session, err := a.open(ctx)
	if err != nil {
		return Result{}, err
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := session.Close(); err != nil {
				a.logger.Println(err)
			}
		})
	}
	defer release()

	dt := datatype.STRING
	path := topics.TopicPath(a.cfg.TopicPrefix, dt, a.now())
	result := Result{Path: path}

	if _, err := session.AddTopic(ctx, path, topics.TimeSeriesOf(dt)); err != nil {
		a.report("Failed to add topic '%s' : %v.", path, err)
		release()
		return result, nil
	}
	result.Created = true

	if err := a.appendValues(ctx, session, path, dt, &result); err != nil {
		a.report("Topic %s value could not be appended : %v.", path, err)
	} else if err := a.sleep(ctx, a.cfg.SettleDelay); err != nil {
		// cancelled while settling; the session is still released
		return result, err
	}

	if _, err := session.RemoveTopic(ctx, path); err != nil {
		a.report("Failed to remove topic '%s' : %v.", path, err)
	} else {
		result.Removed = true
	}
	return result, nil
}

// appendValues stops at the first failure; values already appended stay.
func (a *Appender) appendValues(ctx context.Context, session Session, path string, dt datatype.DataType, result *Result) error {
	for _, value := range a.cfg.Values {
		event, err := session.Append(ctx, path, value, dt)
		if err != nil {
			return err
		}
		result.Appended = append(result.Appended, event)
	}
	return nil
}
