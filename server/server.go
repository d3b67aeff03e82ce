package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/streadway/amqp"

	"dlist/broker"
	"dlist/config"
	"dlist/types"
)

// Server applies the commands arriving on the command queue to a registry of
// lists and answers on the reply queue named by each delivery.
type Server struct {
	lists    *types.Registry
	channel  broker.Channel
	queue    string
	waitTime time.Duration
	ctx      context.Context
	Cancel   context.CancelFunc
	logger   log15.Logger
	logFile  log15.Logger
	journal  log15.Handler
	dataMux  sync.Mutex
	logsMux  sync.Mutex
	runMux   sync.Mutex
	done     chan struct{}
}

func NewServer(conf *config.Config, ch broker.Channel) (*Server, error) {
	logger := log15.New("service", "server")
	logger.SetHandler(log15.LvlFilterHandler(conf.Level(), log15.StdoutHandler))

	journal := log15.DiscardHandler()
	if conf.LogFilePath != "" {
		logfileHandler, err := log15.FileHandler(conf.LogFilePath, log15.LogfmtFormat())
		if err != nil {
			return nil, err
		}

		journal = logfileHandler
	}

	logFile := log15.New()
	logFile.SetHandler(journal)

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		lists:    types.NewRegistry(),
		channel:  ch,
		queue:    conf.CommandQueue,
		waitTime: time.Duration(conf.ServerWaitTimeSeconds) * time.Second,
		ctx:      ctx,
		Cancel:   cancel,
		logger:   logger,
		logFile:  logFile,
		journal:  journal,
	}, nil
}

// StartServer consumes the command queue until the server is cancelled, the
// delivery channel is closed, or no command arrives within the configured
// wait time.
func (s *Server) StartServer() error {
	s.runMux.Lock()
	if s.ctx.Err() != nil {
		s.runMux.Unlock()
		return nil
	}

	done := make(chan struct{})
	s.done = done
	s.runMux.Unlock()
	defer close(done)

	if err := broker.DeclareQueue(s.channel, s.queue); err != nil {
		return err
	}

	msgs, err := broker.Consume(s.channel, s.queue, "list-server")
	if err != nil {
		return err
	}

	s.logger.Debug("Listening queue!", "queue", s.queue)
	return s.processMessages(msgs)
}

// Stop cancels the server, waits for StartServer to return, and closes the
// command journal.
func (s *Server) Stop() error {
	s.Cancel()

	s.runMux.Lock()
	done := s.done
	s.runMux.Unlock()
	if done != nil {
		<-done
	}

	if c, ok := s.journal.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

// processMessages handles the deliveries one by one, so the commands are
// applied in the order they were queued.
func (s *Server) processMessages(msgs <-chan amqp.Delivery) error {
	var (
		timer *time.Timer
		idle  <-chan time.Time
	)

	if s.waitTime > 0 {
		timer = time.NewTimer(s.waitTime)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-idle:
			s.logger.Info("No commands received, stopping", "wait", s.waitTime)
			return nil
		case message, ok := <-msgs:
			if !ok {
				s.logger.Info("Delivery channel closed")
				return nil
			}

			s.processMessage(message)
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}

				timer.Reset(s.waitTime)
			}
		}
	}
}

func (s *Server) processMessage(message amqp.Delivery) {
	var (
		cmd   types.Command
		reply types.Reply
	)

	if err := json.Unmarshal(message.Body, &cmd); err != nil {
		s.logger.Error("Cannot unmarshal message", "error", err)
		reply = types.Reply{ID: message.CorrelationId, Error: err.Error()}
	} else {
		if cmd.ID == "" {
			cmd.ID = message.CorrelationId
		}

		reply = s.Apply(&cmd)
	}

	s.writeJournal(reply)
	s.sendReply(message, reply)
}

// Apply executes cmd on the list it names and reports the result.
func (s *Server) Apply(cmd *types.Command) types.Reply {
	reply := types.Reply{
		ID:     cmd.ID,
		List:   cmd.ListName(),
		Action: cmd.Action,
	}

	if err := cmd.Validate(); err != nil {
		reply.Error = err.Error()
		return reply
	}

	s.dataMux.Lock()
	defer s.dataMux.Unlock()

	switch cmd.Action {
	case types.Lists:
		reply.List = ""
		reply.Lists = s.lists.Names()
		return reply
	case types.Delete:
		if !s.lists.Delete(reply.List) {
			reply.Error = fmt.Sprintf("%v: %s", types.ErrNoSuchList, reply.List)
		}

		reply.Empty = true
		return reply
	case types.Size, types.Empty:
		if l, ok := s.lists.Lookup(reply.List); ok {
			reply.Size = l.Size()
			reply.Empty = l.Empty()
		} else {
			reply.Empty = true
		}

		return reply
	}

	l := s.lists.Get(reply.List)
	switch cmd.Action {
	case types.PushFront:
		l.PushFront(cmd.Value)
	case types.PushBack:
		l.PushBack(cmd.Value)
	case types.PopFront, types.PopBack:
		pop := l.PopFront
		if cmd.Action == types.PopBack {
			pop = l.PopBack
		}

		v, err := pop()
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Value = &v
		}
	case types.Clear:
		l.Clear()
	}

	reply.Size = l.Size()
	reply.Empty = l.Empty()
	return reply
}

func (s *Server) writeJournal(reply types.Reply) {
	ctx := []interface{}{
		"id", reply.ID,
		"list", reply.List,
		"action", reply.Action,
		"size", reply.Size,
	}

	if reply.Value != nil {
		ctx = append(ctx, "value", *reply.Value)
	}

	if reply.Action == types.Lists {
		ctx = append(ctx, "lists", len(reply.Lists))
	}

	s.logsMux.Lock()
	defer s.logsMux.Unlock()
	if reply.Error != "" {
		ctx = append(ctx, "error", reply.Error)
		s.logger.Warn("Command failed", ctx...)
		s.logFile.Warn("command failed", ctx...)
		return
	}

	s.logger.Debug("Command applied", ctx...)
	s.logFile.Info("command applied", ctx...)
}

func (s *Server) sendReply(message amqp.Delivery, reply types.Reply) {
	if message.ReplyTo == "" {
		return
	}

	body, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("Cannot marshal reply", "error", err)
		return
	}

	err = broker.Publish(s.channel, message.ReplyTo, amqp.Publishing{
		CorrelationId: message.CorrelationId,
		MessageId:     reply.ID,
		Body:          body,
	})
	if err != nil {
		s.logger.Error("Error while sending reply", "error", err)
	}
}
