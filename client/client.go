package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"
	"github.com/streadway/amqp"

	"dlist/broker"
	"dlist/config"
	"dlist/types"
)

// Client sends list commands to the command queue. Replies are routed to the
// shared reply queue and matched by the command id.
type Client struct {
	ID         string
	channel    broker.Channel
	queue      string
	replyQueue string
}

func NewClient(id string, conf *config.Config, ch broker.Channel) *Client {
	return &Client{
		ID:         id,
		channel:    ch,
		queue:      conf.CommandQueue,
		replyQueue: conf.ReplyQueue,
	}
}

// Send publishes cmd and returns its id. A random id is assigned when cmd has
// none.
func (c *Client) Send(cmd *types.Command) (string, error) {
	if err := cmd.Validate(); err != nil {
		return "", err
	}

	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	req, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}

	err = broker.Publish(c.channel, c.queue, amqp.Publishing{
		CorrelationId: cmd.ID,
		MessageId:     cmd.ID,
		ReplyTo:       c.replyQueue,
		AppId:         c.ID,
		Timestamp:     time.Now(),
		Body:          req,
	})
	if err != nil {
		return "", err
	}

	return cmd.ID, nil
}

func (c *Client) PushFront(list string, value int) (string, error) {
	return c.Send(&types.Command{List: list, Action: types.PushFront, Value: value})
}

func (c *Client) PushBack(list string, value int) (string, error) {
	return c.Send(&types.Command{List: list, Action: types.PushBack, Value: value})
}

func (c *Client) PopFront(list string) (string, error) {
	return c.Send(&types.Command{List: list, Action: types.PopFront})
}

func (c *Client) PopBack(list string) (string, error) {
	return c.Send(&types.Command{List: list, Action: types.PopBack})
}

func (c *Client) Clear(list string) (string, error) {
	return c.Send(&types.Command{List: list, Action: types.Clear})
}

func (c *Client) Size(list string) (string, error) {
	return c.Send(&types.Command{List: list, Action: types.Size})
}

func (c *Client) Empty(list string) (string, error) {
	return c.Send(&types.Command{List: list, Action: types.Empty})
}

// Delete drops the named list on the server.
func (c *Client) Delete(list string) (string, error) {
	return c.Send(&types.Command{List: list, Action: types.Delete})
}

func (c *Client) Lists() (string, error) {
	return c.Send(&types.Command{Action: types.Lists})
}

// ClientsManager reads client commands from its input, one per line in the
// format <clientId> <command json>, and forwards them through one Client per
// client id.
type ClientsManager struct {
	clients   map[string]*ClientUsage
	input     io.Reader
	channel   broker.Channel
	clientCfg *config.Config
	idle      time.Duration
	logger    log15.Logger
	mux       sync.Mutex
	ctx       context.Context
	Cancel    context.CancelFunc
}

type ClientUsage struct {
	client   *Client
	lastUsed time.Time
}

func NewClientsManager(cfg *config.Config, ch broker.Channel) (manager *ClientsManager, err error) {
	var input io.Reader = os.Stdin
	if len(cfg.ClientsInputPath) != 0 {
		input, err = os.Open(cfg.ClientsInputPath)
		if err != nil {
			return nil, err
		}
	}

	return newClientsManager(cfg, ch, input), nil
}

func newClientsManager(cfg *config.Config, ch broker.Channel, input io.Reader) *ClientsManager {
	logger := log15.New("service", "client")
	logger.SetHandler(log15.LvlFilterHandler(cfg.Level(), log15.StdoutHandler))

	idle := time.Duration(cfg.ClientIdleSeconds) * time.Second
	if idle <= 0 {
		idle = config.DefaultClientIdleSeconds * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ClientsManager{
		clients:   make(map[string]*ClientUsage),
		input:     input,
		channel:   ch,
		clientCfg: cfg,
		idle:      idle,
		logger:    logger,
		ctx:       ctx,
		Cancel:    cancel,
	}
}

// ListenClientActions forwards the commands read from the input until the
// input ends or the manager is cancelled.
func (cm *ClientsManager) ListenClientActions() error {
	if err := broker.DeclareQueue(cm.channel, cm.clientCfg.CommandQueue); err != nil {
		return err
	}

	if cm.input == os.Stdin {
		fmt.Println("Write clients tasks here in format <clientId> <command>")
	}

	ticker := time.NewTicker(cm.idle)
	defer ticker.Stop()

	lines, errChan := SubscribeToInput(cm.ctx, cm.input)
	for {
		select {
		case <-cm.ctx.Done():
			return nil
		case <-ticker.C:
			cm.removeUnusedClients()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errChan:
					return err
				default:
					return nil
				}
			}

			if err := cm.processClientAction(line); err != nil {
				cm.logger.Error("Cannot process client action", "line", line, "error", err)
			}
		}
	}
}

// ListenReplies logs the replies arriving on the reply queue and passes them
// to handle, when set, until the manager is cancelled.
func (cm *ClientsManager) ListenReplies(handle func(types.Reply)) error {
	if err := broker.DeclareQueue(cm.channel, cm.clientCfg.ReplyQueue); err != nil {
		return err
	}

	msgs, err := broker.Consume(cm.channel, cm.clientCfg.ReplyQueue, "list-client")
	if err != nil {
		return err
	}

	for {
		select {
		case <-cm.ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}

			var reply types.Reply
			if err := json.Unmarshal(d.Body, &reply); err != nil {
				cm.logger.Error("Cannot unmarshal reply", "error", err)
				continue
			}

			cm.logReply(reply)
			if handle != nil {
				handle(reply)
			}
		}
	}
}

func (cm *ClientsManager) logReply(reply types.Reply) {
	ctx := []interface{}{"id", reply.ID, "list", reply.List, "action", reply.Action, "size", reply.Size}
	if reply.Value != nil {
		ctx = append(ctx, "value", *reply.Value)
	}

	if reply.Action == types.Lists {
		ctx = append(ctx, "lists", strings.Join(reply.Lists, ","))
	}

	if reply.Error != "" {
		cm.logger.Warn("Command failed", append(ctx, "error", reply.Error)...)
		return
	}

	cm.logger.Info("Command done", ctx...)
}

func (cm *ClientsManager) removeUnusedClients() {
	cm.mux.Lock()
	defer cm.mux.Unlock()
	for clientId, clientUsage := range cm.clients {
		if time.Since(clientUsage.lastUsed) > cm.idle {
			delete(cm.clients, clientId)
			cm.logger.Debug("Removed unused client", "client", clientId)
		}
	}
}

func (cm *ClientsManager) processClientAction(inputStr string) error {
	clientId, cmdStr, found := strings.Cut(inputStr, " ")
	if !found || len(clientId) == 0 {
		return fmt.Errorf("wrong input string %q, should be in format <clientId> <command>", inputStr)
	}

	var cmd types.Command
	if err := json.Unmarshal([]byte(cmdStr), &cmd); err != nil {
		return err
	}

	client := cm.client(clientId)
	id, err := client.Send(&cmd)
	if err != nil {
		return err
	}

	cm.logger.Debug("Command sent", "client", clientId, "id", id, "action", cmd.Action)
	return nil
}

func (cm *ClientsManager) client(clientId string) *Client {
	cm.mux.Lock()
	defer cm.mux.Unlock()
	if usage, ok := cm.clients[clientId]; ok {
		usage.lastUsed = time.Now()
		return usage.client
	}

	client := NewClient(clientId, cm.clientCfg, cm.channel)
	cm.clients[clientId] = &ClientUsage{client, time.Now()}
	return client
}
