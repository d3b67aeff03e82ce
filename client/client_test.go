package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"dlist/broker/brokertest"
	"dlist/config"
	"dlist/types"
)

func commands(t *testing.T, ch *brokertest.Channel) []types.Command {
	t.Helper()

	var cmds []types.Command
	for _, p := range ch.Published() {
		var cmd types.Command
		if err := json.Unmarshal(p.Body, &cmd); err != nil {
			t.Fatal(err)
		}

		cmds = append(cmds, cmd)
	}

	return cmds
}

func testConfig() *config.Config {
	return &config.Config{
		AmqpUrl:           "amqp://localhost/",
		LogLevel:          "crit",
		CommandQueue:      "commands",
		ReplyQueue:        "replies",
		ClientIdleSeconds: 10,
	}
}

func TestClientSend(t *testing.T) {
	t.Run("assigns id", func(t *testing.T) {
		ch := brokertest.NewChannel(0)
		c := NewClient("alice", testConfig(), ch)
		id, err := c.PushBack("foo", 3)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := uuid.Parse(id); err != nil {
			t.Error("invalid id", id, err)
		}

		published := ch.Published()
		if len(published) != 1 {
			t.Fatal("not published")
		}

		p := published[0]
		if p.Key != "commands" || p.ReplyTo != "replies" || p.CorrelationId != id || p.AppId != "alice" {
			t.Error("invalid publishing", p.Key, p.ReplyTo, p.CorrelationId, p.AppId)
		}

		cmds := commands(t, ch)
		if cmds[0].ID != id || cmds[0].List != "foo" || cmds[0].Action != types.PushBack || cmds[0].Value != 3 {
			t.Error("invalid command", cmds[0])
		}
	})

	t.Run("keeps id", func(t *testing.T) {
		ch := brokertest.NewChannel(0)
		c := NewClient("alice", testConfig(), ch)
		id, err := c.Send(&types.Command{ID: "42", Action: types.Size})
		if err != nil {
			t.Fatal(err)
		}

		if id != "42" || ch.Published()[0].CorrelationId != "42" {
			t.Error("id not kept", id)
		}
	})

	t.Run("all actions", func(t *testing.T) {
		ch := brokertest.NewChannel(0)
		c := NewClient("alice", testConfig(), ch)
		c.PushFront("foo", 1)
		c.PushBack("foo", 2)
		c.PopFront("foo")
		c.PopBack("foo")
		c.Clear("foo")
		c.Size("foo")
		c.Empty("foo")
		c.Delete("foo")
		c.Lists()

		expect := []types.ActionType{
			types.PushFront, types.PushBack, types.PopFront, types.PopBack,
			types.Clear, types.Size, types.Empty, types.Delete, types.Lists,
		}

		cmds := commands(t, ch)
		if len(cmds) != len(expect) {
			t.Fatal("invalid number of commands", len(cmds))
		}

		for i := range expect {
			if cmds[i].Action != expect[i] {
				t.Error("invalid action", cmds[i].Action, expect[i])
			}
		}

		if cmds[7].List != "foo" || cmds[8].List != "" {
			t.Error("invalid list names", cmds[7].List, cmds[8].List)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		ch := brokertest.NewChannel(0)
		c := NewClient("alice", testConfig(), ch)
		if _, err := c.Send(&types.Command{Action: "Shuffle"}); !errors.Is(err, types.ErrUnknownAction) {
			t.Error("failed to reject unknown action", err)
		}

		if len(ch.Published()) != 0 {
			t.Error("invalid command published")
		}
	})

	t.Run("publish error", func(t *testing.T) {
		ch := brokertest.NewChannel(0)
		errTest := errors.New("test")
		ch.Err = errTest
		c := NewClient("alice", testConfig(), ch)
		if _, err := c.PopFront("foo"); !errors.Is(err, errTest) {
			t.Error("failed to fail", err)
		}
	})
}

func TestSubscribeToInput(t *testing.T) {
	t.Run("lines", func(t *testing.T) {
		lines, errs := SubscribeToInput(context.Background(), strings.NewReader("foo\n\n  bar  \r\nbaz"))
		var got []string
		for l := range lines {
			got = append(got, l)
		}

		if strings.Join(got, ",") != "foo,bar,baz" {
			t.Error("invalid lines", got)
		}

		select {
		case err := <-errs:
			t.Error(err)
		default:
		}
	})

	t.Run("long line", func(t *testing.T) {
		long := strings.Repeat("x", 1<<17)
		lines, errs := SubscribeToInput(context.Background(), strings.NewReader(long+"\nfoo\n"))
		var got []string
		for l := range lines {
			got = append(got, l)
		}

		if len(got) != 2 || got[0] != long || got[1] != "foo" {
			t.Error("invalid lines", len(got))
		}

		select {
		case err := <-errs:
			t.Error(err)
		default:
		}
	})

	t.Run("cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		lines, _ := SubscribeToInput(ctx, strings.NewReader("foo\nbar\n"))
		cancel()
		for range lines {
		}
	})
}

func TestListenClientActions(t *testing.T) {
	t.Run("forwards commands", func(t *testing.T) {
		ch := brokertest.NewChannel(0)
		input := strings.NewReader(`alice {"list":"foo","action":"PushBack","value":1}
bob {"action":"PopFront"}
alice {"list":"foo","action":"Shuffle"}
malformed
alice {"list":"foo","action":"PopBack"}
`)

		cm := newClientsManager(testConfig(), ch, input)
		if err := cm.ListenClientActions(); err != nil {
			t.Fatal(err)
		}

		if d := ch.Declared(); len(d) != 1 || d[0].Name != "commands" {
			t.Error("command queue not declared", d)
		}

		cmds := commands(t, ch)
		if len(cmds) != 3 {
			t.Fatal("invalid number of commands", len(cmds))
		}

		if cmds[0].Action != types.PushBack || cmds[1].Action != types.PopFront || cmds[2].Action != types.PopBack {
			t.Error("invalid commands", cmds)
		}

		p := ch.Published()
		if p[0].AppId != "alice" || p[1].AppId != "bob" {
			t.Error("invalid client ids")
		}

		if len(cm.clients) != 2 {
			t.Error("invalid number of clients", len(cm.clients))
		}
	})

	t.Run("line over the default scanner limit", func(t *testing.T) {
		ch := brokertest.NewChannel(0)
		long := `alice {"list":"foo","action":"PushBack","value":1,"pad":"` + strings.Repeat("x", 70<<10) + `"}`
		input := strings.NewReader(long + "\n" + `bob {"list":"bar","action":"PushFront","value":2}` + "\n")

		cm := newClientsManager(testConfig(), ch, input)
		if err := cm.ListenClientActions(); err != nil {
			t.Fatal(err)
		}

		cmds := commands(t, ch)
		if len(cmds) != 2 {
			t.Fatal("invalid number of commands", len(cmds))
		}

		if cmds[0].List != "foo" || cmds[1].List != "bar" || cmds[1].Value != 2 {
			t.Error("invalid commands", cmds)
		}
	})
}

func TestRemoveUnusedClients(t *testing.T) {
	cm := newClientsManager(testConfig(), brokertest.NewChannel(0), strings.NewReader(""))
	cm.client("alice")
	cm.client("bob")
	cm.clients["alice"].lastUsed = time.Now().Add(-time.Minute)
	cm.removeUnusedClients()
	if _, ok := cm.clients["alice"]; ok {
		t.Error("idle client not removed")
	}

	if _, ok := cm.clients["bob"]; !ok {
		t.Error("active client removed")
	}
}

func TestListenReplies(t *testing.T) {
	ch := brokertest.NewChannel(4)
	v := 7
	for _, r := range []types.Reply{
		{ID: "1", List: "foo", Action: types.PopFront, Value: &v, Size: 1},
		{ID: "2", List: "foo", Action: types.PopBack, Error: types.ErrEmptyContainer.Error(), Empty: true},
		{ID: "3", Action: types.Lists, Lists: []string{"bar", "foo"}},
	} {
		body, err := json.Marshal(r)
		if err != nil {
			t.Fatal(err)
		}

		ch.Deliveries <- amqp.Delivery{Body: body}
	}

	ch.Deliveries <- amqp.Delivery{Body: []byte("{")}
	close(ch.Deliveries)

	var got []types.Reply
	cm := newClientsManager(testConfig(), ch, strings.NewReader(""))
	if err := cm.ListenReplies(func(r types.Reply) { got = append(got, r) }); err != nil {
		t.Fatal(err)
	}

	if d := ch.Declared(); len(d) != 1 || d[0].Name != "replies" {
		t.Error("reply queue not declared", d)
	}

	if c := ch.Consumed(); len(c) != 1 || c[0] != "replies" {
		t.Error("reply queue not consumed", c)
	}

	if len(got) != 3 {
		t.Fatal("invalid number of replies", len(got))
	}

	if got[0].Value == nil || *got[0].Value != 7 || got[1].Error == "" || len(got[2].Lists) != 2 {
		t.Error("invalid replies", got)
	}
}
