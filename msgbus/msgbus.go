// Package msgbus is a small in-process publish/subscribe bus used as the
// state and control plane between services. Topics are string paths,
// messages can be retained, and subscriptions accept MQTT-style wildcards:
// "+" matches exactly one token, "#" matches the rest of the path.
package msgbus

import (
	"context"
	"sync"

	"mainboard-go/x/strconvx"
)

// Topic is a path of string tokens, e.g. T("busscan", "control", "scan").
type Topic []string

// T builds a Topic from its tokens.
func T(parts ...string) Topic { return Topic(parts) }

func (t Topic) Equal(o Topic) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

type Subscription struct {
	pattern Topic
	ch      chan *Message
	conn    *Connection
}

func (s *Subscription) Topic() Topic             { return s.pattern }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

type Bus struct {
	mu   sync.Mutex
	root *node
	qLen int
}

// NewBus creates a bus whose subscriptions buffer up to queueLen messages.
// A full subscription drops its oldest message, never the publisher.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

func (b *Bus) NewMessage(t Topic, payload any, retained bool) *Message {
	return &Message{Topic: t, Payload: payload, Retained: retained}
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

// push delivers without ever blocking the publisher. Called under b.mu;
// receivers drain concurrently, so both the drop and the retry are
// non-blocking.
func push(sub *Subscription, msg *Message) {
	select {
	case sub.ch <- msg:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- msg:
	default:
	}
}

// deliver walks the pattern trie with the concrete topic, matching "+" one
// token at a time and "#" against any remainder (including none).
func deliver(n *node, rest Topic, msg *Message) {
	if n == nil {
		return
	}
	if n.children != nil {
		if hash := n.children["#"]; hash != nil {
			for _, sub := range hash.subs {
				push(sub, msg)
			}
		}
	}
	if len(rest) == 0 {
		for _, sub := range n.subs {
			push(sub, msg)
		}
		return
	}
	if n.children == nil {
		return
	}
	deliver(n.children[rest[0]], rest[1:], msg)
	deliver(n.children["+"], rest[1:], msg)
}

// Publish delivers a message to every matching subscription. Retained
// messages are stored (payload nil clears) at their concrete topic.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deliver(b.root, msg.Topic, msg)

	if !msg.Retained {
		return
	}
	n := b.root
	for _, tok := range msg.Topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child := n.children[tok]
		if child == nil {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// collectRetained gathers stored messages matching a subscription pattern.
func collectRetained(n *node, pattern Topic, out *[]*Message) {
	if n == nil {
		return
	}
	if len(pattern) == 0 {
		if n.retained != nil {
			*out = append(*out, n.retained)
		}
		return
	}
	switch tok := pattern[0]; tok {
	case "#":
		walkRetained(n, out)
	case "+":
		for _, child := range n.children {
			collectRetained(child, pattern[1:], out)
		}
	default:
		if n.children != nil {
			collectRetained(n.children[tok], pattern[1:], out)
		}
	}
}

func walkRetained(n *node, out *[]*Message) {
	if n.retained != nil {
		*out = append(*out, n.retained)
	}
	for _, child := range n.children {
		walkRetained(child, out)
	}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.pattern {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child := n.children[tok]
		if child == nil {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	var backlog []*Message
	collectRetained(b.root, sub.pattern, &backlog)
	for _, m := range backlog {
		push(sub, m)
	}
}

func (b *Bus) removeSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, tok := range sub.pattern {
		if n.children == nil {
			return
		}
		child := n.children[tok]
		if child == nil {
			return
		}
		stack = append(stack, n)
		n = child
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	// Prune empty branches.
	for i := len(sub.pattern) - 1; i >= 0; i-- {
		parent := stack[i]
		key := sub.pattern[i]
		child := parent.children[key]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
	seq  int
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(t Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(t, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

func (c *Connection) Subscribe(pattern Topic) *Subscription {
	sub := &Subscription{
		pattern: pattern,
		ch:      make(chan *Message, c.bus.qLen),
		conn:    c,
	}
	c.bus.addSubscription(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.removeSubscription(sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes every subscription owned by this connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.removeSubscription(sub)
		close(sub.ch)
	}
}

// Reply publishes payload to the request's ReplyTo topic. Requests without
// a ReplyTo are fire-and-forget; Reply is then a no-op.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}

// Request stamps the message with a fresh ReplyTo topic, subscribes to it,
// then publishes. The caller owns the returned subscription.
func (c *Connection) Request(req *Message) *Subscription {
	c.mu.Lock()
	c.seq++
	n := c.seq
	c.mu.Unlock()

	req.ReplyTo = Topic{"reply", c.id, strconvx.Itoa(n)}
	sub := c.Subscribe(req.ReplyTo)
	c.bus.Publish(req)
	return sub
}

// RequestWait performs Request and blocks for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, req *Message) (*Message, error) {
	sub := c.Request(req)
	defer c.Unsubscribe(sub)

	select {
	case m := <-sub.ch:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
