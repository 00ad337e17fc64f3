// bus.go
package bus

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by TryPublish when at least one matching
// subscriber has no room. Nothing is delivered in that case.
var ErrQueueFull = errors.New("bus: subscriber queue full")

const (
	wildOne  = "+"
	wildRest = "#"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Token is a single element in a topic path. It must be comparable; strings
// and integers are the usual choice.
type Token = any

// Topic is a sequence of tokens.
type Topic []Token

// T builds a topic and panics on tokens that cannot be used as map keys.
func T(tokens ...Token) Topic {
	for _, tok := range tokens {
		switch tok.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64:
		default:
			panic("bus: invalid topic token")
		}
	}
	return Topic(tokens)
}

func (t Topic) Len() int       { return len(t) }
func (t Topic) At(i int) Token { return t[i] }

// Append returns a new topic; t is never aliased.
func (t Topic) Append(tokens ...Token) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	return append(out, T(tokens...)...)
}

func (t Topic) String() string {
	var sb strings.Builder
	for i, tok := range t {
		if i > 0 {
			sb.WriteByte('/')
		}
		switch v := tok.(type) {
		case string:
			sb.WriteString(v)
		case int:
			sb.WriteString(strconv.Itoa(v))
		default:
			sb.WriteString("?")
		}
	}
	return sb.String()
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// CanReply reports whether the sender asked for a reply.
func (m *Message) CanReply() bool { return len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie nodes
// -----------------------------------------------------------------------------

type node struct {
	children map[Token]*node
	subs     []*Subscription
}

type retainedNode struct {
	children map[Token]*retainedNode
	msg      *Message
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu       sync.Mutex
	root     *node
	retained *retainedNode
	qLen     int
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{
		root:     &node{},
		retained: &retainedNode{},
		qLen:     queueLen,
	}
}

// NewMessage is a small constructor for messages.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func isWild(tok Token) bool {
	s, ok := tok.(string)
	return ok && (s == wildOne || s == wildRest)
}

// matchLocked collects subscriptions whose pattern matches topic.
func (b *Bus) matchLocked(n *node, topic Topic, i int, out []*Subscription) []*Subscription {
	if h := n.children[wildRest]; h != nil {
		out = append(out, h.subs...)
	}
	if i == len(topic) {
		return append(out, n.subs...)
	}
	tok := topic[i]
	if !isWild(tok) {
		if c := n.children[tok]; c != nil {
			out = b.matchLocked(c, topic, i+1, out)
		}
	}
	if c := n.children[wildOne]; c != nil {
		out = b.matchLocked(c, topic, i+1, out)
	}
	return out
}

// addSubscription inserts a subscription into the trie and replays matching
// retained messages.
func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		if n.children == nil {
			n.children = make(map[Token]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	for _, m := range collectRetained(b.retained, sub.topic, 0, nil) {
		select {
		case sub.ch <- m:
		default:
		}
	}
}

func collectRetained(n *retainedNode, pat Topic, i int, out []*Message) []*Message {
	if i == len(pat) {
		if n.msg != nil {
			out = append(out, n.msg)
		}
		return out
	}
	switch pat[i] {
	case wildRest:
		return collectAll(n, out)
	case wildOne:
		for _, c := range n.children {
			out = collectRetained(c, pat, i+1, out)
		}
		return out
	default:
		if c := n.children[pat[i]]; c != nil {
			out = collectRetained(c, pat, i+1, out)
		}
		return out
	}
}

func collectAll(n *retainedNode, out []*Message) []*Message {
	if n.msg != nil {
		out = append(out, n.msg)
	}
	for _, c := range n.children {
		out = collectAll(c, out)
	}
	return out
}

// storeRetainedLocked stores, or clears on nil payload, the retained message.
func (b *Bus) storeRetainedLocked(msg *Message) {
	n := b.retained
	var path []*retainedNode
	for _, tok := range msg.Topic {
		path = append(path, n)
		if n.children == nil {
			if msg.Payload == nil {
				return
			}
			n.children = make(map[Token]*retainedNode)
		}
		child, ok := n.children[tok]
		if !ok {
			if msg.Payload == nil {
				return
			}
			child = &retainedNode{}
			n.children[tok] = child
		}
		n = child
	}
	if msg.Payload != nil {
		n.msg = msg
		return
	}
	n.msg = nil
	// Prune empty nodes.
	for i := len(msg.Topic) - 1; i >= 0; i-- {
		parent := path[i]
		child := parent.children[msg.Topic[i]]
		if child.msg != nil || len(child.children) > 0 {
			break
		}
		delete(parent.children, msg.Topic[i])
	}
}

// Publish delivers a message to all matching subscribers. A full subscriber
// queue drops its oldest message.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.matchLocked(b.root, msg.Topic, 0, nil) {
		select {
		case sub.ch <- msg:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- msg:
			default:
			}
		}
	}
	if msg.Retained {
		b.storeRetainedLocked(msg)
	}
}

// TryPublish delivers msg to every matching subscriber or to none. It never
// blocks and never drops queued messages.
func (b *Bus) TryPublish(msg *Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.matchLocked(b.root, msg.Topic, 0, nil)
	for _, sub := range subs {
		if len(sub.ch) >= cap(sub.ch) {
			return ErrQueueFull
		}
	}
	// Only publishers fill queues and they all hold b.mu, so room checked
	// above is still there.
	for _, sub := range subs {
		sub.ch <- msg
	}
	if msg.Retained {
		b.storeRetainedLocked(msg)
	}
	return nil
}

// PublishWait retries TryPublish until it succeeds or ctx ends.
func (b *Bus) PublishWait(ctx context.Context, msg *Message) error {
	const pollEvery = time.Millisecond
	var t *time.Timer
	for {
		err := b.TryPublish(msg)
		if err == nil || !errors.Is(err, ErrQueueFull) {
			return err
		}
		if t == nil {
			t = time.NewTimer(pollEvery)
			defer t.Stop()
		} else {
			t.Reset(pollEvery)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// unsubscribe removes a subscription from the trie.
func (b *Bus) unsubscribe(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic := sub.topic
	n := b.root
	var stack []*node
	for _, t := range topic {
		child, ok := n.children[t]
		if !ok {
			return false
		}
		stack = append(stack, n)
		n = child
	}

	found := false
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			found = true
			break
		}
	}

	// Prune empty nodes.
	for i := len(topic) - 1; i >= 0; i-- {
		parent := stack[i]
		child := parent.children[topic[i]]
		if len(child.subs) == 0 && len(child.children) == 0 {
			delete(parent.children, topic[i])
		} else {
			break
		}
	}
	return found
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

// NewConnection creates a new connection bound to this bus. An empty id is
// replaced with a random one.
func (b *Bus) NewConnection(id string) *Connection {
	if id == "" {
		id = uuid.NewString()
	}
	return &Connection{
		bus: b,
		id:  id,
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// TryPublish sends a message via the bus, failing instead of dropping.
func (c *Connection) TryPublish(msg *Message) error { return c.bus.TryPublish(msg) }

// PublishWait blocks until the message is queued or ctx ends.
func (c *Connection) PublishWait(ctx context.Context, msg *Message) error {
	return c.bus.PublishWait(ctx, msg)
}

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	return c.SubscribeN(topic, c.bus.qLen)
}

// SubscribeN is Subscribe with an explicit queue length.
func (c *Connection) SubscribeN(topic Topic, queueLen int) *Subscription {
	if queueLen <= 0 {
		queueLen = c.bus.qLen
	}
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, queueLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes a subscription owned by this connection.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	owned := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			owned = true
			break
		}
	}
	c.mu.Unlock()
	if !owned {
		return
	}
	c.bus.unsubscribe(sub)
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

func newInbox() Topic { return T("_inbox", uuid.NewString()) }

// Request publishes msg with a fresh reply inbox and returns the inbox
// subscription. The caller owns the subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	msg.ReplyTo = newInbox()
	sub := c.SubscribeN(msg.ReplyTo, 1)
	c.Publish(msg)
	return sub
}

// TryRequest is Request with TryPublish semantics. On ErrQueueFull the inbox
// is already released.
func (c *Connection) TryRequest(msg *Message) (*Subscription, error) {
	msg.ReplyTo = newInbox()
	sub := c.SubscribeN(msg.ReplyTo, 1)
	if err := c.TryPublish(msg); err != nil {
		c.Unsubscribe(sub)
		return nil, err
	}
	return sub, nil
}

// RequestWait publishes msg and waits for the first reply.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers req on its ReplyTo topic. It is a no-op when no reply was
// requested.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if !req.CanReply() {
		return
	}
	c.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}
