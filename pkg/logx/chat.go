package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "provisioner/internal/transport"
)

const (
	chatLineMax  = 3500
	chatValueMax = 600
)

// ChatSender is the part of a transport the chat sink needs.
type ChatSender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type chatLine struct {
	to   kit.ChatTarget
	text string
}

// chatSink is a zerolog.LevelWriter that queues formatted lines for a single
// worker. Writes never block: lines over the rate or past a full queue are
// dropped.
type chatSink struct {
	queue chan chatLine

	mu       sync.Mutex
	sender   ChatSender
	target   kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter
	cancel   context.CancelFunc
	done     chan struct{}
}

func newChatSink() *chatSink {
	return &chatSink{queue: make(chan chatLine, 256), minLevel: zerolog.WarnLevel}
}

func (c *chatSink) setSender(s ChatSender) {
	c.mu.Lock()
	c.sender = s
	c.mu.Unlock()
}

func (c *chatSink) setTarget(to kit.ChatTarget) {
	c.mu.Lock()
	c.target = to
	c.mu.Unlock()
}

// configure updates the filter and starts the worker on first use.
func (c *chatSink) configure(minLevel zerolog.Level, perSec int) {
	perSec = max(1, perSec)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minLevel = minLevel
	c.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel, c.done = cancel, make(chan struct{})
	go c.run(ctx, c.done)
}

func (c *chatSink) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *chatSink) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-c.queue:
			c.mu.Lock()
			sender := c.sender
			c.mu.Unlock()
			if sender != nil {
				_, _ = sender.SendText(ctx, l.to, l.text, &kit.SendOptions{DisablePreview: true})
			}
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) { return c.WriteLevel(zerolog.InfoLevel, p) }

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	to, lim, minLevel := c.target, c.limiter, c.minLevel
	c.mu.Unlock()

	if to.ChatID == 0 || lim == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	if text := chatText(p); text != "" {
		select {
		case c.queue <- chatLine{to: to, text: text}:
		default:
		}
	}
	return len(p), nil
}

// chatText renders a JSON log line as "[WARN] message" followed by one
// "- key=value" line per field, keys sorted. Non-JSON input is passed through.
func chatText(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return clip(raw, chatLineMax)
	}

	var b strings.Builder
	if lvl, _ := m[zerolog.LevelFieldName].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(m[k]), chatValueMax))
	}
	return clip(b.String(), chatLineMax)
}

// clip cuts s to at most n runes, marking the cut with "...".
func clip(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	if n < 10 {
		return string(rs[:n])
	}
	return string(rs[:n-3]) + "..."
}
