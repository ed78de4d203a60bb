package net

import "github.com/whalecell/witness/internal/witness"

// Channel adapts a Session to witness.Channel (spec §6's "consumed from
// channel: bundles_length(), bundles(), send()"). Enqueue stages one tick's
// aggregate bundle; Flush hands it to the session's writer goroutine. Kept
// as two steps, rather than one Send call, so a future caller can coalesce
// more than one witness's bundle onto the same wire frame before flushing.
type Channel struct {
	session *Session
	pending [][]byte
}

func NewChannel(s *Session) *Channel {
	return &Channel{session: s}
}

// QueuedBytes reflects the session's real outbound backlog plus whatever
// this tick has staged but not yet flushed.
func (c *Channel) QueuedBytes() int {
	n := c.session.QueuedBytes()
	for _, b := range c.pending {
		n += len(b)
	}
	return n
}

// Enqueue stages a bundle for the next Flush.
func (c *Channel) Enqueue(bundle []byte) {
	if len(bundle) == 0 {
		return
	}
	buf := make([]byte, len(bundle))
	copy(buf, bundle)
	c.pending = append(c.pending, buf)
}

// Flush hands every staged bundle to the session's writer goroutine. A
// closed session surfaces as an error so the caller can log it; the
// witness itself does not retry (spec §5: "Channel send errors are
// surfaced by the channel, not handled here").
func (c *Channel) Flush() error {
	if len(c.pending) == 0 {
		return nil
	}
	if c.session.IsClosed() {
		c.pending = c.pending[:0]
		return errClosedChannel
	}
	for _, b := range c.pending {
		c.session.Send(b)
	}
	c.pending = c.pending[:0]
	return nil
}

// Mailbox adapts a Channel to witness.Mailbox for messages sent outside the
// per-tick update loop (onEnterSpace/onLeaveSpace's one-off frames, spec
// §4.1), which are flushed immediately rather than staged for the next
// tick's aggregate bundle.
type Mailbox struct {
	ch *Channel
}

func NewMailbox(ch *Channel) *Mailbox {
	return &Mailbox{ch: ch}
}

func (m *Mailbox) Channel() witness.Channel { return m.ch }

func (m *Mailbox) PostMail(bundle []byte) {
	m.ch.Enqueue(bundle)
	m.ch.Flush()
}

type channelError string

func (e channelError) Error() string { return string(e) }

const errClosedChannel = channelError("net: channel's session is closed")
