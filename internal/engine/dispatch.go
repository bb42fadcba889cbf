package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/emberchat/ember/internal/bus"
	"github.com/emberchat/ember/internal/transport"
)

// HandleEvent is the single inbound entry point. The socket's read loop
// calls it; the event is routed on the engine loop.
func (e *Engine) HandleEvent(evt transport.Event) {
	e.post(func() { e.dispatch(evt) })
}

func (e *Engine) dispatch(evt transport.Event) {
	switch ev := evt.(type) {
	case transport.OnlineUsers:
		for _, id := range ev.UserIDs {
			if id == e.userID {
				continue
			}
			e.applyPresence(id, true)
		}
	case transport.UserStatus:
		e.applyPresence(ev.UserID, ev.IsOnline)
	case transport.ProfileUpdated:
		if e.chats.setUsername(ev.UserID, ev.Username) {
			for _, c := range e.chats.snapshot() {
				if c.Peer.ID == ev.UserID {
					e.publish(bus.KindChatUpdated, c.ID)
				}
			}
		}
	case transport.Typing:
		// Only signals addressed to us by the other party count;
		// self-typing echoes are ignored.
		if ev.ReceiverID != e.userID || ev.SenderID == e.userID {
			return
		}
		e.typing.set(ev.ChatID, ev.IsTyping)
	case transport.NewMessage:
		e.handleNewMessage(ev.Message)
	}
}

// applyPresence updates the tracker and propagates the flag into every
// chat summary whose other participant matches.
func (e *Engine) applyPresence(userID string, online bool) {
	changed := e.presence.apply(userID, online)
	lastSeen := e.presence.lastSeenAt(userID)
	e.chats.setPresence(userID, online, lastSeen)
	if changed {
		e.publish(bus.KindPresenceChanged, PresenceChange{
			UserID:   userID,
			Online:   online,
			LastSeen: lastSeen,
		})
	}
}

// handleNewMessage applies a confirmed inbound message: addressed-to-us
// only, cutoff-checked, deduplicated by id, scheduled for expiry, bumped
// into the chat list, and counted as unread unless its chat is open.
func (e *Engine) handleNewMessage(wm transport.WireMessage) {
	if wm.ReceiverID != e.userID {
		return
	}
	if e.cutoffs.hides(wm.ChatID, wm.CreatedAt) {
		// Created at or before the local delete; stays hidden.
		return
	}

	m := Message{
		ID:         wm.ID,
		ChatID:     wm.ChatID,
		SenderID:   wm.SenderID,
		ReceiverID: wm.ReceiverID,
		Body:       wm.Content,
		Kind:       Kind(wm.MessageType),
		FileName:   wm.FileName,
		FileSize:   wm.FileSize,
		CreatedAt:  wm.CreatedAt,
		ExpiresAt:  wm.ExpiresAt,
	}
	if m.ExpiresAt == 0 && wm.Destruct > 0 {
		m.ExpiresAt = m.CreatedAt + int64(wm.Destruct)*1000
	}

	if !e.msgs.appendIfAbsent(m.ChatID, m) {
		e.logger.Debug("duplicate message delivery ignored",
			zap.String("chat", m.ChatID), zap.String("msg", m.ID))
		return
	}
	e.scheduleExpiry(m)
	e.publish(bus.KindMessageAppended, MessageRef{ChatID: m.ChatID, MessageID: m.ID})

	if !e.chats.bump(m.ChatID, previewFor(m), m.CreatedAt) {
		// A message for a chat we have never seen: pull a fresh list.
		go e.refreshChats(context.Background())
	} else {
		e.publish(bus.KindChatBumped, m.ChatID)
	}

	if m.ChatID != e.openChatID {
		count := e.unread.increment(m.ChatID)
		e.chats.setUnread(m.ChatID, count)
		e.publish(bus.KindUnreadChanged, UnreadChange{ChatID: m.ChatID, Count: count})
	}
}
