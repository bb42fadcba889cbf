package engine

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/emberchat/ember/internal/bus"
	"github.com/emberchat/ember/internal/transport"
)

// minDestructSeconds floors the requested self-destruct timer so a zero
// or negative request cannot produce a message that dies instantly.
const minDestructSeconds = 5

// SendMessage runs the outbound pipeline for the open chat: an optimistic
// placeholder appears synchronously, the attachment (if any) uploads in
// the background, then the frame goes out over the socket. The returned
// message is the placeholder. Rejected outright when no chat is open or
// the transport is down — nothing is queued while disconnected.
func (e *Engine) SendMessage(ctx context.Context, body string, kind Kind, destructSecs int, att *Attachment) (Message, error) {
	var (
		placeholder Message
		priorChat   Chat
		hadChat     bool
		peerID      string
		chatID      string
		err         error
	)

	e.call(func() {
		if e.openChatID == "" {
			err = ErrNoChat
			return
		}
		if e.sock == nil || !e.sock.Connected() {
			err = ErrNotConnected
			return
		}
		chatID = e.openChatID

		if destructSecs < minDestructSeconds {
			destructSecs = minDestructSeconds
		}

		if c, ok := e.chats.get(chatID); ok {
			priorChat, hadChat = c, true
			peerID = c.Peer.ID
		}

		now := time.Now().UnixMilli()
		placeholder = Message{
			ID:         strconv.FormatInt(e.nextLocalID(), 10),
			ChatID:     chatID,
			SenderID:   e.userID,
			ReceiverID: peerID,
			Body:       body,
			Kind:       kind,
			CreatedAt:  now,
			ExpiresAt:  now + int64(destructSecs)*1000,
		}
		if att != nil {
			placeholder.FileName = att.Name
			placeholder.FileSize = att.Size
		}

		// Synchronous insert + bump: the send feels instantaneous, and
		// the reorder lands before any network call starts.
		e.msgs.append(chatID, placeholder)
		e.chats.bump(chatID, previewFor(placeholder), now)
		e.publish(bus.KindMessageAppended, MessageRef{ChatID: chatID, MessageID: placeholder.ID})
		e.publish(bus.KindChatBumped, chatID)

		// The placeholder must disappear on schedule even if upload or
		// emission never completes.
		e.scheduleExpiry(placeholder)
	})
	if err != nil {
		return Message{}, err
	}

	go e.completeSend(ctx, placeholder, destructSecs, att, priorChat, hadChat)
	return placeholder, nil
}

// completeSend finishes the pipeline off the loop: upload, reconcile or
// roll back, emit. Results apply even if the chat is no longer open.
func (e *Engine) completeSend(ctx context.Context, placeholder Message, destructSecs int, att *Attachment, priorChat Chat, hadChat bool) {
	frame := transport.NewMessageFrame(transport.MessageFrame{
		ChatID:      placeholder.ChatID,
		SenderID:    placeholder.SenderID,
		ReceiverID:  placeholder.ReceiverID,
		Content:     placeholder.Body,
		MessageType: string(placeholder.Kind),
		Destruct:    destructSecs,
	})

	if att != nil {
		result, err := e.api.Upload(ctx, att.Name, att.Content)
		if err != nil {
			e.logger.Warn("upload failed, rolling back optimistic message",
				zap.String("chat", placeholder.ChatID),
				zap.String("msg", placeholder.ID),
				zap.Error(err))
			e.post(func() { e.rollbackSend(placeholder, priorChat, hadChat) })
			return
		}

		e.post(func() {
			// The placeholder may have expired or its chat been deleted
			// while the upload ran; only a real patch is announced.
			if e.msgs.reconcile(placeholder.ChatID, placeholder.ID, func(m *Message) {
				m.Body = result.URL
				m.FileName = result.OriginalName
				m.FileSize = result.Size
			}) {
				e.publish(bus.KindMessageUpdated, MessageRef{
					ChatID:    placeholder.ChatID,
					MessageID: placeholder.ID,
				})
			}
		})

		frame.Content = result.URL
		frame.FileName = result.OriginalName
		frame.FileSize = result.Size
	}

	// Emission failure is logged but not rolled back: the optimistic
	// message stays until the user notices absence of delivery.
	if err := e.sock.Emit(ctx, frame); err != nil {
		e.logger.Warn("socket emission failed",
			zap.String("chat", placeholder.ChatID),
			zap.String("msg", placeholder.ID),
			zap.Error(err))
	}
}

// rollbackSend removes the placeholder after an upload failure: no socket
// emission happened, no partial state is left behind, and the chat-list
// preview reverts to what it showed before the optimistic bump.
func (e *Engine) rollbackSend(placeholder Message, priorChat Chat, hadChat bool) {
	e.sched.Cancel(expiryKey(placeholder.ChatID, placeholder.ID))
	if _, ok := e.msgs.remove(placeholder.ChatID, placeholder.ID); !ok {
		// Already expired or the chat was deleted meanwhile.
		return
	}
	e.publish(bus.KindMessageDropped, MessageRef{
		ChatID:    placeholder.ChatID,
		MessageID: placeholder.ID,
	})
	if hadChat {
		e.chats.restorePreview(placeholder.ChatID, priorChat)
		e.publish(bus.KindChatUpdated, placeholder.ChatID)
	}
}

// TypingStarted emits a typing signal for the open chat and (re)arms the
// idle debounce that sends the matching stop. Dropped as a no-op when
// disconnected; typing signals are never queued.
func (e *Engine) TypingStarted(ctx context.Context) {
	e.call(func() {
		if e.openChatID == "" {
			return
		}
		if e.sock == nil || !e.sock.Connected() {
			e.logger.Warn("typing signal dropped: transport unavailable")
			return
		}
		chatID := e.openChatID
		e.emitTyping(ctx, chatID, true)
		e.sched.Schedule(typingOutKey(chatID), time.Now().Add(typingIdleWindow), func() {
			e.emitTyping(context.Background(), chatID, false)
		})
	})
}

// TypingStopped cancels the debounce and emits an explicit stop.
func (e *Engine) TypingStopped(ctx context.Context) {
	e.call(func() {
		if e.openChatID == "" {
			return
		}
		e.sched.Cancel(typingOutKey(e.openChatID))
		e.emitTyping(ctx, e.openChatID, false)
	})
}

func (e *Engine) emitTyping(ctx context.Context, chatID string, isTyping bool) {
	peerID := ""
	if c, ok := e.chats.get(chatID); ok {
		peerID = c.Peer.ID
	}
	frame := transport.NewTypingFrame(transport.TypingFrame{
		ChatID:     chatID,
		SenderID:   e.userID,
		ReceiverID: peerID,
		IsTyping:   isTyping,
	})
	go func() {
		if err := e.sock.Emit(ctx, frame); err != nil {
			e.logger.Warn("typing signal dropped", zap.Error(err))
		}
	}()
}

func typingOutKey(chatID string) string {
	return "typing-out:" + chatID
}

// previewFor renders the chat-list preview line for a message.
func previewFor(m Message) string {
	switch m.Kind {
	case KindImage, KindFile:
		if m.FileName != "" {
			return m.FileName
		}
	}
	return m.Body
}
