package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"telegram-relay-go/internal/chatid"
	"telegram-relay-go/internal/metrics"
	"telegram-relay-go/internal/rules"
)

// Handler fans one incoming chat event out to every matched mapping. It is
// attached to a Session's event stream by the worker and keeps no mutable
// state beyond the once-per-chat unknown-source log guard.
type Handler struct {
	userID  uint
	session Session
	index   ReplyIndex
	audit   AuditLog
	metrics *metrics.Metrics

	bySource   map[int64][]*Mapping
	configured []int64

	mu            sync.Mutex
	loggedUnknown map[int64]struct{}
}

// NewHandler indexes the mapping snapshot under both encodings of each source
// chat id, so events match regardless of which form the transport reports.
func NewHandler(userID uint, mappings []Mapping, session Session, index ReplyIndex, audit AuditLog, m *metrics.Metrics) *Handler {
	h := &Handler{
		userID:        userID,
		session:       session,
		index:         index,
		audit:         audit,
		metrics:       m,
		bySource:      make(map[int64][]*Mapping),
		loggedUnknown: make(map[int64]struct{}),
	}
	for i := range mappings {
		mapping := &mappings[i]
		for _, cid := range chatid.Candidates(mapping.SourceChatID) {
			h.bySource[cid] = append(h.bySource[cid], mapping)
		}
	}
	for cid := range h.bySource {
		h.configured = append(h.configured, cid)
	}
	return h
}

// Handle processes one incoming event. Recoverable delivery failures are
// logged and swallowed per mapping; an unexpected delivery error aborts the
// stream and propagates so the worker process exits.
func (h *Handler) Handle(ctx context.Context, ev Event) error {
	h.metrics.EventsSeen.Inc()

	var matched []*Mapping
	for _, cid := range chatid.Candidates(ev.ChatID) {
		matched = append(matched, h.bySource[cid]...)
	}
	if len(matched) == 0 {
		h.logUnknownSource(ev.ChatID)
		return nil
	}

	// Both encodings of a source id index the same mapping; process each
	// mapping at most once per event.
	seen := make(map[uint]struct{}, len(matched))
	for _, mapping := range matched {
		if _, dup := seen[mapping.ID]; dup {
			continue
		}
		seen[mapping.ID] = struct{}{}
		if err := h.relayToMapping(ctx, ev, mapping); err != nil {
			return err
		}
	}
	return nil
}

// logUnknownSource logs once per unknown chat id to keep noisy chats from
// flooding the worker log.
func (h *Handler) logUnknownSource(chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, done := h.loggedUnknown[chatID]; done {
		return
	}
	h.loggedUnknown[chatID] = struct{}{}
	logrus.Infof("Message from chat_id=%d has no mapping (configured: %v). Verify source chat ID matches your mapping.",
		chatID, h.configured)
}

func (h *Handler) relayToMapping(ctx context.Context, ev Event, mapping *Mapping) error {
	mediaType := rules.Classify(ev.Media, ev.Text)

	if !rules.PassesFilters(ev.Text, mediaType, mapping.Filters) {
		h.metrics.FilterRejected.Inc()
		logrus.Debugf("Skipped (filter) msg_id=%d mapping_id=%d", ev.MessageID, mapping.ID)
		return nil
	}
	msgTime := ev.Date.UTC()
	if !rules.PassesSchedule(msgTime, mapping.Schedule) {
		h.metrics.ScheduleRejected.Inc()
		logrus.Debugf("Skipped (outside schedule) msg_id=%d mapping_id=%d", ev.MessageID, mapping.ID)
		return nil
	}

	sourceTitle := ev.ChatTitle
	if sourceTitle == "" {
		sourceTitle = mapping.SourceChatTitle
	}
	templateContext := map[string]string{
		"original_text":     ev.Text,
		"source_chat_id":    strconv.FormatInt(ev.ChatID, 10),
		"dest_chat_id":      strconv.FormatInt(mapping.DestChatID, 10),
		"source_chat_title": sourceTitle,
		"dest_chat_title":   mapping.DestChatTitle,
		"message_id":        strconv.Itoa(ev.MessageID),
		"media_type":        string(mediaType),
		"date_utc":          msgTime.Format(time.RFC3339),
	}
	text := rules.ApplyTransforms(ev.Text, mapping.Transforms, templateContext, mediaType)
	assetPath, hasAsset := rules.PickMediaReplacement(ev.Media, ev.Text, mapping.Transforms)

	replyTo := 0
	if ev.ReplyToID != 0 {
		destMsgID, found, err := h.index.Lookup(ctx, h.userID, ev.ChatID, ev.ReplyToID, mapping.DestChatID)
		if err != nil {
			// No entry and lookup failure behave the same: send as non-reply.
			logrus.Warnf("Reply index lookup failed for mapping_id=%d: %v", mapping.ID, err)
		} else if found {
			replyTo = destMsgID
		}
	}

	sent, err := h.deliver(ctx, ev, mapping, text, assetPath, hasAsset, replyTo)
	if err != nil {
		h.metrics.DeliveryFailures.Inc()
		if errors.Is(err, ErrDestinationInvalid) {
			logrus.Warnf("Failed to send to dest_chat_id=%d (tried %v): %v",
				mapping.DestChatID, chatid.Candidates(mapping.DestChatID), err)
			return nil
		}
		return fmt.Errorf("deliver msg %d via mapping %d: %w", ev.MessageID, mapping.ID, err)
	}

	h.metrics.Relayed.Inc()
	h.recordDelivery(ctx, ev, mapping, sourceTitle, sent)
	return nil
}

// deliver attempts the send against the configured destination id, then its
// alternate encoding. Only ErrDestinationInvalid advances to the next
// candidate; exhausting all candidates returns it so the caller can treat the
// mapping as recoverable-failed.
func (h *Handler) deliver(ctx context.Context, ev Event, mapping *Mapping, text, assetPath string, hasAsset bool, replyTo int) (SentMessage, error) {
	destIDs := chatid.Candidates(mapping.DestChatID)
	var lastErr error
	for i, destID := range destIDs {
		sent, err := h.sendOnce(ctx, ev, mapping, destID, text, assetPath, hasAsset, replyTo)
		if err == nil {
			if i > 0 {
				h.metrics.FallbackUses.Inc()
			}
			return sent, nil
		}
		if errors.Is(err, ErrDestinationInvalid) {
			lastErr = err
			continue
		}
		return SentMessage{}, err
	}
	return SentMessage{}, lastErr
}

// sendOnce performs one delivery attempt against a single destination id,
// degrading from replacement asset to original media to plain text as the
// transport rejects each payload.
func (h *Handler) sendOnce(ctx context.Context, ev Event, mapping *Mapping, destID int64, text, assetPath string, hasAsset bool, replyTo int) (SentMessage, error) {
	incomingDisplayable := ev.Media.Present && !ev.Media.WebPreview &&
		(ev.Media.Voice || ev.Media.Video || ev.Media.Photo)

	if hasAsset || incomingDisplayable {
		ref := MediaRef{Original: ev.MediaPayload}
		if hasAsset {
			ref = MediaRef{AssetPath: assetPath}
		}
		sent, err := h.session.SendMedia(ctx, destID, ref, text, replyTo)
		if err == nil {
			return sent, nil
		}
		switch {
		case errors.Is(err, ErrAssetNotFound) && hasAsset && incomingDisplayable:
			// Replacement file is missing or unreadable; forward the original
			// incoming media instead of dropping the message.
			logrus.Warnf("Replacement media missing/unreadable for mapping_id=%d path=%q: %v",
				mapping.ID, assetPath, err)
			h.metrics.FallbackUses.Inc()
			sent, err = h.session.SendMedia(ctx, destID, MediaRef{Original: ev.MediaPayload}, text, replyTo)
			if err == nil {
				return sent, nil
			}
			if !errors.Is(err, ErrMediaInvalid) {
				return SentMessage{}, err
			}
			// fall through to text-only
		case errors.Is(err, ErrAssetNotFound), errors.Is(err, ErrMediaInvalid):
			// No usable media payload remains; drop the media, keep the text.
			h.metrics.FallbackUses.Inc()
		default:
			return SentMessage{}, err
		}
	}
	return h.session.SendText(ctx, destID, text, replyTo)
}

// recordDelivery persists the reply-index entry and the audit document after
// a successful send. Both are side effects of an already-successful delivery:
// failures downgrade the outcome but are never re-raised.
func (h *Handler) recordDelivery(ctx context.Context, ev Event, mapping *Mapping, sourceTitle string, sent SentMessage) {
	outcome := "ok"

	if err := h.index.Save(ctx, h.userID, ev.ChatID, ev.MessageID, mapping.DestChatID, sent.ID); err != nil {
		outcome = "degraded"
		logrus.Warnf("Failed to save reply index entry for mapping_id=%d: %v", mapping.ID, err)
	}

	destTitle := mapping.DestChatTitle
	if destTitle == "" {
		for _, destID := range chatid.Candidates(mapping.DestChatID) {
			title, err := h.session.ChatTitle(ctx, destID)
			if err != nil {
				continue
			}
			if title != "" {
				destTitle = title
				break
			}
		}
	}

	err := h.audit.Insert(ctx, AuditEntry{
		UserID:          h.userID,
		MappingID:       mapping.ID,
		SourceChatID:    ev.ChatID,
		SourceMsgID:     ev.MessageID,
		DestChatID:      mapping.DestChatID,
		DestMsgID:       sent.ID,
		SourceChatTitle: sourceTitle,
		DestChatTitle:   destTitle,
		Timestamp:       ev.Date,
		Status:          "ok",
	})
	if err != nil {
		outcome = "degraded"
		h.metrics.AuditLogFailures.Inc()
		logrus.Warnf("Failed to write audit log (non-fatal): %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"msg_id":     ev.MessageID,
		"source":     ev.ChatID,
		"dest":       mapping.DestChatID,
		"mapping_id": mapping.ID,
		"outcome":    outcome,
	}).Info("Forwarded message")
}
