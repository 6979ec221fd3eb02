// Package relay implements the per-event forwarding pipeline: mapping lookup,
// filter and schedule evaluation, content transforms, reply threading,
// delivery with destination fallback, and audit logging.
package relay

import (
	"context"
	"errors"
	"time"

	"telegram-relay-go/internal/rules"
)

// Transport error taxonomy. ErrDestinationInvalid is the only delivery error
// that is retryable (via the alternate chat-id encoding); ErrAssetNotFound
// and ErrMediaInvalid trigger media degradation; everything else is fatal for
// the mapping being processed.
var (
	ErrDestinationInvalid = errors.New("destination chat id invalid")
	ErrMediaInvalid       = errors.New("media payload not acceptable")
	ErrAssetNotFound      = errors.New("replacement media asset not found")
)

// SentMessage identifies a message created in a destination chat.
type SentMessage struct {
	ID int
}

// MediaRef names the media to send: either a local asset path to upload or
// the opaque incoming media payload handed back from the event, exactly one
// of which is set.
type MediaRef struct {
	AssetPath string
	Original  any
}

// Event is one incoming chat message as seen by the relay.
type Event struct {
	ChatID       int64
	MessageID    int
	Text         string
	Media        rules.Media
	MediaPayload any // transport-owned media object, reusable for resends
	ReplyToID    int // source message id this message replies to, 0 if none
	Date         time.Time
	ChatTitle    string
}

// Session is a live connection to one Telegram account. Implementations must
// return ErrDestinationInvalid (wrapped or direct) for the "destination id
// does not exist / wrong encoding" condition, ErrAssetNotFound when a
// MediaRef asset path cannot be read, and ErrMediaInvalid when the transport
// rejects the media payload itself.
type Session interface {
	SendText(ctx context.Context, destID int64, text string, replyTo int) (SentMessage, error)
	SendMedia(ctx context.Context, destID int64, media MediaRef, caption string, replyTo int) (SentMessage, error)
	// ChatTitle resolves a human-readable title for a chat, best-effort.
	ChatTitle(ctx context.Context, chatID int64) (string, error)
	// Listen blocks delivering events to onEvent until the connection drops
	// or ctx is cancelled. An error returned by onEvent stops the stream and
	// propagates.
	Listen(ctx context.Context, onEvent func(context.Context, Event) error) error
}

// ReplyIndex threads replies across relay hops. Absence of an entry is not an
// error; the message is simply sent without reply linkage.
type ReplyIndex interface {
	Lookup(ctx context.Context, userID uint, sourceChatID int64, sourceMsgID int, destChatID int64) (int, bool, error)
	Save(ctx context.Context, userID uint, sourceChatID int64, sourceMsgID int, destChatID int64, destMsgID int) error
}

// AuditEntry is one fire-and-forget audit document per delivered message.
type AuditEntry struct {
	UserID          uint
	MappingID       uint
	SourceChatID    int64
	SourceMsgID     int
	DestChatID      int64
	DestMsgID       int
	SourceChatTitle string
	DestChatTitle   string
	Timestamp       time.Time
	Status          string
}

// AuditLog receives audit entries. Failures are logged by the caller, never
// re-raised.
type AuditLog interface {
	Insert(ctx context.Context, entry AuditEntry) error
}

// Mapping is the immutable snapshot of one forwarding rule a worker operates
// on. Transforms are already ordered by priority then id.
type Mapping struct {
	ID              uint
	UserID          uint
	SourceChatID    int64
	DestChatID      int64
	SourceChatTitle string
	DestChatTitle   string
	Filters         []rules.Filter
	Transforms      []rules.Transform
	Schedule        *rules.Schedule
}
