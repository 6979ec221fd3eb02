// Package telegram adapts a gogram MTProto user session to the relay's
// Session interface and maps transport errors onto the relay error taxonomy.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	tg "github.com/amarnathcjd/gogram/telegram"
	"github.com/sirupsen/logrus"

	"telegram-relay-go/internal/relay"
	"telegram-relay-go/internal/rules"
)

// destinationInvalidMarkers are the RPC error fragments Telegram returns when
// a chat id does not resolve under the encoding it was sent with. These are
// the only failures worth retrying with the alternate encoding.
var destinationInvalidMarkers = []string{
	"PEER_ID_INVALID",
	"CHANNEL_INVALID",
	"CHANNEL_PRIVATE",
	"CHAT_ID_INVALID",
	"USER_ID_INVALID",
	"MSG_ID_INVALID",
	"no peer found",
}

// mediaInvalidMarkers cover payload rejections where the message text can
// still be delivered on its own.
var mediaInvalidMarkers = []string{
	"MEDIA_INVALID",
	"MEDIA_EMPTY",
	"WEBPAGE_MEDIA_EMPTY",
	"FILE_REFERENCE",
	"FILE_PARTS_INVALID",
	"PHOTO_INVALID",
	"PHOTO_EXT_INVALID",
	"DOCUMENT_INVALID",
}

// UserSession is a connected gogram client for one account session file.
type UserSession struct {
	client *tg.Client
}

// Connect opens the session file and establishes the MTProto connection. The
// session must already be authorized; workers never run interactive login.
func Connect(apiID int32, apiHash, sessionPath string) (*UserSession, error) {
	client, err := tg.NewClient(tg.ClientConfig{
		AppID:   apiID,
		AppHash: apiHash,
		Session: sessionPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}
	if _, err := client.Conn(); err != nil {
		return nil, fmt.Errorf("failed to connect telegram session %s: %w", sessionPath, err)
	}
	return &UserSession{client: client}, nil
}

// SendText implements relay.Session.
func (s *UserSession) SendText(ctx context.Context, destID int64, text string, replyTo int) (relay.SentMessage, error) {
	opts := &tg.SendOptions{}
	if replyTo != 0 {
		opts.ReplyID = int32(replyTo)
	}
	sent, err := s.client.SendMessage(destID, text, opts)
	if err != nil {
		return relay.SentMessage{}, classifySendError(err)
	}
	return relay.SentMessage{ID: int(sent.ID)}, nil
}

// SendMedia implements relay.Session. A MediaRef with an asset path uploads
// the local file; a MediaRef with the original payload reuses the incoming
// media object without re-uploading.
func (s *UserSession) SendMedia(ctx context.Context, destID int64, media relay.MediaRef, caption string, replyTo int) (relay.SentMessage, error) {
	var payload any
	switch {
	case media.AssetPath != "":
		if _, err := os.Stat(media.AssetPath); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return relay.SentMessage{}, fmt.Errorf("%w: %s", relay.ErrAssetNotFound, media.AssetPath)
			}
			return relay.SentMessage{}, fmt.Errorf("%w: %s: %v", relay.ErrAssetNotFound, media.AssetPath, err)
		}
		payload = media.AssetPath
	case media.Original != nil:
		payload = media.Original
	default:
		return relay.SentMessage{}, relay.ErrMediaInvalid
	}

	opts := &tg.MediaOptions{Caption: caption}
	if replyTo != 0 {
		opts.ReplyID = int32(replyTo)
	}
	sent, err := s.client.SendMedia(destID, payload, opts)
	if err != nil {
		return relay.SentMessage{}, classifySendError(err)
	}
	return relay.SentMessage{ID: int(sent.ID)}, nil
}

// ChatTitle implements relay.Session, best-effort.
func (s *UserSession) ChatTitle(ctx context.Context, chatID int64) (string, error) {
	if channel, err := s.client.GetChannel(chatID); err == nil && channel != nil {
		return channel.Title, nil
	}
	chat, err := s.client.GetChat(chatID)
	if err != nil {
		return "", err
	}
	return chat.Title, nil
}

// ErrConnectionLost reports that the transport dropped and did not recover.
// It ends the worker process so the supervisor's registry prune can respawn.
var ErrConnectionLost = errors.New("telegram connection lost")

// connectionProbeInterval is how often Listen checks transport liveness.
const connectionProbeInterval = 30 * time.Second

// Listen implements relay.Session: it registers a new-message handler,
// converts each update to a relay.Event, and blocks until the context is
// cancelled, the handler returns an error, or the connection is lost.
func (s *UserSession) Listen(ctx context.Context, onEvent func(context.Context, relay.Event) error) error {
	errCh := make(chan error, 1)

	s.client.AddMessageHandler(tg.OnNewMessage, func(m *tg.NewMessage) error {
		ev := eventFromMessage(m)
		if err := onEvent(ctx, ev); err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
		return nil
	})

	logrus.Info("Listening for incoming messages")
	err := waitForStop(ctx, errCh, s.client.IsConnected, connectionProbeInterval)
	s.client.Stop()
	return err
}

// waitForStop blocks until the handler fails, ctx is cancelled, or two
// consecutive liveness probes report the transport down. A single failed
// probe is tolerated because the client may be mid-reconnect.
func waitForStop(ctx context.Context, errCh <-chan error, connected func() bool, probeEvery time.Duration) error {
	ticker := time.NewTicker(probeEvery)
	defer ticker.Stop()
	down := 0
	for {
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if connected() {
				down = 0
				continue
			}
			down++
			if down >= 2 {
				return ErrConnectionLost
			}
			logrus.Warn("Transport connection down, waiting for reconnect")
		}
	}
}

func eventFromMessage(m *tg.NewMessage) relay.Event {
	ev := relay.Event{
		ChatID:    m.ChatID(),
		MessageID: int(m.ID),
		Text:      m.Text(),
		Date:      time.Unix(int64(m.Message.Date), 0).UTC(),
	}
	if m.Channel != nil {
		ev.ChatTitle = m.Channel.Title
	} else if m.Chat != nil {
		ev.ChatTitle = m.Chat.Title
	}
	if hdr, ok := m.Message.ReplyTo.(*tg.MessageReplyHeaderObj); ok && hdr != nil {
		ev.ReplyToID = int(hdr.ReplyToMsgID)
	}
	if m.IsMedia() {
		ev.MediaPayload = m.Media()
		ev.Media = classifyMedia(m.Media())
	}
	return ev
}

// classifyMedia maps the raw MTProto media object onto the flag set the rule
// engine evaluates.
func classifyMedia(media tg.MessageMedia) rules.Media {
	out := rules.Media{Present: true}
	switch typed := media.(type) {
	case *tg.MessageMediaWebPage:
		out.WebPreview = true
	case *tg.MessageMediaPhoto:
		out.Photo = true
	case *tg.MessageMediaDocument:
		doc, ok := typed.Document.(*tg.DocumentObj)
		if !ok {
			return out
		}
		for _, attr := range doc.Attributes {
			switch a := attr.(type) {
			case *tg.DocumentAttributeAudio:
				if a.Voice {
					out.Voice = true
				}
			case *tg.DocumentAttributeVideo:
				out.Video = true
			}
		}
	}
	return out
}

// classifySendError translates a transport failure into the relay taxonomy.
// Anything unrecognized passes through untouched and is fatal upstream.
func classifySendError(err error) error {
	msg := strings.ToUpper(err.Error())
	for _, marker := range destinationInvalidMarkers {
		if strings.Contains(msg, strings.ToUpper(marker)) {
			return fmt.Errorf("%w: %v", relay.ErrDestinationInvalid, err)
		}
	}
	for _, marker := range mediaInvalidMarkers {
		if strings.Contains(msg, strings.ToUpper(marker)) {
			return fmt.Errorf("%w: %v", relay.ErrMediaInvalid, err)
		}
	}
	return err
}
