package channels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	qrterminal "github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"

	"github.com/local/wa-relay/internal/chat"
	"github.com/local/wa-relay/internal/reply"
)

// zerologAdapter bridges whatsmeow's logging interface to the package's
// structured logger.
type zerologAdapter struct {
	l     zerolog.Logger
	quiet bool
}

func (a zerologAdapter) Errorf(msg string, args ...interface{}) { a.l.Error().Msgf(msg, args...) }
func (a zerologAdapter) Warnf(msg string, args ...interface{})  { a.l.Warn().Msgf(msg, args...) }
func (a zerologAdapter) Infof(msg string, args ...interface{}) {
	if a.quiet {
		return
	}
	a.l.Info().Msgf(msg, args...)
}
func (a zerologAdapter) Debugf(msg string, args ...interface{}) {}
func (a zerologAdapter) Sub(module string) waLog.Logger {
	return zerologAdapter{l: a.l.With().Str("module", module).Logger(), quiet: a.quiet}
}

// whatsAppSender is the subset of *whatsmeow.Client the client needs,
// narrowed to an interface so tests can substitute a mock.
type whatsAppSender interface {
	SendText(ctx context.Context, to types.JID, text string) error
	SendChatPresence(ctx context.Context, chat types.JID, state types.ChatPresence, media types.ChatPresenceMedia) error
	MarkRead(ctx context.Context, ids []types.MessageID, timestamp time.Time, chat, sender types.JID) error
	SendPresence(ctx context.Context, state types.Presence) error
}

// whatsmeowSender adapts *whatsmeow.Client to whatsAppSender.
type whatsmeowSender struct {
	client *whatsmeow.Client
}

func (w *whatsmeowSender) SendText(ctx context.Context, to types.JID, text string) error {
	_, err := w.client.SendMessage(ctx, to, &waProto.Message{Conversation: &text})
	return err
}

func (w *whatsmeowSender) SendChatPresence(ctx context.Context, chat types.JID, state types.ChatPresence, media types.ChatPresenceMedia) error {
	return w.client.SendChatPresence(ctx, chat, state, media)
}

func (w *whatsmeowSender) MarkRead(ctx context.Context, ids []types.MessageID, timestamp time.Time, chat, sender types.JID) error {
	return w.client.MarkRead(ctx, ids, timestamp, chat, sender)
}

func (w *whatsmeowSender) SendPresence(ctx context.Context, state types.Presence) error {
	return w.client.SendPresence(ctx, state)
}

// StartWhatsApp starts a WhatsApp bot using the whatsmeow library. dbPath is
// the path to the SQLite database holding session data. ownLID is derived
// from the authenticated device so self-chat messages (IsFromMe routed back
// to the owner's own number or LID) can still be treated as inbound.
// allowFrom restricts which senders may message the bot; nil allows all.
func StartWhatsApp(ctx context.Context, hub *chat.Hub, dbPath string, allowFrom []string) error {
	if dbPath == "" {
		return fmt.Errorf("whatsapp database path not provided")
	}

	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0700); err != nil {
		return fmt.Errorf("failed to create whatsapp db directory: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_foreign_keys=on", zerologAdapter{l: log.Logger})
	if err != nil {
		return fmt.Errorf("failed to connect to whatsapp database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get whatsapp device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, zerologAdapter{l: log.Logger})

	if client.Store.ID == nil {
		return fmt.Errorf("whatsapp not authenticated: run 'relaybot onboard whatsapp' first")
	}

	ownJID := *client.Store.ID
	ownLID := types.JID{}
	if client.Store.LID.User != "" {
		ownLID = client.Store.LID
	}

	waClient := newWhatsAppClient(ctx, &whatsmeowSender{client: client}, hub, allowFrom, ownJID, ownLID)

	client.AddEventHandler(waClient.handleEvent)
	client.AddEventHandler(func(evt interface{}) {
		if _, ok := evt.(*events.Disconnected); ok {
			go waClient.reconnect(client)
		}
	})

	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to whatsapp: %w", err)
	}

	log.Info().Str("user", client.Store.ID.User).Msg("whatsapp: connected")

	go waClient.runOutbound()

	go func() {
		<-ctx.Done()
		log.Info().Msg("whatsapp: shutting down")
		waClient.stopAllTyping()
		client.Disconnect()
	}()

	return nil
}

// SetupWhatsApp displays a QR code for WhatsApp authentication. Run once to
// authenticate the device before starting the bot.
func SetupWhatsApp(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("whatsapp database path not provided")
	}

	ctx := context.Background()

	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0700); err != nil {
		return fmt.Errorf("failed to create whatsapp db directory: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_foreign_keys=on", zerologAdapter{l: log.Logger, quiet: true})
	if err != nil {
		return fmt.Errorf("failed to connect to whatsapp database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get whatsapp device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, zerologAdapter{l: log.Logger, quiet: true})

	if client.Store.ID != nil {
		fmt.Printf("Already authenticated as %s\n", client.Store.ID.User)
		fmt.Println("To re-authenticate, delete the database file and run setup again.")
		return nil
	}

	connected := make(chan struct{}, 1)
	client.AddEventHandler(func(evt interface{}) {
		if _, ok := evt.(*events.Connected); ok {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})

	qrChan, _ := client.GetQRChannel(context.Background())

	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to whatsapp: %w", err)
	}
	defer client.Disconnect()

	fmt.Println("Scan the QR code below with WhatsApp on your phone:")
	fmt.Println("(Open WhatsApp > Settings > Linked Devices > Link a Device)")
	fmt.Println()

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			fmt.Println()
		case "success":
			fmt.Println("Pairing successful, finishing setup...")
		case "timeout":
			return fmt.Errorf("QR code timed out, please try again")
		}
	}

	select {
	case <-connected:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out waiting for connection after pairing")
	}

	fmt.Println("Syncing with phone...")
	time.Sleep(15 * time.Second)

	fmt.Println("Successfully authenticated!")
	if client.Store.ID != nil {
		fmt.Printf("Logged in as: %s\n", client.Store.ID.User)
	}
	return nil
}

// whatsappClient bridges inbound/outbound WhatsApp traffic to the hub.
// ownJID/ownLID identify the authenticated account so that a self-sent
// message (texting your own number, "Notes to Self") can be told apart
// from an echo of a message the bot itself sent to someone else.
type whatsappClient struct {
	sender     whatsAppSender
	hub        *chat.Hub
	outCh      <-chan chat.Outbound
	allowed    map[string]struct{}
	ownJID     types.JID
	ownLID     types.JID
	ctx        context.Context
	typingMu   sync.Mutex
	typingStop map[string]chan struct{}
}

func newWhatsAppClient(ctx context.Context, sender whatsAppSender, hub *chat.Hub, allowFrom []string, ownJID, ownLID types.JID) *whatsappClient {
	allowed := make(map[string]struct{}, len(allowFrom))
	for _, num := range allowFrom {
		allowed[num] = struct{}{}
	}
	return &whatsappClient{
		sender:     sender,
		hub:        hub,
		outCh:      hub.Subscribe("whatsapp"),
		allowed:    allowed,
		ownJID:     ownJID,
		ownLID:     ownLID,
		ctx:        ctx,
		typingStop: make(map[string]chan struct{}),
	}
}

// isSelfChat reports whether chat identifies the bot's own account —
// either its phone-number JID or its LID — meaning an IsFromMe message in
// it is the owner texting themselves, not an echo of a sent reply.
func (c *whatsappClient) isSelfChat(chat types.JID) bool {
	if c.ownJID.User == "" && c.ownLID.User == "" {
		return false
	}
	return chat.User != "" && (chat.User == c.ownJID.User || chat.User == c.ownLID.User)
}

func (c *whatsappClient) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected, *events.PushNameSetting:
		if err := c.sender.SendPresence(c.ctx, types.PresenceAvailable); err != nil {
			log.Error().Err(err).Msg("whatsapp: failed to send available presence")
		}
	case *events.Message:
		c.handleMessage(v)
	}
}

// extractMessageText pulls the user-facing text out of a whatsmeow message
// proto, covering the message kinds surfaced to users.
func extractMessageText(msg *waProto.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.Conversation != nil:
		return *msg.Conversation
	case msg.ExtendedTextMessage != nil && msg.ExtendedTextMessage.Text != nil:
		return *msg.ExtendedTextMessage.Text
	case msg.ImageMessage != nil:
		content := ""
		if msg.ImageMessage.Caption != nil {
			content = *msg.ImageMessage.Caption
		}
		return content + "\n[Image received - images not yet supported]"
	case msg.DocumentMessage != nil:
		content := ""
		if msg.DocumentMessage.Caption != nil {
			content = *msg.DocumentMessage.Caption
		}
		if msg.DocumentMessage.FileName != nil {
			content += fmt.Sprintf("\n[Document: %s - documents not yet supported]", *msg.DocumentMessage.FileName)
		}
		return content
	default:
		return ""
	}
}

func (c *whatsappClient) handleMessage(msg *events.Message) {
	if msg.Info.IsFromMe && !c.isSelfChat(msg.Info.Chat) {
		return
	}
	if msg.Info.IsGroup {
		return
	}

	senderID := msg.Info.Sender.User

	if !msg.Info.IsFromMe && len(c.allowed) > 0 {
		if _, ok := c.allowed[senderID]; !ok {
			log.Debug().Str("sender", senderID).Msg("whatsapp: dropped message from unauthorized user")
			return
		}
	}

	_ = c.sender.MarkRead(c.ctx, []types.MessageID{msg.Info.ID}, msg.Info.Timestamp, msg.Info.Chat, msg.Info.Sender)

	content := strings.TrimSpace(extractMessageText(msg.Message))
	if content == "" {
		return
	}

	chatID := msg.Info.Chat.String()
	log.Debug().Str("sender", senderID).Str("chat", chatID).Msg("whatsapp: received message")

	c.startTyping(msg.Info.Chat)

	c.hub.In <- chat.Inbound{
		Channel:   "whatsapp",
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Timestamp: msg.Info.Timestamp,
		Metadata: map[string]string{
			"message_id": string(msg.Info.ID),
			"is_group":   fmt.Sprintf("%v", msg.Info.IsGroup),
		},
	}
}

// runOutbound reads replies from the hub's whatsapp subscription and sends them.
func (c *whatsappClient) runOutbound() {
	for {
		select {
		case <-c.ctx.Done():
			log.Info().Msg("whatsapp: stopping outbound sender")
			return
		case out := <-c.outCh:
			recipient, err := types.ParseJID(out.ChatID)
			if err != nil {
				log.Error().Err(err).Str("chatID", out.ChatID).Msg("whatsapp: invalid chat ID")
				continue
			}

			c.stopTyping(out.ChatID)

			for i, chunk := range reply.Chunk(out.Content, 4096) {
				if err := c.sender.SendText(c.ctx, recipient, chunk); err != nil {
					log.Error().Err(err).Int("chunk", i+1).Msg("whatsapp: send error")
				}
			}
		}
	}
}

// reconnect drives the whatsmeow client back to a connected state with
// exponential backoff after an unexpected disconnect.
func (c *whatsappClient) reconnect(client *whatsmeow.Client) {
	_, err := backoff.Retry(c.ctx, func() (struct{}, error) {
		if client.IsConnected() {
			return struct{}{}, nil
		}
		if err := client.Connect(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		log.Error().Err(err).Msg("whatsapp: giving up reconnect")
	}
}

// startTyping begins (or resets) a continuous "composing" presence for a
// chat. It stops automatically after 5 minutes or when stopTyping /
// stopAllTyping is called.
func (c *whatsappClient) startTyping(jid types.JID) {
	key := jid.String()
	c.typingMu.Lock()
	if stop, ok := c.typingStop[key]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	c.typingStop[key] = stop
	c.typingMu.Unlock()

	go func() {
		_ = c.sender.SendChatPresence(c.ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)

		ticker := time.NewTicker(8 * time.Second)
		defer ticker.Stop()
		timeout := time.NewTimer(5 * time.Minute)
		defer timeout.Stop()

		for {
			select {
			case <-stop:
				_ = c.sender.SendChatPresence(c.ctx, jid, types.ChatPresencePaused, types.ChatPresenceMediaText)
				return
			case <-timeout.C:
				return
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				_ = c.sender.SendChatPresence(c.ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
			}
		}
	}()
}

// stopTyping cancels the typing indicator for the given chat.
func (c *whatsappClient) stopTyping(chatID string) {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if stop, ok := c.typingStop[chatID]; ok {
		close(stop)
		delete(c.typingStop, chatID)
	}
}

// stopAllTyping cancels all active typing indicators.
func (c *whatsappClient) stopAllTyping() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	for _, stop := range c.typingStop {
		close(stop)
	}
	c.typingStop = make(map[string]chan struct{})
}
