package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/local/wa-relay/internal/channels"
	"github.com/local/wa-relay/internal/chat"
	"github.com/local/wa-relay/internal/config"
	"github.com/local/wa-relay/internal/reply"
)

const version = "0.1.0"

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relaybot",
		Short: "relaybot — a WhatsApp auto-reply relay",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relaybot v%s\n", version)
		},
	})

	onboardCmd := &cobra.Command{
		Use:   "onboard",
		Short: "Write a default config and state directory",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath, statePath, err := config.Onboard()
			if err != nil {
				fmt.Fprintf(os.Stderr, "onboard failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Wrote config to %s\nInitialized state dir at %s\n", cfgPath, statePath)
		},
	}

	onboardCmd.AddCommand(&cobra.Command{
		Use:   "whatsapp",
		Short: "Authenticate WhatsApp via QR code",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath, _, _ := config.ResolveDefaultPaths()
			cfgFlag, _ := cmd.Flags().GetString("config")
			if cfgFlag != "" {
				cfgPath = cfgFlag
			}
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
				os.Exit(1)
			}
			dbPath := cfg.Channels.WhatsApp.DBPath
			if dbPath == "" {
				dbPath = "~/.wa-relay/whatsapp.db"
			}
			if err := channels.SetupWhatsApp(expandHome(dbPath)); err != nil {
				fmt.Fprintf(os.Stderr, "whatsapp setup failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("\nWhatsApp linked. Enable channels.whatsapp.enabled in your config and run 'relaybot gateway'.")
		},
	})
	onboardCmd.PersistentFlags().StringP("config", "c", "", "path to config.json (default: ~/.wa-relay/config.json)")
	rootCmd.AddCommand(onboardCmd)

	var cfgFlag string

	gatewayCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the relay: WhatsApp front door, reply engine, heartbeat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(cfgFlag)
		},
	}
	gatewayCmd.Flags().StringVarP(&cfgFlag, "config", "c", "", "path to config.json (default: ~/.wa-relay/config.json)")
	rootCmd.AddCommand(gatewayCmd)

	replyCmd := &cobra.Command{
		Use:   "reply",
		Short: "Run a single message through the reply engine for debugging",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			body, _ := cmd.Flags().GetString("body")
			if body == "" {
				return fmt.Errorf("-b/--body is required")
			}
			return runReplyOnce(cfgFlag, from, body)
		},
	}
	replyCmd.Flags().StringVarP(&cfgFlag, "config", "c", "", "path to config.json (default: ~/.wa-relay/config.json)")
	replyCmd.Flags().StringP("from", "f", "+10000000000", "sender identity to simulate")
	replyCmd.Flags().StringP("body", "b", "", "message body to run through the engine")
	rootCmd.AddCommand(replyCmd)

	return rootCmd
}

func loadConfigOrDefault(cfgFlag string) (config.Config, string, error) {
	cfgPath := cfgFlag
	if cfgPath == "" {
		var err error
		cfgPath, _, err = config.ResolveDefaultPaths()
		if err != nil {
			return config.Config{}, "", err
		}
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return config.Config{}, cfgPath, fmt.Errorf("config invalid, run 'relaybot onboard' first: %w", err)
	}
	return cfg, cfgPath, nil
}

func buildEngine(cfg config.Config, statePath string, logger zerolog.Logger) (*reply.Engine, *reply.Store, error) {
	storePath := cfg.Inbound.Reply.Session.StorePath
	if storePath == "" {
		storePath = filepath.Join(statePath, "sessions.json")
	}
	store, err := reply.NewStore(expandHome(storePath))
	if err != nil {
		return nil, nil, fmt.Errorf("opening session store: %w", err)
	}
	queue := reply.NewQueue()
	registry := reply.NewRegistry()
	engine := reply.NewEngine(cfg.ToEngineConfig(), store, queue, registry, logger)
	return engine, store, nil
}

func runGateway(cfgFlag string) error {
	logger := newLogger()

	cfg, cfgPath, err := loadConfigOrDefault(cfgFlag)
	if err != nil {
		return err
	}
	statePath := filepath.Dir(cfgPath)

	engine, store, err := buildEngine(cfg, statePath, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := chat.NewHub(200)

	// The receive loop only dispatches: each inbound message runs on its own
	// task so a slow transcription or session-store write for one sender
	// never delays another sender's turn before it reaches the command
	// queue, which is the system's sole serialization point.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case in := <-hub.In:
				go handleInbound(ctx, engine, hub, logger, in)
			}
		}
	}()

	if cfg.Channels.WhatsApp.Enabled {
		dbPath := expandHome(cfg.Channels.WhatsApp.DBPath)
		if err := channels.StartWhatsApp(ctx, hub, dbPath, cfg.Channels.WhatsApp.AllowFrom); err != nil {
			logger.Error().Err(err).Msg("failed to start whatsapp")
		}
	}

	hub.StartRouter(ctx)

	if cfg.Inbound.Reply.HeartbeatMinutes > 0 {
		dispatch := func(key string, payloads []reply.ReplyPayload) {
			chatID := key + "@s.whatsapp.net"
			for _, p := range payloads {
				hub.Out <- chat.Outbound{Channel: "whatsapp", ChatID: chatID, Content: payloadText(p)}
			}
		}
		sched := reply.NewHeartbeatScheduler(engine, store, cfg.Inbound.Reply.HeartbeatMinutes, cfg.Inbound.Reply.Session.HeartbeatIdleMinutes, dispatch, logger)
		go sched.Run(ctx)
	}

	logger.Info().Msg("relaybot gateway running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down gateway")
	cancel()
	return nil
}

func runReplyOnce(cfgFlag, from, body string) error {
	logger := newLogger()
	cfg, cfgPath, err := loadConfigOrDefault(cfgFlag)
	if err != nil {
		return err
	}
	statePath := filepath.Dir(cfgPath)

	engine, _, err := buildEngine(cfg, statePath, logger)
	if err != nil {
		return err
	}

	payloads, _, err := engine.Reply(context.Background(), reply.Message{
		From:       from,
		Body:       body,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	for _, p := range payloads {
		fmt.Println(payloadText(p))
	}
	return nil
}

// handleInbound runs one inbound message through the reply engine and
// pushes its payloads back out to the originating channel/chat. Called as
// its own goroutine per message by runGateway's receive loop.
func handleInbound(ctx context.Context, engine *reply.Engine, hub *chat.Hub, logger zerolog.Logger, in chat.Inbound) {
	msg := reply.Message{
		From:       in.SenderID,
		To:         in.Channel,
		Body:       in.Content,
		MessageID:  in.Metadata["message_id"],
		ReceivedAt: in.Timestamp,
	}
	payloads, meta, err := engine.Reply(ctx, msg)
	if err != nil {
		logger.Error().Err(err).Str("sender", in.SenderID).Msg("reply engine error")
		return
	}
	for _, p := range payloads {
		hub.Out <- chat.Outbound{Channel: in.Channel, ChatID: in.ChatID, Content: payloadText(p)}
	}
	if meta.DurationMs > 0 {
		logger.Debug().Str("sender", in.SenderID).Int64("duration_ms", meta.DurationMs).Msg("reply turn complete")
	}
}

// payloadText renders a ReplyPayload as a single string for transports
// (like the hub's Outbound) that carry only text, appending any media
// references inline.
func payloadText(p reply.ReplyPayload) string {
	text := p.Text
	for _, u := range p.MediaURLs {
		text += "\n" + u
	}
	return text
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
