package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sunbird-adapter/pkg/bus"
	"sunbird-adapter/pkg/channel"
	"sunbird-adapter/pkg/channel/sunbird"
	"sunbird-adapter/pkg/channel/telegram"
	"sunbird-adapter/pkg/config"
	"sunbird-adapter/pkg/gateway"
	"sunbird-adapter/pkg/logger"
	"sunbird-adapter/pkg/tokencache"
	"sunbird-adapter/pkg/transport"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2/clientcredentials"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"gateway"},
	Short:   "Run the channel gateway",
	Long:    "Serves the portal webhook and outbound endpoints, with health and readiness checks, and runs every enabled channel.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		cache, err := newTokenCache(cfg.TokenCache)
		if err != nil {
			log.Error("Failed to initialize token cache", "error", err)
			return
		}
		defer cache.Close()

		channels, err := enabledChannels(cfg, cache, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mb := bus.NewMessageBus()
		defer mb.Close()

		svc, err := gateway.NewService(gateway.Options{
			Gateway: cfg.Gateway,
			Bus:     mb,
			Handler: gateway.NewInboxHandler(cfg.Gateway.InboxURL, nil, log),
			Webhook: channels.webhook,
			Senders: channels.senders,
			Runners: channels.runners,
			Logger:  log,
		})
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Gateway started", "channels", channels.names(), "inbox", cfg.Gateway.InboxURL != "")
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// channelSet is the wiring result for every enabled channel.
type channelSet struct {
	webhook channel.Converter[sunbird.InboundMessage]
	senders []channel.Sender
	runners []channel.Runner
}

func (c channelSet) names() string {
	names := make([]string, 0, len(c.senders)+len(c.runners))
	seen := make(map[string]struct{}, cap(names))
	for _, sender := range c.senders {
		names = append(names, sender.Name())
		seen[sender.Name()] = struct{}{}
	}
	for _, runner := range c.runners {
		if _, ok := seen[runner.Name()]; !ok {
			names = append(names, runner.Name())
		}
	}
	return strings.Join(names, ",")
}

func enabledChannels(cfg *config.Config, cache *tokencache.Cache, log *slog.Logger) (channelSet, error) {
	var set channelSet

	if cfg.Channels.Sunbird.Enabled {
		adapter, err := newPortalAdapter(cfg.Channels.Sunbird, cache, log)
		if err != nil {
			return channelSet{}, fmt.Errorf("configure %s channel: %w", sunbird.ChannelName, err)
		}
		set.webhook = adapter
		set.senders = append(set.senders, adapter)
	}

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, cfg.Channels.Sunbird.AdminUserID, log)
		if err != nil {
			return channelSet{}, fmt.Errorf("configure telegram channel: %w", err)
		}
		set.senders = append(set.senders, adapter)
		set.runners = append(set.runners, adapter)
	}

	if len(set.senders) == 0 {
		return channelSet{}, errors.New("no channels are enabled")
	}

	return set, nil
}

// newPortalAdapter wires the portal adapter to an HTTP dispatcher using the configured auth.
func newPortalAdapter(cfg config.SunbirdConfig, cache *tokencache.Cache, log *slog.Logger) (*sunbird.Adapter, error) {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	client := &http.Client{Timeout: timeout}

	authorizer, err := newAuthorizer(cfg.Auth, cache, client)
	if err != nil {
		return nil, err
	}

	dispatcher := transport.NewHTTPDispatcher(transport.Options{
		Client:     client,
		Authorizer: authorizer,
		Logger:     log,
	})

	return sunbird.New(dispatcher, sunbird.Options{
		Endpoint:    cfg.OutboundURL,
		AdminUserID: cfg.AdminUserID,
		Logger:      log,
	})
}

func newAuthorizer(cfg config.AuthConfig, cache *tokencache.Cache, client *http.Client) (transport.Authorizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", config.AuthModeNone:
		return transport.NoAuth{}, nil
	case config.AuthModeBasic:
		if strings.TrimSpace(cfg.Username) == "" {
			return nil, errors.New("auth.username is required for basic auth")
		}
		return transport.BasicAuth{Username: cfg.Username, Password: config.SecretFromEnv(cfg.PasswordEnv)}, nil
	case config.AuthModeOAuth2:
		authorizer, err := transport.NewOAuth2(clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: config.SecretFromEnv(cfg.ClientSecretEnv),
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}, cache, client)
		if err != nil {
			return nil, err
		}
		return authorizer, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

func newTokenCache(cfg config.TokenCacheConfig) (*tokencache.Cache, error) {
	return tokencache.New(tokencache.Options{
		TTL:        time.Duration(cfg.TTLSeconds) * time.Second,
		MaxEntries: cfg.MaxEntries,
	})
}
