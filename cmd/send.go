package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sunbird-adapter/pkg/channel/sunbird"
	"sunbird-adapter/pkg/config"
	"sunbird-adapter/pkg/logger"
	"sunbird-adapter/pkg/message"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	sendReplyID   string
	sendMessageID string
	sendText      string
	sendChoices   []string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one reply to the portal",
	Long:  "Builds a canonical reply from flags, sends it through the configured portal transport, and prints the acknowledged message.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		msg, err := replyFromFlags(sendReplyID, sendMessageID, sendText, sendChoices)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.Channels.Sunbird.RequestTimeoutSeconds+5)*time.Second)
		defer cancel()

		sent, err := sendReply(ctx, cfg, msg, log)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), sent)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendReplyID, "reply-id", "", "portal message id being answered")
	sendCmd.Flags().StringVar(&sendMessageID, "message-id", "", "channel message id, if already assigned")
	sendCmd.Flags().StringVarP(&sendText, "text", "t", "", "reply text")
	sendCmd.Flags().StringArrayVar(&sendChoices, "choice", nil, "button choice, first word becomes the key (repeatable)")
}

// replyFromFlags builds an unsent canonical reply for the portal channel.
func replyFromFlags(replyID, messageID, text string, choices []string) (message.Message, error) {
	if strings.TrimSpace(replyID) == "" {
		return message.Message{}, errors.New("--reply-id is required")
	}

	buttons := lo.FilterMap(choices, func(choice string, _ int) (message.ButtonChoice, bool) {
		choice = strings.TrimSpace(choice)
		return message.ButtonChoice{Text: choice}, choice != ""
	})
	if len(buttons) == 0 {
		buttons = nil
	}

	return message.Message{
		MessageID: message.MessageID{ChannelMessageID: messageID, ReplyID: replyID},
		State:     message.StateCreated,
		Type:      message.TypeText,
		Channel:   sunbird.ChannelName,
		Provider:  sunbird.ProviderName,
		Timestamp: time.Now().UTC(),
		Payload:   message.Payload{Text: text, ButtonChoices: buttons},
	}, nil
}

func sendReply(ctx context.Context, cfg *config.Config, msg message.Message, log *slog.Logger) (message.Message, error) {
	cache, err := newTokenCache(cfg.TokenCache)
	if err != nil {
		return message.Message{}, err
	}
	defer cache.Close()

	adapter, err := newPortalAdapter(cfg.Channels.Sunbird, cache, log)
	if err != nil {
		return message.Message{}, err
	}

	return adapter.SendOutbound(ctx, msg)
}
