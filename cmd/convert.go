package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"sunbird-adapter/pkg/channel/sunbird"
	"sunbird-adapter/pkg/message"
	"sunbird-adapter/pkg/transport"

	"github.com/spf13/cobra"
)

// offlineEndpoint satisfies the adapter constructor; conversion never dispatches.
const offlineEndpoint = "http://localhost/offline"

var convertAdminUserID string

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Convert a portal webhook payload to a canonical message",
	Long:  "Reads one inbound portal webhook JSON document from a file or stdin and prints the canonical message it maps to.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer file.Close()
			input = file
		}

		msg, err := convertInbound(input, convertAdminUserID, time.Now)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), msg)
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVar(&convertAdminUserID, "admin", sunbird.DefaultAdminUserID, "user id inbound messages are addressed to")
}

func convertInbound(r io.Reader, adminUserID string, now func() time.Time) (message.Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return message.Message{}, fmt.Errorf("read input: %w", err)
	}

	raw, err := sunbird.ParseInbound(data)
	if err != nil {
		return message.Message{}, err
	}

	adapter, err := sunbird.New(transport.NewHTTPDispatcher(transport.Options{}), sunbird.Options{
		Endpoint:    offlineEndpoint,
		AdminUserID: adminUserID,
		Logger:      slog.New(slog.DiscardHandler),
		Now:         now,
	})
	if err != nil {
		return message.Message{}, err
	}

	return adapter.ConvertInbound(raw)
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
