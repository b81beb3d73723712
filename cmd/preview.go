package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"sunbird-adapter/pkg/channel/sunbird"
	"sunbird-adapter/pkg/message"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	previewTextFlag string
	previewChoices  []string
	previewRaw      bool
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show how a reply will look on the portal",
	Long:  "Runs the text cleaner and choice key codec on a reply and prints the resulting portal envelope without sending it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		msg, err := replyFromFlags("preview", "", previewTextFlag, previewChoices)
		if err != nil {
			return err
		}

		if previewRaw {
			wire, _ := sunbird.BuildOutbound(msg)
			return writeJSON(cmd.OutOrStdout(), wire)
		}

		out, err := renderPreview(msg, defaultPreviewTheme())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().StringVarP(&previewTextFlag, "text", "t", "", "reply text")
	previewCmd.Flags().StringArrayVar(&previewChoices, "choice", nil, "button choice, first word becomes the key (repeatable)")
	previewCmd.Flags().BoolVar(&previewRaw, "raw", false, "print only the wire JSON")
}

type previewTheme struct {
	title   lipgloss.Style
	box     lipgloss.Style
	key     lipgloss.Style
	label   lipgloss.Style
	wire    lipgloss.Style
	divider lipgloss.Style
}

func defaultPreviewTheme() previewTheme {
	return previewTheme{
		title: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("88")),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("44")).
			Padding(0, 1),
		key: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("214")).
			Padding(0, 1),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		wire: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		divider: lipgloss.NewStyle().
			Foreground(lipgloss.Color("130")),
	}
}

// renderPreview draws the portal view of msg: the cleaned title, each keyed
// choice, the plain-text fallback and the wire envelope.
func renderPreview(msg message.Message, th previewTheme) (string, error) {
	wire, payload := sunbird.BuildOutbound(msg)

	parts := []string{th.title.Render("portal message"), th.box.Render(payload.Text)}

	if len(payload.ButtonChoices) > 0 {
		rows := make([]string, 0, len(payload.ButtonChoices))
		for _, choice := range payload.ButtonChoices {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, th.key.Render(choice.Key), " ", choice.Text))
		}
		parts = append(parts,
			th.label.Render("choices"),
			lipgloss.JoinVertical(lipgloss.Left, rows...),
			th.label.Render("plain text"),
			sunbird.RenderChoices(payload.ButtonChoices),
		)
	}

	encoded, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode wire message: %w", err)
	}
	parts = append(parts, th.divider.Render(strings.Repeat("─", 24)), th.wire.Render(string(encoded)))

	return lipgloss.JoinVertical(lipgloss.Left, parts...), nil
}
