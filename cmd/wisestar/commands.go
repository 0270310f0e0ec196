package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/wisestar/internal/config"
)

// --- ask ---

type sendResult struct {
	ConversationID string `json:"conversation_id"`
	Intent         string `json:"intent"`
	Response       struct {
		Content  string `json:"content"`
		Metadata *struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		} `json:"metadata"`
	} `json:"response"`
}

var askCmd = &cobra.Command{
	Use:   "ask [text]",
	Short: "Send a message to the tutor in the current conversation",
	Long: `Send a message to the tutor in the current conversation.

Examples:
  wisestar ask "解题：2x+3=7"
  wisestar ask "生成一道困难的函数题"
  wisestar ask 解题 --pdf ./worksheet.pdf
  wisestar ask "这道题怎么做" --image ./photo.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		pdfPath, _ := cmd.Flags().GetString("pdf")
		imagePath, _ := cmd.Flags().GetString("image")
		raw, _ := cmd.Flags().GetBool("json")

		if pdfPath != "" {
			extracted, err := extractPDFText(pdfPath)
			if err != nil {
				return err
			}
			text = strings.TrimSpace(text + " " + extracted)
		}

		var image string
		if imagePath != "" {
			var err error
			if image, err = imageDataURL(imagePath); err != nil {
				return err
			}
		}

		if strings.TrimSpace(text) == "" && image == "" {
			return fmt.Errorf("text, --pdf, or --image is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/messages", map[string]string{"text": text, "image": image})
		if err != nil {
			return err
		}

		stale := resp.StatusCode == http.StatusConflict
		if stale {
			resp.StatusCode = http.StatusOK
		}
		var result sendResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if stale {
			printWarning("conversation changed before the reply arrived; reply not saved")
		}
		printReply(cmd.OutOrStdout(), result, raw)
		return nil
	},
}

func init() {
	askCmd.Flags().String("pdf", "", "PDF file whose text is appended to the message")
	askCmd.Flags().String("image", "", "image file to attach")
	askCmd.Flags().Bool("json", false, "print the result metadata as JSON")
}

func printReply(w io.Writer, r sendResult, raw bool) {
	fmt.Fprintln(w, r.Response.Content)
	md := r.Response.Metadata
	if md == nil || len(md.Data) == 0 {
		return
	}
	if raw {
		fmt.Fprintln(w, string(md.Data))
		return
	}

	switch md.Type {
	case "solve_result":
		var s struct {
			Answer string `json:"answer"`
			Steps  []struct {
				Content string `json:"content"`
			} `json:"steps"`
		}
		if json.Unmarshal(md.Data, &s) == nil {
			for i, step := range s.Steps {
				fmt.Fprintf(w, "  %d. %s\n", i+1, step.Content)
			}
			if s.Answer != "" {
				fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "答案:"), s.Answer)
			}
		}
	case "generate_result":
		var g struct {
			Problem      string  `json:"problem"`
			QualityScore float64 `json:"quality_score"`
		}
		if json.Unmarshal(md.Data, &g) == nil && g.Problem != "" {
			fmt.Fprintf(w, "\n%s\n", g.Problem)
			if g.QualityScore > 0 {
				fmt.Fprintf(w, "%s %g/10\n", colorize(colorBold, "质量评分:"), g.QualityScore)
			}
		}
	case "error":
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(md.Data, &e) == nil && e.Message != "" {
			printError("%s", e.Message)
		}
	}
}

func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// --- conversations ---

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/conversations")
		if err != nil {
			return err
		}

		var convs []struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			CreatedAt    string `json:"createdAt"`
			MessageCount int    `json:"messageCount"`
			Current      bool   `json:"current"`
		}
		if err := decodeJSON(resp, &convs); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, c := range convs {
			marker := " "
			if c.Current {
				marker = colorize(colorGreen, "*")
			}
			fmt.Fprintf(out, "%s %s  %3d  %s\n", marker, colorize(colorCyan, c.ID), c.MessageCount, c.Title)
		}
		return nil
	},
}

var conversationsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/conversations", nil)
		if err != nil {
			return err
		}

		var c struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}

		printSuccess("Started conversation %s", c.ID)
		return nil
	},
}

var conversationsSwitchCmd = &cobra.Command{
	Use:   "switch <id>",
	Short: "Make a conversation current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/conversations/"+url.PathEscape(args[0])+"/switch", nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Switched to conversation %s", args[0])
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/conversations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result struct {
			Deleted bool   `json:"deleted"`
			Current string `json:"current"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Deleted {
			printWarning("No conversation %s (current: %s)", args[0], result.Current)
			return nil
		}
		printSuccess("Deleted conversation %s (current: %s)", args[0], result.Current)
		return nil
	},
}

var conversationsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every conversation and start over",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/conversations")
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("All conversations removed (current: %s)", result["current"])
		return nil
	},
}

var conversationsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a conversation as Markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/conversations/%s/export?format=%s", url.PathEscape(args[0]), url.QueryEscape(format))
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return decodeJSON(resp, nil)
		}

		if output == "" {
			_, err := io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		}

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		if _, err := io.Copy(f, resp.Body); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		printSuccess("Conversation exported to %s", output)
		return nil
	},
}

func init() {
	conversationsExportCmd.Flags().String("format", "markdown", "export format: markdown or json")
	conversationsExportCmd.Flags().String("output", "", "output file path (default: stdout)")

	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsNewCmd)
	conversationsCmd.AddCommand(conversationsSwitchCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	conversationsCmd.AddCommand(conversationsResetCmd)
	conversationsCmd.AddCommand(conversationsExportCmd)
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Inspect the dispatch history",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/interactions?limit=%d", limit))
		if err != nil {
			return err
		}

		var interactions []struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			UserQuery string `json:"user_query"`
			Intent    string `json:"intent"`
			Status    string `json:"status"`
		}
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(interactions) == 0 {
			fmt.Fprintln(out, "No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			query := []rune(ix.UserQuery)
			if len(query) > 60 {
				query = append(query[:60], []rune("...")...)
			}
			id := ix.ID
			if len(id) > 8 {
				id = id[:8]
			}
			fmt.Fprintf(out, "%s  %s  %-10s %-9s %s\n",
				colorize(colorCyan, id),
				ix.CreatedAt,
				ix.Intent,
				ix.Status,
				string(query),
			)
		}
		return nil
	},
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/interactions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var interaction any
		if err := decodeJSON(resp, &interaction); err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(interaction)
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsShowCmd)
}

// --- daily ---

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Show today's practice question",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/daily")
		if err != nil {
			return err
		}

		var q struct {
			ID         int      `json:"id"`
			Date       string   `json:"date"`
			Question   string   `json:"question"`
			Tags       []string `json:"tags"`
			Difficulty string   `json:"difficulty"`
			Hint       string   `json:"hint"`
		}
		if err := decodeJSON(resp, &q); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  #%d  %s\n", colorize(colorBold, q.Date), q.ID, q.Difficulty)
		fmt.Fprintln(out, q.Question)
		if len(q.Tags) > 0 {
			fmt.Fprintf(out, "Tags: %s\n", strings.Join(q.Tags, ", "))
		}
		if q.Hint != "" {
			fmt.Fprintf(out, "Hint: %s\n", q.Hint)
		}
		return nil
	},
}

var dailySubmitCmd = &cobra.Command{
	Use:   "submit <question-id> <answer>",
	Short: "Submit an answer to the daily question",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("question id must be an integer: %q", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/daily/submit", map[string]any{"questionId": id, "answer": args[1]})
		if err != nil {
			return err
		}

		var v struct {
			Correct  bool   `json:"correct"`
			Feedback string `json:"feedback"`
		}
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}

		if v.Correct {
			printSuccess("Correct! %s", v.Feedback)
		} else {
			printWarning("Not quite. %s", v.Feedback)
		}
		return nil
	},
}

func init() {
	dailyCmd.AddCommand(dailySubmitCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Valid keys: ` + strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if strings.HasSuffix(key, "api_token") {
			printSuccess("Set %s", key)
		} else {
			printSuccess("Set %s = %s", key, value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
