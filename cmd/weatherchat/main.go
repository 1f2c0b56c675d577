// Command weatherchat is a terminal client for the weather assistant chat API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	server  string
	timeout time.Duration
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.server, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "weatherchat",
		Short:         "Chat with the weather assistant from the terminal",
		SilenceUsage: true,
	}
	defaultServer := os.Getenv("WEATHERCHAT_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "weather assistant base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "request timeout")

	root.AddCommand(sessionCmd(opts))
	root.AddCommand(sendCmd(opts))
	root.AddCommand(historyCmd(opts))
	root.AddCommand(preferencesCmd(opts))
	return root
}

// locationFlags builds a location from --city/--country; nil when no city is given.
func locationFlags(city, country string) *location {
	if strings.TrimSpace(city) == "" {
		return nil
	}
	return &location{City: city, Country: country}
}

func sessionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage chat sessions",
	}

	var user, theme, lang, city, country string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.client().createSession(cmd.Context(), user, preferences{
				Language: lang,
				Theme:    theme,
				Location: locationFlags(city, country),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sess)
		},
	}
	create.Flags().StringVar(&user, "user", "", "user id (default anonymous)")
	create.Flags().StringVar(&theme, "theme", "", "suggestion theme: travel, fashion, sports, music, agriculture, general")
	create.Flags().StringVar(&lang, "lang", "", "preferred language (default ja)")
	create.Flags().StringVar(&city, "city", "", "preferred city")
	create.Flags().StringVar(&country, "country", "", "preferred country code")
	cmd.AddCommand(create)
	return cmd
}

func sendCmd(opts *rootOptions) *cobra.Command {
	var (
		sessionID, lang, city, country string
		voice                          bool
	)
	cmd := &cobra.Command{
		Use:   "send TEXT...",
		Short: "Send a message and print the assistant's reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opts.client().send(cmd.Context(), sendRequest{
				SessionID:    sessionID,
				Message:      strings.Join(args, " "),
				IsVoiceInput: voice,
				Language:     lang,
				Location:     locationFlags(city, country),
			})
			if err != nil {
				return err
			}
			printTurn(cmd.OutOrStdout(), t)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().BoolVar(&voice, "voice", false, "treat the text as a voice transcript")
	cmd.Flags().StringVar(&lang, "lang", "", "message language (default: session preference)")
	cmd.Flags().StringVar(&city, "city", "", "city for this message")
	cmd.Flags().StringVar(&country, "country", "", "country code for this message")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func historyCmd(opts *rootOptions) *cobra.Command {
	var (
		sessionID     string
		limit, offset int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a page of a session's messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.client().history(cmd.Context(), sessionID, limit, offset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range h.Messages {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Local().Format("15:04:05"), m.Type, m.Content)
			}
			fmt.Fprintf(out, "(%d of %d messages)\n", len(h.Messages), h.TotalMessages)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of messages")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of messages to skip")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func preferencesCmd(opts *rootOptions) *cobra.Command {
	var sessionID, theme, lang, city, country string
	cmd := &cobra.Command{
		Use:   "preferences",
		Short: "Replace a session's preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := opts.client().updatePreferences(cmd.Context(), sessionID, preferences{
				Language: lang,
				Theme:    theme,
				Location: locationFlags(city, country),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), prefs)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&theme, "theme", "", "suggestion theme")
	cmd.Flags().StringVar(&lang, "lang", "", "preferred language")
	cmd.Flags().StringVar(&city, "city", "", "preferred city")
	cmd.Flags().StringVar(&country, "country", "", "preferred country code")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func printTurn(w io.Writer, t *turn) {
	fmt.Fprintf(w, "assistant: %s\n", t.AssistantMessage.Content)
	if t.WeatherData != nil {
		fmt.Fprintf(w, "weather:   %s %.1f°C %s (humidity %.0f%%, wind %.1fm/s)\n",
			t.WeatherData.Location, t.WeatherData.Temperature, t.WeatherData.Description,
			t.WeatherData.Humidity, t.WeatherData.WindSpeed)
	}
	if t.Suggestion != nil {
		fmt.Fprintf(w, "%s: %s (confidence %.1f)\n", t.Suggestion.Theme, t.Suggestion.Suggestion, t.Suggestion.Confidence)
	}
	for _, d := range t.Degradations {
		fmt.Fprintf(w, "warning: %s unavailable: %s\n", d.Dependency, d.Message)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
