package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// APIFlags holds daemon connection flags shared by client commands
type APIFlags struct {
	URL      string
	APIKey   string
	Timeout  time.Duration
	Insecure bool
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// SendFlags holds flags for the send command
type SendFlags struct {
	Recipient string
	Payload   string
}

// SubscriberFlags holds flags for subscriber commands
type SubscriberFlags struct {
	URL    string
	Events []string
	Secret string
	ID     string
}

// BroadcastFlags holds flags for the broadcast command
type BroadcastFlags struct {
	Recipients []string
	Payload    string
}

// buildRoot creates the root command with all subcommands attached
func buildRoot() *cobra.Command {
	apiFlags := &APIFlags{}
	serveFlags := &ServeFlags{}
	sendFlags := &SendFlags{}
	subFlags := &SubscriberFlags{}
	broadcastFlags := &BroadcastFlags{}

	hermodCommand := command{api: apiFlags}

	root := createRootCommand(apiFlags)
	root.AddCommand(
		createServeCommand(serveFlags),
		createConnectCommand(hermodCommand),
		createDisconnectCommand(hermodCommand),
		createStatusCommand(hermodCommand),
		createPairingCommand(hermodCommand),
		createSendCommand(hermodCommand, sendFlags),
		createBroadcastCommand(hermodCommand, broadcastFlags),
		createSubscriberCommand(hermodCommand, subFlags),
		createStatsCommand(hermodCommand),
	)
	return root
}

// createRootCommand creates the root command with persistent daemon flags
func createRootCommand(flags *APIFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "hermod",
		Short: "Messaging account gateway",
		Long: `Hermod keeps a single messaging-account session alive and fans its
events out to registered webhook subscribers.

Examples:
  hermod serve --config=config.toml           # Start the gateway daemon
  hermod status                               # Session snapshot
  hermod subscriber add --url=https://example.com/hook --event=message.received
  hermod send --recipient=+15550001111 --payload='{"text":"hi"}'`,
	}

	root.PersistentFlags().StringVar(&flags.URL, "api-url", "", "daemon URL (default http://localhost:8080/api)")
	root.PersistentFlags().StringVar(&flags.APIKey, "api-key", "", "API key for the daemon")
	root.PersistentFlags().DurationVar(&flags.Timeout, "api-timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")

	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the hermod daemon",
		Long: `Start the gateway daemon: connect the session, serve the HTTP API,
and deliver events to webhook subscribers.

Examples:
  hermod serve config.toml
  hermod serve --config=config.toml --daemonize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeCommand(flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	cmd.Flags().BoolVar(&flags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&flags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "redirect daemon logs to file")

	return cmd
}

func createConnectCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Bring the session up",
		RunE:  func(cmd *cobra.Command, args []string) error { return c.Connect() },
	}
}

func createDisconnectCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Log the session out",
		RunE:  func(cmd *cobra.Command, args []string) error { return c.Disconnect() },
	}
}

func createStatusCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the session snapshot",
		RunE:  func(cmd *cobra.Command, args []string) error { return c.Status() },
	}
}

func createPairingCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "pairing",
		Short: "Print the current pairing artifact",
		RunE:  func(cmd *cobra.Command, args []string) error { return c.Pairing() },
	}
}

func createSendCommand(c command, flags *SendFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message through the live session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Send(*flags)
		},
	}

	cmd.Flags().StringVar(&flags.Recipient, "recipient", "", "recipient identity (required)")
	cmd.Flags().StringVar(&flags.Payload, "payload", "", "JSON payload (required)")
	if err := cmd.MarkFlagRequired("recipient"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("payload"); err != nil {
		panic(err)
	}
	return cmd
}

func createBroadcastCommand(c command, flags *BroadcastFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Send one payload to many recipients sequentially",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Broadcast(*flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.Recipients, "recipient", nil, "recipient identity (repeatable, required)")
	cmd.Flags().StringVar(&flags.Payload, "payload", "", "JSON payload (required)")
	if err := cmd.MarkFlagRequired("recipient"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("payload"); err != nil {
		panic(err)
	}
	return cmd
}

// createSubscriberCommand creates the subscriber command with subcommands
func createSubscriberCommand(c command, flags *SubscriberFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriber",
		Short: "Webhook subscriber management commands",
		Long: `Manage webhook subscribers on a running daemon.

Examples:
  hermod subscriber add --url=https://example.com/hook --event=message.received --event=session.closed
  hermod subscriber list
  hermod subscriber remove --id=<id>
  hermod subscriber test --id=<id>`,
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Register a webhook subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SubscriberAdd(*flags)
		},
	}
	add.Flags().StringVar(&flags.URL, "url", "", "endpoint URL (required)")
	add.Flags().StringSliceVar(&flags.Events, "event", nil, "event kind to subscribe (repeatable, required)")
	add.Flags().StringVar(&flags.Secret, "secret", "", "HMAC secret (generated when empty)")
	if err := add.MarkFlagRequired("url"); err != nil {
		panic(err)
	}
	if err := add.MarkFlagRequired("event"); err != nil {
		panic(err)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered subscribers",
		RunE:  func(cmd *cobra.Command, args []string) error { return c.SubscriberList() },
	}

	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove a subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SubscriberRemove(flags.ID)
		},
	}
	remove.Flags().StringVar(&flags.ID, "id", "", "subscriber id (required)")
	if err := remove.MarkFlagRequired("id"); err != nil {
		panic(err)
	}

	test := &cobra.Command{
		Use:   "test",
		Short: "Deliver a synthetic event to a subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SubscriberTest(flags.ID)
		},
	}
	test.Flags().StringVar(&flags.ID, "id", "", "subscriber id (required)")
	if err := test.MarkFlagRequired("id"); err != nil {
		panic(err)
	}

	cmd.AddCommand(add, list, remove, test)
	return cmd
}

func createStatsCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print delivery pipeline statistics",
		RunE:  func(cmd *cobra.Command, args []string) error { return c.Stats() },
	}
}
