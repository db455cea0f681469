package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/servicetrack/internal/chat"
	"github.com/zulandar/servicetrack/internal/schedule"
)

func newSendCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "send <request-id> <text>",
		Short: "Send a chat message to the technician",
		Long:  "Posts a text message in the conversation of a service request and prints the latest messages.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, configPath, args[0], strings.Join(args[1:], " "))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to servicetrack config file")
	return cmd
}

func runSend(cmd *cobra.Command, configPath, id, text string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	sched := schedule.NewCron()
	defer sched.Stop()

	return sendMessage(cmd.Context(), cmd.OutOrStdout(), chat.SyncOpts{
		Client:    client,
		ViewerID:  client.ViewerID(),
		Scheduler: sched,
	}, id, text)
}

// sendMessage posts text to the conversation of request id and prints the
// tail of the transcript.
func sendMessage(ctx context.Context, out io.Writer, opts chat.SyncOpts, id, text string) error {
	cs, err := chat.NewSync(opts)
	if err != nil {
		return err
	}
	defer cs.Close()

	// A silent refresh only logs failures; the send reports its own.
	cs.Refresh(ctx, id, chat.RefreshOpts{Silent: true})
	msg, err := cs.Send(ctx, id, text)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Sent message %s\n", msg.ID)

	msgs := cs.Messages()
	start := max(0, len(msgs)-maxRenderedMessages)
	for _, m := range msgs[start:] {
		fmt.Fprintf(out, "  %s\n", messageLine(m))
	}
	return nil
}
