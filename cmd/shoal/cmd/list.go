package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ianremillard/shoal/internal/proto"
)

func newListCmd(socketFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions known to the daemon",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doList(*socketFlag)
		},
	}
}

func doList(socketFlag string) error {
	conn, err := dial(socketFlag)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := proto.WriteConnectHeader(conn, proto.ConnectHeader{Kind: proto.ConnectList}); err != nil {
		return fmt.Errorf("send list request: %w", err)
	}
	reply, err := proto.ReadListReply(conn)
	if err != nil {
		return fmt.Errorf("read list reply: %w", err)
	}

	if len(reply.Sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	fmt.Printf("%-20s  %-12s  %s\n", "NAME", "STATUS", "STARTED")
	for _, s := range reply.Sessions {
		started := time.UnixMilli(s.StartedAtUnixMs).Local().Format(time.RFC3339)
		fmt.Printf("%-20s  %-12s  %s\n", s.Name, s.Status, started)
	}
	return nil
}
