package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ianremillard/shoal/internal/proto"
)

func newKillCmd(socketFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <name>...",
		Short: "Kill one or more sessions (SIGHUP, then SIGKILL on timeout)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doKill(*socketFlag, args)
		},
	}
}

func doKill(socketFlag string, names []string) error {
	conn, err := dial(socketFlag)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := proto.WriteConnectHeader(conn, proto.ConnectHeader{Kind: proto.ConnectKill, Sessions: names}); err != nil {
		return fmt.Errorf("send kill request: %w", err)
	}
	reply, err := proto.ReadKillReply(conn)
	if err != nil {
		return fmt.Errorf("read kill reply: %w", err)
	}

	for _, name := range reply.NotFound {
		fmt.Printf("%s: no such session\n", name)
	}
	return nil
}
