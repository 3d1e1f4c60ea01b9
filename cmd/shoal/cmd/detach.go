package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ianremillard/shoal/internal/proto"
)

func newDetachCmd(socketFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <name>...",
		Short: "Detach one or more sessions without killing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doDetach(*socketFlag, args)
		},
	}
}

func doDetach(socketFlag string, names []string) error {
	conn, err := dial(socketFlag)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := proto.WriteConnectHeader(conn, proto.ConnectHeader{Kind: proto.ConnectDetach, Sessions: names}); err != nil {
		return fmt.Errorf("send detach request: %w", err)
	}
	reply, err := proto.ReadDetachReply(conn)
	if err != nil {
		return fmt.Errorf("read detach reply: %w", err)
	}

	for _, name := range reply.NotFound {
		fmt.Printf("%s: no such session\n", name)
	}
	for _, name := range reply.NotAttached {
		fmt.Printf("%s: not attached\n", name)
	}
	return nil
}
