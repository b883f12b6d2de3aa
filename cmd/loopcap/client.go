package main

import (
	"fmt"

	"github.com/Avicted/loopcap/internal/ipc"
	"github.com/spf13/cobra"
)

func controlAddr(cmd *cobra.Command, flags *rootFlags) (string, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return "", err
	}
	if cfg.ControlAddr != "" {
		return cfg.ControlAddr, nil
	}
	return ipc.DefaultAddr(), nil
}

func newStopCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask a running capture to stop and finalize its file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			addr, err := controlAddr(cmd, flags)
			if err != nil {
				return err
			}
			reply, err := ipc.Request(addr, ipc.Message{Cmd: ipc.CommandStop}, requestTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopping reason=%s\n", reply.Reason)
			return nil
		},
	}
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			addr, err := controlAddr(cmd, flags)
			if err != nil {
				return err
			}
			reply, err := ipc.Request(addr, ipc.Message{Cmd: ipc.CommandStatus}, requestTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session=%s state=%s bytes=%d packets=%d", reply.Session, reply.State, reply.Bytes, reply.Packets)
			if reply.Reason != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " reason=%s", reply.Reason)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the loopcap version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "loopcap %s\n", version)
		},
	}
}
