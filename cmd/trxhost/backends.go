package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rjboer/GoTRX/internal/sdr"
)

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the registered radio backends",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range sdr.Backends() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
