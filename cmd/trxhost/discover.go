package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rjboer/GoTRX/internal/mdns"
)

func newDiscoverCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the local network for remote radio heads",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			start := time.Now()
			hosts, err := mdns.Discover(ctx, mdns.RadioHeadService)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d radio head(s) in %s\n", len(hosts), time.Since(start).Truncate(time.Millisecond))
			for _, h := range hosts {
				fmt.Fprintf(out, "%s\t%s\trf_addr=%s\n", h.Instance, h.Hostname, h.Addr())
				for _, txt := range h.TXT {
					fmt.Fprintf(out, "\t%s\n", txt)
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "how long to browse")
	return cmd
}
