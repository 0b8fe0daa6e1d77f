package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rjboer/GoTRX/trx"
)

func newNegotiateCmd(root *rootOptions) *cobra.Command {
	var bandwidth int
	cmd := &cobra.Command{
		Use:   "negotiate",
		Short: "Print the sample rate the driver picks for a bandwidth",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bandwidth == 0 {
				bandwidth = root.cfg.Host.Bandwidth
			}
			drv, err := trx.Open(&root.cfg.Driver, trx.WithConfigPath(root.cfg.Dir), trx.WithLogger(root.log))
			if err != nil {
				return err
			}
			defer drv.End()

			rate, n, err := drv.SampleRate(bandwidth)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bandwidth %s: rate %s (%s), multiplier %d\n",
				humanize.SIWithDigits(float64(bandwidth), 3, "Hz"), rate,
				humanize.SIWithDigits(rate.Float64(), 3, "Hz"), n)
			return nil
		},
	}
	cmd.Flags().IntVarP(&bandwidth, "bandwidth", "b", 0, "channel bandwidth in Hz (default from config)")
	return cmd
}
