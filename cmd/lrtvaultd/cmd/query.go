package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openalpha/lrt-vault/api/handlers"
	ratiofeedtypes "github.com/openalpha/lrt-vault/x/ratiofeed/types"
	"github.com/openalpha/lrt-vault/x/restaking/client/cli"
)

// CmdQueryEvents returns the command to read the committed event journal
func CmdQueryEvents() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query committed ledger events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, _ := cmd.Flags().GetUint64("from")
			limit, _ := cmd.Flags().GetUint64("limit")
			var res handlers.EventsResponse
			if err := cli.ClientFromCmd(cmd).Get(fmt.Sprintf("/v1/events?from=%d&limit=%d", from, limit), &res); err != nil {
				return err
			}
			return cli.PrintJSON(cmd, res)
		},
	}
	cmd.Flags().Uint64("from", 0, "first sequence number")
	cmd.Flags().Uint64("limit", 100, "max events")
	cli.AddClientFlags(cmd)
	return cmd
}

func CmdQueryAdapters() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapters",
		Short: "Query mounted restaking protocols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res []handlers.AdapterResponse
			if err := cli.ClientFromCmd(cmd).Get("/v1/adapters", &res); err != nil {
				return err
			}
			return cli.PrintJSON(cmd, res)
		},
	}
	cli.AddClientFlags(cmd)
	return cmd
}

func CmdQueryFeedRatio() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed-ratio [token]",
		Short: "Query the oracle entry of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res ratiofeedtypes.RatioEntry
			if err := cli.ClientFromCmd(cmd).Get("/v1/ratios/"+args[0], &res); err != nil {
				return err
			}
			return cli.PrintJSON(cmd, res)
		},
	}
	cli.AddClientFlags(cmd)
	return cmd
}
