package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/cosmos/cosmos-sdk/client"
	"github.com/spf13/cobra"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// GetQueryCmd returns the cli query commands for the restaking module
func GetQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        types.ModuleName,
		Short:                      "Querying commands for the restaking vault",
		DisableFlagParsing:         true,
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}

	cmd.AddCommand(
		CmdQueryVault(),
		CmdQueryRatio(),
		CmdQueryPositions(),
		CmdQueryTickets(),
		CmdQueryEpochs(),
		CmdQueryEpoch(),
		CmdQueryWithdrawals(),
		CmdQueryRedeemable(),
		CmdQueryBalance(),
		CmdQueryParams(),
	)

	return cmd
}

func queryCmd(use, short string, args cobra.PositionalArgs, path func(args []string) (string, error), out func() interface{}) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := path(args)
			if err != nil {
				return err
			}
			res := out()
			if err := ClientFromCmd(cmd).Get(p, res); err != nil {
				return err
			}
			return PrintJSON(cmd, res)
		},
	}
	AddClientFlags(cmd)
	return cmd
}

func fixed(p string) func([]string) (string, error) {
	return func([]string) (string, error) { return p, nil }
}

// CmdQueryVault returns the command to query the vault ledger
func CmdQueryVault() *cobra.Command {
	return queryCmd("vault", "Query the vault ledger and its derived ratios", cobra.NoArgs,
		fixed("/v1/vault"), func() interface{} { return &types.VaultSummary{} })
}

// CmdQueryRatio returns the command to query every ratio view and recent history
func CmdQueryRatio() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratio",
		Short: "Query adjusted, backing, inverse and raw ratios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("history")
			var res types.RatioInfo
			if err := ClientFromCmd(cmd).Get(fmt.Sprintf("/v1/vault/ratio?limit=%d", limit), &res); err != nil {
				return err
			}
			return PrintJSON(cmd, res)
		},
	}
	cmd.Flags().Int("history", 10, "number of snapshots to include")
	AddClientFlags(cmd)
	return cmd
}

func CmdQueryPositions() *cobra.Command {
	return queryCmd("positions", "Query delegation positions", cobra.NoArgs,
		fixed("/v1/positions"), func() interface{} { return &[]types.DelegationPosition{} })
}

func CmdQueryTickets() *cobra.Command {
	return queryCmd("tickets", "Query undelegation tickets still in flight", cobra.NoArgs,
		fixed("/v1/tickets"), func() interface{} { return &[]types.UndelegationTicket{} })
}

// CmdQueryEpochs returns the command to page through withdrawal epochs
func CmdQueryEpochs() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epochs",
		Short: "Query withdrawal epochs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, _ := cmd.Flags().GetUint64("offset")
			limit, _ := cmd.Flags().GetUint64("limit")
			q := url.Values{}
			q.Set("offset", strconv.FormatUint(offset, 10))
			q.Set("limit", strconv.FormatUint(limit, 10))

			var res struct {
				Epochs []types.WithdrawalEpoch `json:"epochs"`
				Total  uint64                  `json:"total"`
			}
			if err := ClientFromCmd(cmd).Get("/v1/epochs?"+q.Encode(), &res); err != nil {
				return err
			}
			return PrintJSON(cmd, res)
		},
	}
	cmd.Flags().Uint64("offset", 0, "first epoch index")
	cmd.Flags().Uint64("limit", 50, "max epochs")
	AddClientFlags(cmd)
	return cmd
}

func CmdQueryEpoch() *cobra.Command {
	return queryCmd("epoch [id]", "Query one withdrawal epoch", cobra.ExactArgs(1),
		func(args []string) (string, error) {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return "", fmt.Errorf("invalid epoch id: %w", err)
			}
			return fmt.Sprintf("/v1/epochs/%d", id), nil
		},
		func() interface{} { return &types.WithdrawalEpoch{} })
}

func userPath(suffix string) func([]string) (string, error) {
	return func(args []string) (string, error) {
		return "/v1/users/" + url.PathEscape(args[0]) + suffix, nil
	}
}

// CmdQueryWithdrawals returns the command to list withdrawals owed to an address
func CmdQueryWithdrawals() *cobra.Command {
	return queryCmd("withdrawals [beneficiary]", "Query pending withdrawals of a beneficiary", cobra.ExactArgs(1),
		userPath("/withdrawals"), func() interface{} { return &[]types.PendingWithdrawal{} })
}

// CmdQueryRedeemable returns the command to check whether an address can redeem
func CmdQueryRedeemable() *cobra.Command {
	return queryCmd("redeemable [beneficiary]", "Query whether a beneficiary can redeem now", cobra.ExactArgs(1),
		userPath("/redeemable"), func() interface{} { return &types.RedeemStatus{} })
}

func CmdQueryBalance() *cobra.Command {
	return queryCmd("balance [address]", "Query claim token balance and its value", cobra.ExactArgs(1),
		userPath("/balance"), func() interface{} { return &types.UserBalance{} })
}

func CmdQueryParams() *cobra.Command {
	return queryCmd("params", "Query vault parameters", cobra.NoArgs,
		fixed("/v1/params"), func() interface{} { return &types.Params{} })
}
