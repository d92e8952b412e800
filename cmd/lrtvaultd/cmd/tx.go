package cmd

import (
	"fmt"
	"strings"

	"cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/client"
	"github.com/spf13/cobra"

	"github.com/openalpha/lrt-vault/app"
	ratiofeedtypes "github.com/openalpha/lrt-vault/x/ratiofeed/types"
	"github.com/openalpha/lrt-vault/x/restaking/adapters/simulated"
	"github.com/openalpha/lrt-vault/x/restaking/client/cli"
	restakingtypes "github.com/openalpha/lrt-vault/x/restaking/types"
	tokentypes "github.com/openalpha/lrt-vault/x/token/types"
)

const flagDenom = "denom"

// GetOracleTxCmd returns the ratio oracle commands
func GetOracleTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        "oracle",
		Short:                      "Ratio oracle transaction commands",
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}
	cmd.AddCommand(
		CmdUpdateRatios(),
		CmdConfirmRatio(),
	)
	return cmd
}

// CmdUpdateRatios returns the command to publish a batch of ratios
func CmdUpdateRatios() *cobra.Command {
	return cli.NewTxCmd("update-ratios [token=ratio]...", "Publish exchange ratios, e.g. ulrt=1.02", cobra.MinimumNArgs(1),
		func(cmd *cobra.Command, from string, args []string) error {
			msg := &ratiofeedtypes.MsgUpdateRatios{Signer: from}
			for _, arg := range args {
				token, ratio, ok := strings.Cut(arg, "=")
				if !ok || token == "" || ratio == "" {
					return fmt.Errorf("expected token=ratio, got %q", arg)
				}
				msg.TokenIDs = append(msg.TokenIDs, token)
				msg.Ratios = append(msg.Ratios, ratio)
			}
			return cli.Broadcast(cmd, "/v1/oracle/ratios", msg, &[]ratiofeedtypes.RatioEntry{})
		})
}

// CmdConfirmRatio returns the command to accept a ratio flagged as deviated
func CmdConfirmRatio() *cobra.Command {
	return cli.NewTxCmd("confirm-ratio [token]", "Accept a ratio whose jump exceeded the deviation bound", cobra.ExactArgs(1),
		func(cmd *cobra.Command, from string, args []string) error {
			msg := &ratiofeedtypes.MsgConfirmRatio{Signer: from, TokenID: args[0]}
			return cli.Broadcast(cmd, "/v1/oracle/confirm", msg, &ratiofeedtypes.RatioEntry{})
		})
}

// GetAdminTxCmd returns the authority commands
func GetAdminTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        "admin",
		Short:                      "Authority transaction commands",
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}
	cmd.AddCommand(
		CmdMint(),
		CmdAdvanceEpoch(),
		CmdSlash(),
		CmdUpdateFeedParams(),
	)
	return cmd
}

// CmdMint returns the command to mint the base asset to an address
func CmdMint() *cobra.Command {
	cmd := cli.NewTxCmd("mint [to] [amount]", "Mint tokens the signer is the minter of", cobra.ExactArgs(2),
		func(cmd *cobra.Command, from string, args []string) error {
			denom, _ := cmd.Flags().GetString(flagDenom)
			msg := &tokentypes.MsgMint{Minter: from, Denom: denom, To: args[0], Amount: args[1]}
			return cli.Broadcast(cmd, "/v1/admin/mint", msg, &app.BalanceResponse{})
		})
	cmd.Flags().String(flagDenom, restakingtypes.DefaultAssetDenom, "denom to mint")
	return cmd
}

// CmdAdvanceEpoch returns the command to move a simulated protocol one epoch forward
func CmdAdvanceEpoch() *cobra.Command {
	return cli.NewTxCmd("advance-epoch [adapter]", "Advance a simulated protocol by one epoch", cobra.ExactArgs(1),
		func(cmd *cobra.Command, from string, args []string) error {
			msg := &simulated.MsgAdvanceEpoch{Authority: from, Adapter: args[0]}
			return cli.Broadcast(cmd, "/v1/admin/advance-epoch", msg, &app.AdvanceEpochResponse{})
		})
}

// CmdSlash returns the command to slash a fraction of a target's stake
func CmdSlash() *cobra.Command {
	return cli.NewTxCmd("slash [adapter] [target] [fraction]", "Slash a delegation target on a simulated protocol", cobra.ExactArgs(3),
		func(cmd *cobra.Command, from string, args []string) error {
			msg := &simulated.MsgSlash{Authority: from, Adapter: args[0], Target: args[1], Fraction: args[2]}
			return cli.Broadcast(cmd, "/v1/admin/slash", msg, &app.SlashResponse{})
		})
}

// CmdUpdateFeedParams returns the command to change ratio staleness and deviation bounds
func CmdUpdateFeedParams() *cobra.Command {
	cmd := cli.NewTxCmd("update-feed-params", "Set the ratio feed max age and max deviation", cobra.NoArgs,
		func(cmd *cobra.Command, from string, _ []string) error {
			maxAge, _ := cmd.Flags().GetDuration("max-age")
			rawDeviation, _ := cmd.Flags().GetString("max-deviation")
			deviation, err := math.LegacyNewDecFromStr(rawDeviation)
			if err != nil {
				return fmt.Errorf("invalid max deviation: %w", err)
			}
			msg := &ratiofeedtypes.MsgUpdateParams{
				Signer: from,
				Params: ratiofeedtypes.Params{MaxAge: maxAge, MaxDeviation: deviation},
			}
			return cli.Broadcast(cmd, "/v1/admin/feed-params", msg, &ratiofeedtypes.Params{})
		})
	defaults := ratiofeedtypes.DefaultParams()
	cmd.Flags().Duration("max-age", defaults.MaxAge, "ratio age after which it is stale")
	cmd.Flags().String("max-deviation", defaults.MaxDeviation.String(), "relative change that needs confirmation")
	return cmd
}

// CmdSend returns the command to transfer tokens
func CmdSend() *cobra.Command {
	cmd := cli.NewTxCmd("send [to] [amount]", "Send tokens to another address", cobra.ExactArgs(2),
		func(cmd *cobra.Command, from string, args []string) error {
			denom, _ := cmd.Flags().GetString(flagDenom)
			msg := &tokentypes.MsgSend{From: from, To: args[0], Denom: denom, Amount: args[1]}
			return cli.Broadcast(cmd, "/v1/send", msg, &app.BalanceResponse{})
		})
	cmd.Flags().String(flagDenom, restakingtypes.DefaultShareDenom, "denom to send")
	return cmd
}
