package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/cosmos/cosmos-sdk/client"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/spf13/cobra"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

const flagReceiver = "receiver"

// GetTxCmd returns the transaction commands for the restaking module
func GetTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        types.ModuleName,
		Short:                      "Restaking vault transaction commands",
		DisableFlagParsing:         true,
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}

	cmd.AddCommand(
		CmdDeposit(),
		CmdWithdraw(),
		CmdFlashWithdraw(),
		CmdRedeem(),
		CmdDelegate(),
		CmdUndelegate(),
		CmdBatchDelegate(),
		CmdBatchUndelegate(),
		CmdClaim(),
		CmdSyncDelegations(),
		CmdSettleEpochs(),
		CmdUpdateParams(),
	)

	return cmd
}

// Broadcast validates msg and posts it to path, printing the response
func Broadcast(cmd *cobra.Command, path string, msg sdk.Msg, out interface{}) error {
	if v, ok := msg.(interface{ ValidateBasic() error }); ok {
		if err := v.ValidateBasic(); err != nil {
			return err
		}
	}
	if err := ClientFromCmd(cmd).Post(path, msg, out); err != nil {
		return err
	}
	return PrintJSON(cmd, out)
}

// NewTxCmd builds a command that signs as --from and talks to --api
func NewTxCmd(use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, from string, args []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString(FlagFrom)
			return run(cmd, from, args)
		},
	}
	AddClientFlags(cmd)
	addSignerFlag(cmd)
	return cmd
}

func receiverOr(cmd *cobra.Command, from string) string {
	if r, _ := cmd.Flags().GetString(flagReceiver); r != "" {
		return r
	}
	return from
}

// CmdDeposit returns the command to deposit base asset for claim tokens
func CmdDeposit() *cobra.Command {
	cmd := NewTxCmd("deposit [amount]", "Deposit base asset and mint claim tokens", cobra.ExactArgs(1),
		func(cmd *cobra.Command, from string, args []string) error {
			msg := &types.MsgDeposit{Sender: from, Receiver: receiverOr(cmd, from), Amount: args[0]}
			return Broadcast(cmd, "/v1/deposit", msg, &types.MsgDepositResponse{})
		})
	cmd.Flags().String(flagReceiver, "", "address receiving the claim tokens (defaults to --from)")
	return cmd
}

// CmdWithdraw returns the command to queue a withdrawal
func CmdWithdraw() *cobra.Command {
	cmd := NewTxCmd("withdraw [shares]", "Burn claim tokens and queue a withdrawal", cobra.ExactArgs(1),
		func(cmd *cobra.Command, from string, args []string) error {
			msg := &types.MsgWithdraw{Sender: from, Receiver: receiverOr(cmd, from), Shares: args[0]}
			return Broadcast(cmd, "/v1/withdraw", msg, &types.MsgWithdrawResponse{})
		})
	cmd.Flags().String(flagReceiver, "", "beneficiary of the withdrawal (defaults to --from)")
	return cmd
}

func CmdFlashWithdraw() *cobra.Command {
	cmd := NewTxCmd("flash-withdraw [shares]", "Burn claim tokens and withdraw instantly for a fee", cobra.ExactArgs(1),
		func(cmd *cobra.Command, from string, args []string) error {
			msg := &types.MsgFlashWithdraw{Sender: from, Receiver: receiverOr(cmd, from), Shares: args[0]}
			return Broadcast(cmd, "/v1/flash-withdraw", msg, &types.MsgFlashWithdrawResponse{})
		})
	cmd.Flags().String(flagReceiver, "", "address receiving the assets (defaults to --from)")
	return cmd
}

// CmdRedeem returns the command to pay out fulfilled withdrawals
func CmdRedeem() *cobra.Command {
	return NewTxCmd("redeem [beneficiary]", "Redeem every fulfilled withdrawal of a beneficiary", cobra.MaximumNArgs(1),
		func(cmd *cobra.Command, from string, args []string) error {
			beneficiary := from
			if len(args) == 1 {
				beneficiary = args[0]
			}
			msg := &types.MsgRedeem{Caller: from, Beneficiary: beneficiary}
			return Broadcast(cmd, "/v1/redeem", msg, &types.MsgRedeemResponse{})
		})
}

func CmdDelegate() *cobra.Command {
	return NewTxCmd("delegate [adapter] [target] [amount]", "Delegate free balance through an adapter", cobra.ExactArgs(3),
		func(cmd *cobra.Command, from string, args []string) error {
			msg := &types.MsgDelegate{Operator: from, Adapter: args[0], Target: args[1], Amount: args[2]}
			return Broadcast(cmd, "/v1/operator/delegate", msg, &types.MsgDelegateResponse{})
		})
}

func CmdUndelegate() *cobra.Command {
	return NewTxCmd("undelegate [adapter] [target] [amount]", "Start undelegating from a target", cobra.ExactArgs(3),
		func(cmd *cobra.Command, from string, args []string) error {
			msg := &types.MsgUndelegate{Operator: from, Adapter: args[0], Target: args[1], Amount: args[2]}
			return Broadcast(cmd, "/v1/operator/undelegate", msg, &types.MsgUndelegateResponse{})
		})
}

// BatchEntry is one line of a batch file
type BatchEntry struct {
	Adapter string `json:"adapter"`
	Target  string `json:"target"`
	Amount  string `json:"amount"`
	Data    []byte `json:"data,omitempty"`
}

func readBatch(path string) (adapters, targets, amounts []string, data [][]byte, err error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	var entries []BatchEntry
	if err := json.Unmarshal(bz, &entries); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("invalid batch file: %w", err)
	}
	for _, e := range entries {
		adapters = append(adapters, e.Adapter)
		targets = append(targets, e.Target)
		amounts = append(amounts, e.Amount)
		data = append(data, e.Data)
	}
	return adapters, targets, amounts, data, nil
}

// CmdBatchDelegate returns the command to delegate a JSON list of entries atomically
func CmdBatchDelegate() *cobra.Command {
	return NewTxCmd("batch-delegate [file.json]", "Delegate several entries atomically", cobra.ExactArgs(1),
		func(cmd *cobra.Command, from string, args []string) error {
			adapters, targets, amounts, data, err := readBatch(args[0])
			if err != nil {
				return err
			}
			msg := &types.MsgBatchDelegate{Operator: from, Adapters: adapters, Targets: targets, Amounts: amounts, Data: data}
			return Broadcast(cmd, "/v1/operator/batch-delegate", msg, &types.MsgDelegateResponse{})
		})
}

func CmdBatchUndelegate() *cobra.Command {
	return NewTxCmd("batch-undelegate [file.json]", "Undelegate several entries atomically", cobra.ExactArgs(1),
		func(cmd *cobra.Command, from string, args []string) error {
			adapters, targets, amounts, data, err := readBatch(args[0])
			if err != nil {
				return err
			}
			msg := &types.MsgBatchUndelegate{Operator: from, Adapters: adapters, Targets: targets, Amounts: amounts, Data: data}
			return Broadcast(cmd, "/v1/operator/batch-undelegate", msg, &types.MsgUndelegateResponse{})
		})
}

// CmdClaim returns the command to pull matured undelegations for an epoch
func CmdClaim() *cobra.Command {
	return NewTxCmd("claim [epoch] [adapter]", "Claim matured undelegations of an adapter", cobra.ExactArgs(2),
		func(cmd *cobra.Command, from string, args []string) error {
			epoch, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid epoch: %w", err)
			}
			msg := &types.MsgClaim{Operator: from, Epoch: epoch, Adapter: args[1]}
			return Broadcast(cmd, "/v1/operator/claim", msg, &types.MsgClaimResponse{})
		})
}

func CmdSyncDelegations() *cobra.Command {
	return NewTxCmd("sync", "Reconcile positions with adapter balances", cobra.NoArgs,
		func(cmd *cobra.Command, from string, _ []string) error {
			return Broadcast(cmd, "/v1/operator/sync", &types.MsgSyncDelegations{Operator: from}, &types.MsgSyncDelegationsResponse{})
		})
}

func CmdSettleEpochs() *cobra.Command {
	return NewTxCmd("settle", "Close and fulfil epochs free balance can cover", cobra.NoArgs,
		func(cmd *cobra.Command, from string, _ []string) error {
			return Broadcast(cmd, "/v1/operator/settle", &types.MsgSettleEpochs{Operator: from}, &types.MsgSettleEpochsResponse{})
		})
}

// CmdUpdateParams returns the command to replace the vault params from a JSON file
func CmdUpdateParams() *cobra.Command {
	return NewTxCmd("update-params [params.json]", "Replace vault parameters", cobra.ExactArgs(1),
		func(cmd *cobra.Command, from string, args []string) error {
			bz, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var params types.Params
			if err := json.Unmarshal(bz, &params); err != nil {
				return fmt.Errorf("invalid params file: %w", err)
			}
			msg := &types.MsgUpdateParams{Authority: from, Params: params}
			return Broadcast(cmd, "/v1/admin/params", msg, &types.MsgUpdateParamsResponse{})
		})
}
