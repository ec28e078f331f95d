package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/liquidator"
	"github.com/defistate/defistate-vault-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-vault-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

const (
	defaultURL     = "http://127.0.0.1:8545"
	defaultTimeout = 10 * time.Second

	watchBufferSize = 100
)

// cli holds the flags shared by every command.
type cli struct {
	url     string
	timeout time.Duration
	verbose bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Operate a vault node over JSON-RPC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&c.url, "url", defaultURL, "vault node endpoint (http:// or ws://)")
	rootCmd.PersistentFlags().DurationVar(&c.timeout, "timeout", defaultTimeout, "per-call timeout")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log stream client activity to stderr")

	rootCmd.AddCommand(
		c.registerCmd(),
		c.amountCmd("deposit", "Deposit an asset and receive shares", "amount"),
		c.amountCmd("withdraw", "Burn shares and receive the underlying asset", "shares"),
		c.amountCmd("borrow", "Borrow from the pool as the liquidator account", "amount"),
		c.liquidateCmd(),
		c.poolCmd(),
		c.stateCmd(),
		c.balanceCmd(),
		c.accountsCmd(),
		c.watchCmd(),
	)
	return rootCmd
}

// call dials the node, invokes method in the vault namespace and maps wire
// errors back onto engine errors.
func (c *cli) call(ctx context.Context, result any, method string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(ctx, c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}
	defer rpcClient.Close()

	return engine.FromWire(rpcClient.CallContext(ctx, result, server.RpcNamespace+"_"+method, args...))
}

func (c *cli) registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register [asset] [share-asset]",
		Short: "Map an underlying asset to its share asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := parseAsset(args[0])
			if err != nil {
				return err
			}
			shareAsset, err := parseAsset(args[1])
			if err != nil {
				return err
			}
			var added bool
			if err := c.call(cmd.Context(), &added, "register", asset, shareAsset); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]bool{"added": added})
		},
	}
}

// amountCmd builds the caller/asset/amount commands that share one shape.
func (c *cli) amountCmd(method, short, amountName string) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("%s [caller] [asset] [%s]", method, amountName),
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			asset, err := parseAsset(args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}

			if method == "borrow" {
				if err := c.call(cmd.Context(), nil, method, caller, asset, amount); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]*uint256.Int{"borrowed": amount})
			}
			var out *uint256.Int
			if err := c.call(cmd.Context(), &out, method, caller, asset, amount); err != nil {
				return err
			}
			key := "minted"
			if method == "withdraw" {
				key = "payout"
			}
			return printJSON(cmd.OutOrStdout(), map[string]*uint256.Int{key: out})
		},
	}
}

func (c *cli) liquidateCmd() *cobra.Command {
	var target, payAsset, getAsset, pay, borrow, limit string
	cmd := &cobra.Command{
		Use:   "liquidate [caller]",
		Short: "Borrow from the pool and liquidate a target account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			req := liquidator.Request{}
			if req.TargetUser, err = parseAddress(target); err != nil {
				return fmt.Errorf("--target: %w", err)
			}
			if req.PayAsset, err = parseAsset(payAsset); err != nil {
				return fmt.Errorf("--pay-asset: %w", err)
			}
			if req.GetAsset, err = parseAsset(getAsset); err != nil {
				return fmt.Errorf("--get-asset: %w", err)
			}
			if req.PayAmount, err = parseAmount(pay); err != nil {
				return fmt.Errorf("--pay: %w", err)
			}
			if req.BorrowAmount, err = parseAmount(borrow); err != nil {
				return fmt.Errorf("--borrow: %w", err)
			}
			if req.MaxLiquidatable, err = parseAmount(limit); err != nil {
				return fmt.Errorf("--max: %w", err)
			}

			var res liquidator.Result
			if err := c.call(cmd.Context(), &res, "liquidate", caller, req); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "account being liquidated")
	cmd.Flags().StringVar(&payAsset, "pay-asset", "", "asset paid to the target")
	cmd.Flags().StringVar(&getAsset, "get-asset", "", "asset seized from the target")
	cmd.Flags().StringVar(&pay, "pay", "0", "amount of pay-asset paid")
	cmd.Flags().StringVar(&borrow, "borrow", "0", "amount of pay-asset borrowed from the pool")
	cmd.Flags().StringVar(&limit, "max", "0", "cap on the seized amount, 0 for none")
	for _, name := range []string{"target", "pay-asset", "get-asset"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (c *cli) poolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pool [asset]",
		Short: "Show one pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := parseAsset(args[0])
			if err != nil {
				return err
			}
			var pool engine.PoolState
			if err := c.call(cmd.Context(), &pool, "pool", asset); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pool)
		},
	}
}

func (c *cli) stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show every pool as a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var state engine.State
			if err := c.call(cmd.Context(), &state, "state"); err != nil {
				return err
			}
			return printState(cmd.OutOrStdout(), &state)
		},
	}
}

func (c *cli) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [asset] [account]",
		Short: "Show the ledger balance of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := parseAsset(args[0])
			if err != nil {
				return err
			}
			account, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			var balance *uint256.Int
			if err := c.call(cmd.Context(), &balance, "balanceOf", asset, account); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]*uint256.Int{"balance": balance})
		},
	}
}

func (c *cli) accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "Show the sovereign module accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var accounts server.AccountsResult
			if err := c.call(cmd.Context(), &accounts, "accounts"); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), accounts)
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the state stream (requires a ws:// url)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			handler := slog.NewTextHandler(io.Discard, nil)
			if c.verbose {
				handler = slog.NewTextHandler(cmd.ErrOrStderr(), nil)
			}
			stream, err := client.NewClient(ctx, client.Config{
				URL:        c.url,
				Logger:     slog.New(handler).With("component", "stream-client"),
				BufferSize: watchBufferSize,
			})
			if err != nil {
				return err
			}

			for seen := 0; count == 0 || seen < count; seen++ {
				select {
				case state := <-stream.State():
					if err := printState(cmd.OutOrStdout(), state); err != nil {
						return err
					}
				case <-stream.Err():
					return nil
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many states, 0 to run until interrupted")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printState renders a snapshot as a table ordered by asset.
func printState(w io.Writer, state *engine.State) error {
	assets := make([]engine.AssetID, 0, len(state.Pools))
	for asset := range state.Pools {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })

	fmt.Fprintf(w, "sequence %d, %d pools\n", state.Sequence, len(state.Pools))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tSHARE ASSET\tBALANCE\tTOTAL SHARES")
	for _, asset := range assets {
		p := state.Pools[asset]
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", p.Asset, p.ShareAsset, p.Balance.Dec(), p.TotalShares.Dec())
	}
	return tw.Flush()
}

func parseAsset(s string) (engine.AssetID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid asset id %q", s)
	}
	return engine.AssetID(v), nil
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
