package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"solana-phoenix-scanner/internal/app"
	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/orchestrator"
)

func (c *cli) discoverCmd() *cobra.Command {
	var chains []string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery cycle",
		Long: `Run the search battery for each chain, score every candidate above the
market cap floor and persist tokens, scores and alerts.

Examples:
  phoenixctl discover
  phoenixctl discover --chain solana --chain base`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Orchestrator.RunDiscoveryCycle(cmd.Context(), chains)
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(res)
				}
				w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CHAIN\tTERMS\tPAIRS\tCANDIDATES\tBELOW_MCAP\tUPDATED\tNOT_FOUND\tFAILED\tALERTS")
				for _, cr := range res.Chains {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
						cr.Chain, cr.Stats.TermsQueried, cr.Stats.PairsSeen, cr.Stats.Candidates,
						cr.BelowMarketCap, cr.Updated, cr.NotFound, cr.Failed, cr.AlertsCreated)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringSliceVar(&chains, "chain", nil, "Chain to scan (repeatable; default from config)")
	return cmd
}

func (c *cli) updateCmd() *cobra.Command {
	var chain string
	cmd := &cobra.Command{
		Use:   "update <address>",
		Short: "Fetch, score and store one token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Orchestrator.UpdateTokenData(cmd.Context(), chain, args[0])
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(res)
				}
				fmt.Fprintf(c.out, "%s (%s) price=$%g crash=%.1f%% score=%.1f variant=%s\n",
					res.Token.Symbol, res.Token.Address, res.Token.CurrentPrice,
					res.Token.CrashPercentage, res.Score.BRSScore, res.Score.Variant)
				if res.AlertCreated {
					fmt.Fprintf(c.out, "alert created: %s\n", res.Alert.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&chain, "chain", domain.ChainSolana, "Chain of the token")
	return cmd
}

func (c *cli) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <address>",
		Short: "Print the analysis of a scored token as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				analysis, err := a.Orchestrator.GetTokenAnalysis(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.printJSON(analysis)
			})
		},
	}
}

func (c *cli) topCmd() *cobra.Command {
	var q orchestrator.TopQuery
	cmd := &cobra.Command{
		Use:   "top",
		Short: "List the best-scored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				rows, err := a.Orchestrator.GetTopPhoenixes(cmd.Context(), q)
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(rows)
				}
				w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SYMBOL\tCHAIN\tSCORE\tCATEGORY\tPRICE\tCRASH%\tLIQUIDITY\tVOLUME_24H\tADDRESS")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%g\t%.1f\t%.0f\t%.0f\t%s\n",
						r.Symbol, r.Chain, r.BRSScore, r.Category, r.CurrentPrice,
						r.CrashPercentage, r.LiquidityUSD, r.Volume24h, r.Address)
				}
				return w.Flush()
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.Chain, "chain", "", "Chain filter (default all)")
	f.IntVar(&q.Limit, "limit", orchestrator.DefaultTopLimit, "Maximum rows")
	f.Float64Var(&q.MinScore, "min-score", 0, "Minimum BRS score")
	f.Float64Var(&q.MinLiquidity, "min-liquidity", 0, "Minimum liquidity in USD")
	f.Float64Var(&q.MinMarketCap, "min-market-cap", 0, "Minimum market cap in USD")
	f.Float64Var(&q.MinVolume, "min-volume", 0, "Minimum 24h volume in USD")
	return cmd
}

func (c *cli) alertsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List the newest alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				alerts, err := a.Orchestrator.RecentAlerts(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(alerts)
				}
				w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tSYMBOL\tTYPE\tSCORE\tSENT\tADDRESS")
				for _, al := range alerts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%t\t%s\n",
						al.Timestamp.UTC().Format("2006-01-02 15:04"), al.Symbol, al.AlertType,
						al.ScoreAtAlert, al.SentStatus, al.TokenAddress)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", orchestrator.DefaultAlertsLimit, "Maximum rows")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var (
		userID    string
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "watch <address>",
		Short: "Add a token to a watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				w, added, err := a.Orchestrator.AddToWatchlist(cmd.Context(), args[0], userID, threshold)
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(w)
				}
				state := "already watched"
				if added {
					state = "added"
				}
				fmt.Fprintf(c.out, "%s: %s for %s (threshold %.0f)\n", state, w.TokenAddress, w.UserID, w.AlertThreshold)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", domain.DefaultUserID, "Watchlist owner")
	cmd.Flags().Float64Var(&threshold, "threshold", domain.DefaultAlertThreshold, "Alert threshold")
	return cmd
}

func (c *cli) dispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver pending alerts once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Orchestrator.DispatchPendingAlerts(cmd.Context())
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(res)
				}
				fmt.Fprintf(c.out, "sent=%d failed=%d dead_lettered=%d\n", res.Sent, res.Failed, res.DeadLettered)
				return nil
			})
		},
	}
}
