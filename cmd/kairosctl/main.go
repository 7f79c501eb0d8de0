package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/kairos/internal/ai"
	"github.com/suPer8Hu/kairos/internal/auth"
	"github.com/suPer8Hu/kairos/internal/chat"
	"github.com/suPer8Hu/kairos/internal/config"
	"github.com/suPer8Hu/kairos/internal/db"
	"github.com/suPer8Hu/kairos/internal/intent"
	"github.com/suPer8Hu/kairos/internal/quota"
	"github.com/suPer8Hu/kairos/internal/store/redisstore"
	"gorm.io/gorm"
)

var jsonOutput bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kairosctl",
		Short:         "Operate a Kairos chat deployment",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	root.AddCommand(classifyCmd(), tokenCmd(), quotaCmd())
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Show the intent and fields extracted from a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			got := intent.Classify(chat.Sanitize(strings.Join(args, " ")))
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, got)
			}
			fmt.Fprintf(out, "intent: %s\n", got.Kind)
			p := got.Payload
			switch got.Kind {
			case intent.Task:
				fmt.Fprintf(out, "title: %s\npriority: %s\n", p.Title, p.Priority)
			case intent.Expense:
				fmt.Fprintf(out, "amount: %.2f\ncategory: %s\n", p.Amount, p.Category)
			case intent.Income:
				fmt.Fprintf(out, "amount: %.2f\nsource: %s\n", p.Amount, p.Source)
			case intent.Fitness:
				fmt.Fprintf(out, "exercise: %s\nduration_minutes: %d\n", p.Exercise, p.DurationMinutes)
			}
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || uid == 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			tok, err := auth.SignToken(config.Load().JWTSecret, uid, ttl)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{"user_id": uid, "token": tok, "expires_in": ttl.String()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

// openQuotas builds the manager the server would use from the same config.
func openQuotas(cfg config.Config) (*quota.Manager, func(), error) {
	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	var counters quota.Store
	switch cfg.QuotaBackend {
	case "db":
		if err := gdb.AutoMigrate(&quota.Usage{}); err != nil {
			return nil, nil, err
		}
		counters = quota.NewDBStore(gdb)
	case "redis":
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		closeFn = func() { _ = rds.Close() }
		counters = quota.NewRedisStore(rds, cfg.QuotaWindow)
	default:
		return nil, nil, fmt.Errorf("unsupported QUOTA_BACKEND=%q", cfg.QuotaBackend)
	}
	return quota.NewManager(counters, chat.NewRepo(gdb), cfg.QuotaLimits), closeFn, nil
}

func quotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect or reset per-session quota counters",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the active mode and counters of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := openQuotas(config.Load())
			if err != nil {
				return err
			}
			defer closeFn()
			return showQuota(cmd.Context(), cmd.OutOrStdout(), m, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <session-id> [mode]",
		Short: "Clear one metered counter, or all of them",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var mode ai.Mode
			if len(args) == 2 {
				m, err := ai.ParseMode(args[1])
				if err != nil {
					return err
				}
				if !m.Metered() {
					return fmt.Errorf("%s is not metered", m)
				}
				mode = m
			}
			m, closeFn, err := openQuotas(config.Load())
			if err != nil {
				return err
			}
			defer closeFn()
			if err := m.Reset(cmd.Context(), args[0], mode); err != nil {
				return err
			}
			return showQuota(cmd.Context(), cmd.OutOrStdout(), m, args[0])
		},
	})
	return cmd
}

func showQuota(ctx context.Context, out io.Writer, m *quota.Manager, sessionID string) error {
	counters, err := m.Usage(ctx, sessionID)
	if err != nil {
		return err
	}
	mode, err := m.ActiveMode(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		mode = ""
	} else if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(out, map[string]any{"session_id": sessionID, "mode": mode, "quotas": counters})
	}
	if mode != "" {
		fmt.Fprintf(out, "session %s mode=%s\n", sessionID, mode)
	} else {
		fmt.Fprintf(out, "session %s (no session row)\n", sessionID)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tUSED\tLIMIT\tREMAINING")
	for _, c := range counters {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", c.Mode, c.Used, c.Limit, c.Remaining())
	}
	return tw.Flush()
}
