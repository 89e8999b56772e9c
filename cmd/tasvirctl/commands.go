package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasvir/internal/billing"
	"tasvir/internal/bootstrap"
	"tasvir/internal/db"
	"tasvir/internal/domain"
	"tasvir/internal/infra/credentials"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
			defer cancel()

			conn, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer conn.Close()

			applied, err := db.Migrate(ctx, conn)
			for _, version := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", version)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			}
			return nil
		},
	}
}

func newPlanCmd(v *viper.Viper) *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Manage user plans"}

	var userID, name string
	set := &cobra.Command{
		Use:   "set",
		Short: "Assign a plan and its credit allotment to a user without billing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := billing.LookupPlan(name)
			if err != nil {
				return err
			}
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user is required")
			}
			return withDeps(cmd, v, func(ctx context.Context, deps *bootstrap.Deps) error {
				user, err := deps.Ledger.SetPlan(ctx, userID, p)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"user_id": user.ID, "plan": user.Plan, "credits": user.Credits})
			})
		},
	}
	set.Flags().StringVar(&userID, "user", "", "user id")
	set.Flags().StringVar(&name, "plan", string(domain.UserPlanPro), "plan name (starter, pro, business)")

	plans := &cobra.Command{
		Use:   "list",
		Short: "Print the purchasable plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), billing.Plans())
		},
	}

	plan.AddCommand(set, plans)
	return plan
}

// discountFlags holds the raw flag values of "discount create".
type discountFlags struct {
	code     string
	kind     string
	value    int64
	capacity int
	expires  string
	inactive bool
}

func (f discountFlags) toDiscount(now time.Time) (domain.Discount, error) {
	expires, err := parseExpiry(f.expires, now)
	if err != nil {
		return domain.Discount{}, err
	}
	return domain.Discount{
		Code:          f.code,
		DiscountType:  domain.DiscountType(strings.ToLower(strings.TrimSpace(f.kind))),
		DiscountValue: f.value,
		Capacity:      f.capacity,
		ExpiresAt:     expires,
		IsActive:      !f.inactive,
	}, nil
}

// parseExpiry accepts an RFC 3339 timestamp or a duration relative to now.
// An empty value means the code never expires.
func parseExpiry(raw string, now time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		ts = ts.UTC()
		return &ts, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("--expires %q: want RFC 3339 or a positive duration", raw)
	}
	ts := now.Add(d).UTC()
	return &ts, nil
}

func newDiscountCmd(v *viper.Viper) *cobra.Command {
	discount := &cobra.Command{Use: "discount", Short: "Manage discount codes"}

	var f discountFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a discount code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := f.toDiscount(time.Now())
			if err != nil {
				return err
			}
			return withDeps(cmd, v, func(ctx context.Context, deps *bootstrap.Deps) error {
				created, err := deps.DiscountSvc.Create(ctx, d)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), created)
			})
		},
	}
	create.Flags().StringVar(&f.code, "code", "", "code customers enter")
	create.Flags().StringVar(&f.kind, "type", string(domain.DiscountTypePercentage), "percentage or fixed")
	create.Flags().Int64Var(&f.value, "value", 0, "percent off, or toman off for fixed codes")
	create.Flags().IntVar(&f.capacity, "capacity", 1, "number of redemptions")
	create.Flags().StringVar(&f.expires, "expires", "", "RFC 3339 expiry or a duration such as 720h")
	create.Flags().BoolVar(&f.inactive, "inactive", false, "create the code disabled")

	var code, planName string
	preview := &cobra.Command{
		Use:   "preview",
		Short: "Price a plan with a code without redeeming it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := billing.LookupPlan(planName)
			if err != nil {
				return err
			}
			return withDeps(cmd, v, func(ctx context.Context, deps *bootstrap.Deps) error {
				q, err := deps.DiscountSvc.Preview(ctx, code, p.Price)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), q)
			})
		},
	}
	preview.Flags().StringVar(&code, "code", "", "discount code")
	preview.Flags().StringVar(&planName, "plan", string(domain.UserPlanPro), "plan to price")

	discount.AddCommand(create, preview)
	return discount
}

func newPurchaseCmd(v *viper.Viper) *cobra.Command {
	var req billing.PurchaseRequest
	cmd := &cobra.Command{
		Use:   "purchase",
		Short: "Record a confirmed plan purchase for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, v, func(ctx context.Context, deps *bootstrap.Deps) error {
				receipt, err := deps.Billing.Purchase(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"entry":   receipt.Entry,
					"credits": receipt.User.Credits,
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&req.Plan, "plan", string(domain.UserPlanPro), "plan name")
	cmd.Flags().StringVar(&req.DiscountCode, "code", "", "discount code to redeem")
	cmd.Flags().StringVar(&req.Country, "country", "", "ISO country of the buyer")
	return cmd
}

func newReplayCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <task-id>",
		Short: "Re-run the history and refund effects of a settled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, v, func(ctx context.Context, deps *bootstrap.Deps) error {
				task, err := deps.Generation.ReplayEffects(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"task_id": task.ID, "status": task.Status})
			})
		},
	}
}

func newCreditsCmd(v *viper.Viper) *cobra.Command {
	credits := &cobra.Command{Use: "credits", Short: "Credit maintenance"}
	credits.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Zero monthly usage counters that are due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, v, func(ctx context.Context, deps *bootstrap.Deps) error {
				n, err := deps.Ledger.ResetMonthly(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %d users\n", n)
				return nil
			})
		},
	})
	return credits
}

func newSweepCmd(v *viper.Viper) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-check open tasks that have not moved recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, v, func(ctx context.Context, deps *bootstrap.Deps) error {
				after := olderThan
				if after <= 0 {
					after = deps.Config.PollStaleAfter
				}
				n, err := deps.Generation.SweepStale(ctx, after)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checked %d tasks\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "minimum idle time (default: POLL_STALE_AFTER)")
	return cmd
}

func newCredentialsCmd(v *viper.Viper) *cobra.Command {
	creds := &cobra.Command{Use: "credentials", Short: "Manage provider API keys stored in the database"}

	var provider, token string
	set := &cobra.Command{
		Use:   "set",
		Short: "Store the API key for a provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(token) == "" {
				token = strings.TrimSpace(v.GetString(provider + "_api_key"))
			}
			return withDeps(cmd, v, func(ctx context.Context, deps *bootstrap.Deps) error {
				if deps.Credentials == nil {
					return errors.New("credentials store unavailable")
				}
				if err := deps.Credentials.SetToken(ctx, provider, token); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s credentials stored\n", strings.ToLower(provider))
				return nil
			})
		},
	}
	set.Flags().StringVar(&provider, "provider", credentials.ProviderKie, "provider name (kie or sms)")
	set.Flags().StringVar(&token, "token", "", "API key (default: TASVIR_<PROVIDER>_API_KEY)")

	list := &cobra.Command{
		Use:   "list",
		Short: "Show stored keys by fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, v, func(ctx context.Context, deps *bootstrap.Deps) error {
				if deps.Credentials == nil {
					return errors.New("credentials store unavailable")
				}
				stored, err := deps.Credentials.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stored)
			})
		},
	}

	var unsetProvider string
	unset := &cobra.Command{
		Use:   "unset",
		Short: "Remove the stored API key for a provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, v, func(ctx context.Context, deps *bootstrap.Deps) error {
				if deps.Credentials == nil {
					return errors.New("credentials store unavailable")
				}
				removed, err := deps.Credentials.Delete(ctx, unsetProvider)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "no %s credentials stored\n", strings.ToLower(unsetProvider))
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s credentials removed\n", strings.ToLower(unsetProvider))
				return nil
			})
		},
	}
	unset.Flags().StringVar(&unsetProvider, "provider", "", "provider name (kie or sms)")
	_ = unset.MarkFlagRequired("provider")

	creds.AddCommand(set, list, unset)
	return creds
}
