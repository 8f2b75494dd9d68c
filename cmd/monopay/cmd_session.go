package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sipeed/monopay/pkg/api"
	"github.com/sipeed/monopay/pkg/resolver"
	"github.com/sipeed/monopay/pkg/session"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the fast-path session key",
	}

	var perTx, daily float64
	var ttl time.Duration
	open := &cobra.Command{
		Use:   "open",
		Short: "Register a session key with spend limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			owner, err := a.wallets.Session(ctx)
			if err != nil {
				return err
			}
			s, err := a.sessions.Open(ctx, owner.Wallet.Address, uuid.NewString(), session.Limits{
				PerTxINR: perTx,
				DailyINR: daily,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			printSession(s)
			return nil
		},
	}
	open.Flags().Float64Var(&perTx, "per-tx", 2000, "per-payment limit in INR")
	open.Flags().Float64Var(&daily, "daily", 10000, "daily limit in INR")
	open.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "session lifetime")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.sessions.Current(ctx)
			if err != nil {
				return err
			}
			if s == nil {
				fmt.Println("No session. Payments use the wallet key.")
				return nil
			}
			printSession(s)
			return nil
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Delete the local session key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.sessions.Revoke(ctx)
		},
	}

	cmd.AddCommand(open, status, revoke)
	return cmd
}

func printSession(s *session.Session) {
	fmt.Printf("Session:   %s (%s)\n", s.ID, s.Status)
	fmt.Printf("Wallet:    %s\n", s.Wallet)
	fmt.Printf("Limits:    ₹%.2f per payment, ₹%.2f daily (₹%.2f left today)\n",
		s.PerTxLimitINR, s.DailyLimitINR, s.RemainingTodayINR)
	fmt.Printf("Expires:   %s\n", s.ExpiresAt.Local().Format(time.RFC1123))
	if len(s.Key) == 0 {
		fmt.Println("Key:       not on this device")
	}
}

func handleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handle",
		Short: "Manage payment handles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "register <handle>",
		Short: "Bind a handle to the active wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, ok := resolver.NormalizeHandle(args[0])
			if !ok {
				return fmt.Errorf("invalid handle %q", args[0])
			}
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			owner, err := a.wallets.Session(ctx)
			if err != nil {
				return err
			}
			resp, err := a.backend.RegisterHandle(ctx, handle, owner.Wallet.Address)
			if err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", resp.Handle, resp.Wallet)
			return nil
		},
	})
	return cmd
}

func intentCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "intent <id>",
		Short: "Show a backend payment intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			get := a.backend.GetPaymentIntent
			if wait {
				get = func(ctx context.Context, id string) (*api.PaymentIntentStatusResponse, error) {
					return a.backend.WaitIntent(ctx, id, 5*time.Second)
				}
			}
			resp, err := get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Intent:    %s\n", resp.ID)
			fmt.Printf("Status:    %s\n", resp.Status)
			if resp.Mode != "" {
				fmt.Printf("Mode:      %s\n", resp.Mode)
			}
			if resp.Signature != "" {
				fmt.Printf("Signature: %s\n", resp.Signature)
			}
			if resp.ExplorerURL != "" {
				fmt.Printf("Explorer:  %s\n", resp.ExplorerURL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until the intent settles")
	return cmd
}
