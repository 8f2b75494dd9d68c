package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/monopay/pkg/payment"
	"github.com/sipeed/monopay/pkg/walletsync"
)

const postPaymentSyncTimeout = 15 * time.Second

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <handle|address>",
		Short: "Look up the wallet behind a handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.resolver.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			switch {
			case res.OK():
				fmt.Printf("%s -> %s (%s)\n", res.Input, res.Address, res.DisplayName)
			case res.Err != nil:
				fmt.Printf("%s: %s (%v)\n", res.Input, res.Status, res.Err)
			default:
				fmt.Printf("%s: %s\n", res.Input, res.Status)
			}
			return nil
		},
	}
}

func quoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote <inr>",
		Short: "Show the token amount for an INR amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inr, err := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
			if err != nil || inr <= 0 {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			q := a.oracle.Quote(ctx, inr)
			fmt.Printf("₹%.2f = %.6f %s\n", inr, q.InrToToken(inr), a.cfg.Payment.Token)
			fmt.Printf("Rate: ₹%.2f (%s, expires %s)\n", q.Rate, q.Source, q.ExpiresAt.Local().Format("15:04:05"))
			return nil
		},
	}
}

func payCmd() *cobra.Command {
	var memo string
	cmd := &cobra.Command{
		Use:   "pay <handle|address|uri> [inr]",
		Short: "Pay a handle, address or scanned payment URI",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			p, owner, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			p.Subscribe(func(s payment.Status) {
				switch s.State {
				case payment.StateResolving, payment.StateQuoting, payment.StateExecuting:
					fmt.Printf("... %s\n", s.State)
				}
			})

			req := payment.Request{Recipient: args[0], Memo: memo}
			if len(args) > 1 {
				req.Amount = args[1]
			}
			st, err := p.Start(ctx, req)
			if err != nil {
				return err
			}
			if st.State == payment.StateFailed {
				return st.Failure
			}

			in := st.Intent
			fmt.Printf("\nFrom:   %s (%s)\n", owner.Wallet.Label, owner.Wallet.Address)
			fmt.Printf("To:     %s (%s)\n", in.DisplayName, in.RecipientAddress)
			fmt.Printf("Amount: ₹%.2f = %.6f %s (rate ₹%.2f, %s)\n\n",
				in.INRAmount, in.TokenAmount, a.cfg.Payment.Token, in.Quote.Rate, in.Quote.Source)

			for st.State == payment.StatePINRequired {
				pin, err := readSecret("PIN (empty to cancel): ")
				if err != nil {
					_ = p.Cancel()
					return err
				}
				if pin == "" {
					if err := p.Cancel(); err != nil {
						return err
					}
					fmt.Println("Payment cancelled.")
					return nil
				}
				st, err = p.SubmitPIN(ctx, pin)
				if err != nil {
					return err
				}
				if st.State == payment.StatePINRequired {
					fmt.Printf("Incorrect PIN (%d failed)\n", st.PINFailures)
				}
			}

			if st.State == payment.StateFailed {
				return st.Failure
			}
			if st.Intent.Fallback {
				fmt.Println("Fast path unavailable, signed with wallet key.")
			}
			fmt.Printf("Sent. Signature: %s\n", st.Signature)
			if st.ExplorerURL != "" {
				fmt.Printf("Explorer: %s\n", st.ExplorerURL)
			}
			showRefreshedBalance(ctx, a)
			return nil
		},
	}
	cmd.Flags().StringVarP(&memo, "memo", "m", "", "payment memo")
	return cmd
}

// showRefreshedBalance runs the sync loop long enough to serve the refresh the
// pipeline requested after submission.
func showRefreshedBalance(ctx context.Context, a *app) {
	updated := make(chan walletsync.Snapshot, 1)
	a.syncer.OnUpdate(func(s walletsync.Snapshot) {
		select {
		case updated <- s:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(ctx, postPaymentSyncTimeout)
	a.syncer.Start(ctx)

	select {
	case s := <-updated:
		if s.Balance != nil {
			fmt.Printf("Balance:  %s\n", s.Balance.FormattedBalance())
		}
	case <-ctx.Done():
	}
	cancel()
	a.syncer.Wait()
}
