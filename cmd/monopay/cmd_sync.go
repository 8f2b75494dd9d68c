package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/sipeed/monopay/pkg/blockchain"
	"github.com/sipeed/monopay/pkg/walletsync"
)

func syncCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Show balance and recent transactions of the active wallet",
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

			if !watch {
				a.syncer.SetActive(owner.Wallet.Address)
				if err := a.syncer.RunOnce(ctx); err != nil {
					return err
				}
				printSnapshot(a, a.syncer.Snapshot())
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.syncer.OnUpdate(func(s walletsync.Snapshot) { printSnapshot(a, s) })
			a.syncer.Start(ctx)
			a.syncer.SetActive(owner.Wallet.Address)
			fmt.Fprintln(os.Stderr, "Watching. Press Ctrl+C to stop.")
			<-ctx.Done()
			a.syncer.Wait()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep refreshing until interrupted")
	return cmd
}

func printSnapshot(a *app, s walletsync.Snapshot) {
	if s.Address == "" {
		return
	}
	fmt.Printf("\nWallet:  %s\n", s.Address)
	if s.Balance != nil {
		line := s.Balance.FormattedBalance()
		if s.BalanceStale {
			line += " (stale)"
		}
		fmt.Printf("Balance: %s\n", line)
	}
	if len(s.Transactions) == 0 {
		fmt.Println("No recent transactions.")
	}
	for _, tx := range s.Transactions {
		counterparty := tx.Counterparty
		if counterparty != "" {
			counterparty = a.contacts.Name(counterparty)
		}
		status := tx.Status
		if tx.Failed {
			status = "failed"
		}
		fmt.Printf("  %s  %-4s %12.6f SOL  %-20s %s  %s\n",
			tx.Time.Local().Format("02 Jan 15:04"),
			tx.Direction,
			blockchain.LamportsToSOL(tx.Lamports),
			counterparty,
			status,
			shortSig(tx.Signature),
		)
	}
	if s.Skipped > 0 {
		fmt.Printf("  (%d transactions could not be loaded)\n", s.Skipped)
	}
}

func shortSig(sig string) string {
	if len(sig) <= 16 {
		return sig
	}
	return sig[:8] + "…" + sig[len(sig)-8:]
}

func receiveCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "receive [inr]",
		Short: "Print a payment QR code for the active wallet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var inr float64
			if len(args) == 1 {
				if _, err := fmt.Sscanf(args[0], "%g", &inr); err != nil || inr <= 0 {
					return fmt.Errorf("invalid amount %q", args[0])
				}
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
			if label == "" {
				label = owner.Wallet.Handle
			}
			uri := blockchain.PaymentURI(owner.Wallet.Address, inr, label)
			qrterminal.GenerateHalfBlock(uri, qrterminal.L, os.Stdout)
			fmt.Println(uri)
			return nil
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "", "label shown to the payer")
	return cmd
}
