package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/monopay/pkg/wallet"
)

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Import, list and switch wallets",
	}
	cmd.AddCommand(walletImportCmd(), walletListCmd(), walletUseCmd(), walletDisconnectCmd())
	return cmd
}

func walletImportCmd() *cobra.Command {
	var label, handle string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a secret key (byte array, comma list or base58)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			raw, err := readSecret("Secret key: ")
			if err != nil {
				return err
			}
			w, err := a.wallets.Import(ctx, raw, label, handle)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %s (%s)\n", w.Address, w.Label)
			if w.Handle != "" {
				fmt.Printf("Handle: %s\n", w.Handle)
			}

			enrolled, err := a.gate.IsEnrolled(ctx)
			if err == nil && !enrolled {
				fmt.Println("\nNext: set a PIN with 'monopay pin enroll'")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "", "wallet label")
	cmd.Flags().StringVar(&handle, "handle", "", "register this handle for the wallet")
	return cmd
}

func walletListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List imported wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			wallets, err := a.wallets.Wallets(ctx)
			if err != nil {
				return err
			}
			if len(wallets) == 0 {
				fmt.Println("No wallets. Import one with 'monopay wallet import'.")
				return nil
			}
			active, err := a.wallets.Active(ctx)
			if err != nil && !errors.Is(err, wallet.ErrNoActiveWallet) {
				return err
			}
			for _, w := range wallets {
				marker := " "
				if active != nil && active.Address == w.Address {
					marker = "*"
				}
				fmt.Printf("%s %-14s %s %s\n", marker, w.Label, w.Address, w.Handle)
			}
			return nil
		},
	}
}

func walletUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <address>",
		Short: "Make a wallet active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := a.wallets.Switch(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Active wallet: %s (%s)\n", w.Label, w.Address)
			return nil
		},
	}
}

func walletDisconnectCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Wipe every wallet key, the session key and the PIN",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm("This deletes all keys from this device. Continue?") {
				fmt.Fprintln(os.Stderr, "Aborted.")
				return nil
			}
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.wallets.Disconnect(ctx); err != nil {
				return err
			}
			fmt.Println("Disconnected. All local keys wiped.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
