package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sipeed/monopay/pkg/logger"
)

func pinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage the payment PIN",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "enroll",
		Short: "Set or replace the 4-6 digit PIN",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			pin, err := readSecret("New PIN: ")
			if err != nil {
				return err
			}
			again, err := readSecret("Repeat PIN: ")
			if err != nil {
				return err
			}
			if pin != again {
				return errors.New("PINs do not match")
			}
			if err := a.gate.Enroll(ctx, pin); err != nil {
				return err
			}
			fmt.Println("PIN set.")

			if a.cfg.Payment.FastPathEnabled {
				if _, err := a.backend.EnrollPin(ctx, pin); err != nil {
					logger.WarnCF("cli", "Backend PIN enrollment failed", map[string]any{"error": err.Error()})
					fmt.Println("Backend PIN not registered; payments will use the wallet key.")
				}
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Remove the PIN",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.gate.Reset(ctx); err != nil {
				return err
			}
			fmt.Println("PIN removed. Enroll a new one before paying.")
			return nil
		},
	})
	return cmd
}
