// MonoPay - non-custodial handle-based payments from the terminal

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

const logo = "₹"

func main() {
	rootCmd := &cobra.Command{
		Use:           "monopay",
		Short:         logo + " MonoPay - pay handles in INR from a local wallet",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "config file (default ~/.monopay/config.json)")

	rootCmd.AddCommand(walletCmd())
	rootCmd.AddCommand(pinCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(handleCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(receiveCmd())
	rootCmd.AddCommand(intentCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
