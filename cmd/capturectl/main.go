package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mpesa-capture/internal/logger"
	"mpesa-capture/internal/parser"
	"mpesa-capture/internal/pending/bolt"
)

var (
	dbPath string
	sender string
)

var rootCmd = &cobra.Command{
	Use:   "capturectl",
	Short: "Inspect and manage captured MPESA transactions",
	Long:  `A CLI tool to run the MPESA message parser and manage the pending-transactions store used by the capture daemon.`,
}

var parseCmd = &cobra.Command{
	Use:   "parse [message]",
	Short: "Parse an MPESA message and print the extracted transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := args[0]

		if !parser.IsMpesa(sender, body) {
			return fmt.Errorf("not an MPESA message")
		}

		rec := parser.Parse(body)
		if rec == nil {
			return fmt.Errorf("failed to extract a transaction from the message")
		}
		rec.Sender = sender

		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode transaction: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Manage the pending-transactions store",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := bolt.Open(dbPath, logger.New())
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list pending transactions: %w", err)
		}

		out, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode transactions: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

var pendingRemoveCmd = &cobra.Command{
	Use:   "remove [code]",
	Short: "Remove one queued transaction by its code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := bolt.Open(dbPath, logger.New())
		if err != nil {
			return err
		}
		defer store.Close()

		found, err := store.RemoveByCode(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to remove transaction: %w", err)
		}
		if !found {
			return fmt.Errorf("no queued transaction with code %s", args[0])
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

var pendingClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every queued transaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := bolt.Open(dbPath, logger.New())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Clear(context.Background()); err != nil {
			return fmt.Errorf("failed to clear pending transactions: %w", err)
		}
		fmt.Println("cleared")
		return nil
	},
}

func init() {
	parseCmd.Flags().StringVarP(&sender, "sender", "s", "MPESA", "Sender address of the message")
	pendingCmd.PersistentFlags().StringVar(&dbPath, "db", "pending.db", "Path to the pending-transactions store")

	pendingCmd.AddCommand(pendingListCmd, pendingRemoveCmd, pendingClearCmd)
	rootCmd.AddCommand(parseCmd, pendingCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
