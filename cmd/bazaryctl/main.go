package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// bazaryctl is a small operator CLI for the payments API. It talks to the
// running service over HTTP with a bearer token, the same way any other
// client does.

type transaction struct {
	ID          string `json:"id"`
	Provider    string `json:"provider"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	ExternalRef string `json:"external_ref"`
	CreatedAt   string `json:"created_at"`
}

func main() {
	var apiURL string
	var token string

	client := &http.Client{Timeout: 15 * time.Second}

	rootCmd := &cobra.Command{
		Use:   "bazaryctl",
		Short: "Operator CLI for the Bazary payments service",
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8080", "Base URL of the payments API")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("BAZARY_TOKEN"), "Bearer token (defaults to $BAZARY_TOKEN)")

	doRequest := func(method, path string, body any) (*http.Response, error) {
		var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
		if body != nil {
			if err := json.NewEncoder(reqBody).Encode(body); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequest(method, apiURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		return client.Do(req)
	}

	printStatus := func(status string) string {
		switch status {
		case "succeeded":
			return color.GreenString(status)
		case "failed":
			return color.RedString(status)
		case "refunded":
			return color.YellowString(status)
		default:
			return color.CyanString(status)
		}
	}

	txCmd := &cobra.Command{Use: "tx", Short: "Inspect payment transactions"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the caller's transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetString("status")
			path := "/api/v1/payments/transactions"
			if status != "" {
				path += "?status=" + status
			}
			resp, err := doRequest(http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("API returned %s", resp.Status)
			}

			var out struct {
				Transactions []transaction `json:"transactions"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROVIDER\tAMOUNT\tSTATUS\tEXTERNAL_REF\tCREATED")
			for _, tx := range out.Transactions {
				fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
					tx.ID, tx.Provider, tx.Amount, tx.Currency, printStatus(tx.Status), tx.ExternalRef, tx.CreatedAt)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().String("status", "", "Filter by status (pending, processing, succeeded, failed, refunded)")

	getCmd := &cobra.Command{
		Use:   "get [transaction-id]",
		Short: "Show one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := doRequest(http.MethodGet, "/api/v1/payments/transactions/"+args[0], nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("API returned %s", resp.Status)
			}
			var raw map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
				return err
			}
			pretty, err := json.MarshalIndent(raw, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(pretty))
			return nil
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify [transaction-id]",
		Short: "Force a provider status check for a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := doRequest(http.MethodPost, "/api/v1/payments/transactions/verify", map[string]string{"tx_ref": args[0]})
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("API returned %s", resp.Status)
			}
			var tx transaction
			if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
				return err
			}
			fmt.Printf("%s is now %s\n", tx.ID, printStatus(tx.Status))
			return nil
		},
	}

	txCmd.AddCommand(listCmd, getCmd, verifyCmd)
	rootCmd.AddCommand(txCmd)

	if err := rootCmd.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}
