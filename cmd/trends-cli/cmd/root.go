// Package cmd implements a small CLI for poking at a running trendwatch
// server without a frontend.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "trends-cli",
	Short: "Inspect a running trendwatch server.",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&addr, "addr", "http://localhost:8000", "base address of the trendwatch server",
	)
}

func client() *resty.Client {
	return resty.New().SetBaseURL(addr).SetTimeout(time.Minute)
}

func checkStatus(resp *resty.Response) error {
	if resp.StatusCode() != 200 {
		return fmt.Errorf("server answered %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
