package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type sessionResponse struct {
	State           string     `json:"state"`
	AuthenticatedAt *time.Time `json:"authenticated_at"`
	AgeSeconds      int64      `json:"age_seconds"`
	Cookies         []struct {
		Name    string    `json:"name"`
		Expires time.Time `json:"expires"`
	} `json:"cookies"`
}

func printSession(info sessionResponse) {
	fmt.Printf("state: %s\n", info.State)
	if info.AuthenticatedAt != nil {
		fmt.Printf("authenticated at: %s (age %ds)\n", info.AuthenticatedAt.Format(time.RFC3339), info.AgeSeconds)
	}
	if len(info.Cookies) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"cookie", "expires"})
	for _, c := range info.Cookies {
		t.AppendRow(table.Row{c.Name, c.Expires.Format(time.RFC3339)})
	}
	t.Render()
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the scraping session state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client().R().Get("/api/v2/session")
		if err != nil {
			return err
		}
		if err := checkStatus(resp); err != nil {
			return err
		}

		var info sessionResponse
		if err := json.Unmarshal(resp.Body(), &info); err != nil {
			return err
		}
		printSession(info)
		return nil
	},
}

var reauthCmd = &cobra.Command{
	Use:   "reauth",
	Short: "Force a fresh login on the server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client().R().Post("/api/v2/reauth")
		if err != nil {
			return err
		}
		if err := checkStatus(resp); err != nil {
			return err
		}

		var info sessionResponse
		if err := json.Unmarshal(resp.Body(), &info); err != nil {
			return err
		}
		printSession(info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(reauthCmd)
}
