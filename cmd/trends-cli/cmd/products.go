package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	timeframe string
	sortBy    string
	limit     int
	page      int
	region    string
)

type productRow struct {
	Id                string  `json:"id"`
	Name              string  `json:"name"`
	GMV               float64 `json:"gmv"`
	UnitsSold         int64   `json:"units_sold"`
	CommissionRate    float64 `json:"commission_rate"`
	InfluencerCount   int64   `json:"influencer_count"`
	PotentialEarnings float64 `json:"potential_earnings"`
	Analysis          struct {
		Summary string `json:"summary"`
		Score   int    `json:"score"`
	} `json:"analysis"`
}

type productsResponse struct {
	Products   []productRow `json:"products"`
	Pagination struct {
		Page    int   `json:"page"`
		Total   int64 `json:"total"`
		HasNext bool  `json:"has_next"`
	} `json:"pagination"`
	Cached bool `json:"cached"`
}

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List trending products.",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client().R().
			SetQueryParams(map[string]string{
				"timeframe": timeframe,
				"sortBy":    sortBy,
				"limit":     strconv.Itoa(limit),
				"page":      strconv.Itoa(page),
				"region":    region,
			}).
			Get("/api/v2/products")
		if err != nil {
			return err
		}
		if err := checkStatus(resp); err != nil {
			return err
		}

		var out productsResponse
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"id", "name", "gmv", "sold", "comm %", "creators", "potential", "score", "take"})
		for _, p := range out.Products {
			t.AppendRow(table.Row{
				p.Id,
				p.Name,
				fmt.Sprintf("%.2f", p.GMV),
				p.UnitsSold,
				fmt.Sprintf("%.1f", p.CommissionRate),
				p.InfluencerCount,
				fmt.Sprintf("%.2f", p.PotentialEarnings),
				p.Analysis.Score,
				p.Analysis.Summary,
			})
		}
		t.Render()

		fmt.Printf(
			"page %d, total %d, has next: %v, cached: %v\n",
			out.Pagination.Page, out.Pagination.Total, out.Pagination.HasNext, out.Cached,
		)
		return nil
	},
}

func init() {
	productsCmd.Flags().StringVar(&timeframe, "timeframe", "7_days", "24_hours, 7_days or 30_days")
	productsCmd.Flags().StringVar(&sortBy, "sort-by", "gmv", "gmv, units_sold, commission_rate or influencer_count")
	productsCmd.Flags().IntVar(&limit, "limit", 20, "products per page")
	productsCmd.Flags().IntVar(&page, "page", 0, "zero-based page")
	productsCmd.Flags().StringVar(&region, "region", "US", "upstream region code")
	rootCmd.AddCommand(productsCmd)
}
