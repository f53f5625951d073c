package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nyashahama/churn-actions-dashboard/internal/churn"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newClassifyCmd(a *app) *cobra.Command {
	var (
		dataPath string
		top      int
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Print risk bucket counts and the highest-risk users",
		Long: `Loads the churn data from --data (or DATA_PATH / DATABASE_URL), classifies
every user into a risk tier, and prints the bucket counts followed by the
At Risk users sorted by churn probability.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			if dataPath != "" {
				cfg.DataPath = dataPath
				cfg.DatabaseURL = ""
			}

			source, closeSource, err := openSource(cmd.Context(), &cfg, a.logger)
			if err != nil {
				return err
			}
			defer closeSource()

			t, err := source.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			c, err := churn.Classify(t)
			if err != nil {
				return err
			}
			return printClassification(cmd.OutOrStdout(), c, top)
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "CSV or XLSX file to classify (overrides DATA_PATH)")
	cmd.Flags().IntVar(&top, "top", 10, "number of At Risk users to list (0 lists all)")
	return cmd
}

func printClassification(w io.Writer, c churn.Classification, top int) error {
	counts := newTable().Headers(churn.HeaderRiskBucket, churn.HeaderUserCount)
	for _, bc := range c.BucketCounts() {
		counts.Row(string(bc.Label), strconv.Itoa(bc.Users))
	}

	high := c.HighRisk().SortedByProbability()
	rows := high.Rows()
	if top > 0 && len(rows) > top {
		rows = rows[:top]
	}
	risky := newTable().Headers(high.Header()...).Rows(rows...)

	_, err := fmt.Fprintf(w, "%s\n%s\n\n%s\n%s\n",
		titleStyle.Render("Users by risk bucket"),
		counts.Render(),
		titleStyle.Render(fmt.Sprintf("At Risk users (%d of %d)", len(rows), high.Len())),
		risky.Render(),
	)
	return err
}

func newTable() *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}
