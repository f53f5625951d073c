package narrative

import (
	"fmt"
	"strings"
)

const systemRole = "You are an expert in e-commerce churn and retention analysis " +
	"who writes clear, concise insights for CRM and growth teams."

// buildPrompt is deterministic: the same columns, table, context and word
// budget always produce the same text.
func buildPrompt(columns []string, table, extraContext string, maxWords int) string {
	var b strings.Builder

	b.WriteString("You are an experienced e-commerce retention and churn analytics expert.\n\n")
	b.WriteString("You are given a dataset of **high churn-risk users** for an e-commerce brand in a table format.\n")
	b.WriteString("Each row is a user; each column is a feature (e.g., orders, recency, sum_revenue, etc.).\n\n")

	b.WriteString("Columns:\n")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString("\n\n")

	b.WriteString("Table (sample of high-risk churn users):\n")
	b.WriteString(table)
	b.WriteString("\n\n")

	if ctx := strings.TrimSpace(extraContext); ctx != "" {
		b.WriteString("Additional business context:\n")
		b.WriteString(ctx)
		b.WriteString("\n\n")
	}

	b.WriteString("TASK:\n")
	fmt.Fprintf(&b, "Provide a concise to the point analytical summary (max %d words) covering:\n", maxWords)
	b.WriteString("1. Key patterns and segments among these high churn-risk users " +
		"(e.g., count_conversions, unique_sku, sum_revenue).\n")
	b.WriteString("2. Likely drivers or correlates of churn based on the available columns " +
		"(e.g., declining frequency, unique_sku, etc).\n")
	b.WriteString("3. Any obvious data quality issues, feature gaps, or missing fields that limit churn analysis.\n")
	b.WriteString("4. 3-5 concrete, actionable recommendations for the e-commerce retention / CRM / growth team, such as:\n")
	b.WriteString("   - Targeted campaigns and offers\n")
	b.WriteString("   - Journey or lifecycle interventions\n")
	b.WriteString("   - Product / UX / service improvements\n")
	b.WriteString("   - Experiments or cohorts to track\n\n")
	b.WriteString("Write the answer as short paragraphs and bullet points. Avoid repeating the raw table.\n")

	return b.String()
}
