/*
export.go - CSV formatting of transaction query results

Pure formatting: takes whatever Query returned and writes rows. Reporting
callers own filtering and pagination.
*/
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

var csvHeader = []string{
	"id", "user_id", "created_at", "type", "source",
	"amount", "balance_before", "balance_after",
	"description", "related_id", "related_title",
}

// ExportCSV writes the transactions as CSV, header first.
func ExportCSV(w io.Writer, txs []GoldTransaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, tx := range txs {
		row := []string{
			string(tx.ID),
			string(tx.UserID),
			tx.CreatedAt.In(BrazilZone).Format(time.RFC3339),
			string(tx.Type),
			string(tx.Source),
			tx.Amount.String(),
			tx.BalanceBefore.String(),
			tx.BalanceAfter.String(),
			tx.Description,
			tx.RelatedID,
			tx.RelatedTitle,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
