package sheets

import (
	"context"

	"notaspese/internal/core"
)

// Ports for outbound adapters.
type (
	// ReportExporter publishes a monthly report outside the application.
	ReportExporter interface {
		// ExportMonth replaces the content of the tab of month m with values
		// and returns a reference to the written range.
		ExportMonth(ctx context.Context, m core.Month, values [][]string) (ref string, err error)
	}
)

// TabName is the name of the tab holding the report of m.
func TabName(m core.Month) string {
	return m.String()
}
