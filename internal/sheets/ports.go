package sheets

import (
	"context"

	"conti/internal/core"
)

// Ports for outbound adapters.
type (
	// ReportExporter records a settlement plan in an external spreadsheet.
	// names maps member ids to display names.
	ReportExporter interface {
		ExportReport(ctx context.Context, r core.Report, names map[string]string) error
	}
)
