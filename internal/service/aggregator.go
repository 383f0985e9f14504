package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prasetyawan/billing-extractor-service/internal/domain"
)

// otherAdjustmentLabel replaces a missing adjustment description before
// consolidation
const otherAdjustmentLabel = "Other"

// totalMismatchTolerance is the largest difference between the extracted
// and computed totals that is written off as scan noise. Two cents covers
// one rounding step on each side.
var totalMismatchTolerance = decimal.NewFromFloat(0.02)

// PageExtraction ties one image's extraction result to its source file and
// its submission index. Workers complete in arbitrary order; the index
// restores upload order before merging.
type PageExtraction struct {
	Index          int
	SourceFileName string
	Info           domain.ExtractedPageInfo
}

// AggregatedInvoice is a candidate invoice assembled from one group of
// pages sharing an invoice number
type AggregatedInvoice struct {
	Invoice     *domain.Invoice
	Warning     string // non-fatal total mismatch, empty when totals agree
	SourceFiles []string
}

// GroupValidationError reports a group that is missing required fields
type GroupValidationError struct {
	InvoiceNumber string
	MissingFields []string
	SourceFiles   []string
}

// Error implements the error interface
func (e *GroupValidationError) Error() string {
	number := e.InvoiceNumber
	if number == "" {
		number = "(unknown)"
	}
	return fmt.Sprintf("invoice %s: missing required fields [%s] in files [%s]",
		number, strings.Join(e.MissingFields, ", "), strings.Join(e.SourceFiles, ", "))
}

// AggregationResult holds every group's outcome for one upload batch
type AggregationResult struct {
	Invoices []AggregatedInvoice
	Errors   []*GroupValidationError
}

// AggregatePages groups per-image extraction results by invoice number and
// assembles one candidate invoice per group. Groups appear in first-seen
// upload order; a group that fails validation is reported without
// affecting the others.
func AggregatePages(pages []PageExtraction) AggregationResult {
	ordered := make([]PageExtraction, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	// Group by invoice number, preserving first-seen order. Pages without
	// a number share the empty-string group and fail validation together
	// rather than being silently dropped.
	groups := map[string][]PageExtraction{}
	var order []string
	for _, page := range ordered {
		key := stringValue(page.Info.InvoiceNumber)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], page)
	}

	var result AggregationResult
	for _, key := range order {
		group := groups[key]
		aggregated, err := aggregateGroup(group)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Invoices = append(result.Invoices, *aggregated)
	}
	return result
}

// aggregateGroup merges one group's pages into a candidate invoice
func aggregateGroup(pages []PageExtraction) (*AggregatedInvoice, *GroupValidationError) {
	sourceFiles := make([]string, 0, len(pages))
	for _, page := range pages {
		sourceFiles = append(sourceFiles, page.SourceFileName)
	}

	// Later pages fill gaps left by earlier ones within the same invoice
	invoiceNumber := firstString(pages, func(info domain.ExtractedPageInfo) *string { return info.InvoiceNumber })
	vendorName := firstString(pages, func(info domain.ExtractedPageInfo) *string { return info.VendorName })
	issuedDate := firstDate(pages)

	var missing []string
	if invoiceNumber == "" {
		missing = append(missing, "invoiceNumber")
	}
	if vendorName == "" {
		missing = append(missing, "vendorName")
	}
	if issuedDate.IsZero() {
		missing = append(missing, "issuedDate")
	}
	if len(missing) > 0 {
		return nil, &GroupValidationError{
			InvoiceNumber: invoiceNumber,
			MissingFields: missing,
			SourceFiles:   sourceFiles,
		}
	}

	items := mergeItems(pages)
	adjustments := consolidateAdjustments(pages)

	// The persisted total is always recomputed from quantity and unit
	// price; the model's own figure is only cross-checked
	calculatedTotal := itemsTotal(items).Add(adjustmentsTotal(adjustments)).Round(2)
	extractedTotal := pagesTotal(pages)

	var warning string
	if extractedTotal.IsPositive() {
		diff := extractedTotal.Sub(calculatedTotal).Abs()
		if diff.GreaterThan(totalMismatchTolerance) {
			warning = fmt.Sprintf("Total amount mismatch for invoice %s: extracted %s, calculated %s",
				invoiceNumber, extractedTotal.StringFixed(2), calculatedTotal.StringFixed(2))
		}
	}

	return &AggregatedInvoice{
		Invoice: &domain.Invoice{
			InvoiceNumber: invoiceNumber,
			IssuedDate:    issuedDate,
			VendorName:    vendorName,
			TotalAmount:   calculatedTotal,
			Items:         items,
			Adjustments:   adjustments,
		},
		Warning:     warning,
		SourceFiles: sourceFiles,
	}, nil
}

// mergeItems concatenates all line items across pages, preserving per-page
// order then page order, and defaults missing optional fields
func mergeItems(pages []PageExtraction) []domain.InvoiceItem {
	items := []domain.InvoiceItem{}
	for _, page := range pages {
		for _, item := range page.Info.Items {
			items = append(items, domain.InvoiceItem{
				ItemID:      stringValue(item.ItemID),
				Description: stringValue(item.Description),
				Quantity:    decimalValue(item.Quantity),
				UnitPrice:   decimalValue(item.UnitPrice),
				Unit:        stringValue(item.Unit),
				Amount:      decimalValue(item.Amount),
			})
		}
	}
	return items
}

// consolidateAdjustments re-groups adjustments by description and sums
// amounts, producing one row per distinct description rather than one per
// source page
func consolidateAdjustments(pages []PageExtraction) []domain.InvoiceAdjustment {
	totals := map[string]decimal.Decimal{}
	var order []string
	for _, page := range pages {
		for _, adj := range page.Info.Adjustments {
			description := stringValue(adj.Description)
			if description == "" {
				description = otherAdjustmentLabel
			}
			if _, seen := totals[description]; !seen {
				order = append(order, description)
			}
			totals[description] = totals[description].Add(decimalValue(adj.Amount))
		}
	}

	adjustments := []domain.InvoiceAdjustment{}
	for _, description := range order {
		adjustments = append(adjustments, domain.InvoiceAdjustment{
			Description: description,
			Amount:      totals[description],
		})
	}
	return adjustments
}

// itemsTotal sums quantity times unit price over merged items. An item's
// own amount field is deliberately ignored here.
func itemsTotal(items []domain.InvoiceItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Quantity.Mul(item.UnitPrice))
	}
	return total
}

func adjustmentsTotal(adjustments []domain.InvoiceAdjustment) decimal.Decimal {
	total := decimal.Zero
	for _, adj := range adjustments {
		total = total.Add(adj.Amount)
	}
	return total
}

// pagesTotal sums the extracted grand total across pages. Multi-page
// invoices are expected to state it on exactly one page and omit it on the
// rest.
func pagesTotal(pages []PageExtraction) decimal.Decimal {
	total := decimal.Zero
	for _, page := range pages {
		total = total.Add(decimalValue(page.Info.TotalAmount))
	}
	return total
}

// firstString returns the first non-empty value the accessor yields across
// the group's pages
func firstString(pages []PageExtraction, get func(domain.ExtractedPageInfo) *string) string {
	for _, page := range pages {
		if value := get(page.Info); value != nil && *value != "" {
			return *value
		}
	}
	return ""
}

// firstDate returns the first non-null issued date across the group's pages
func firstDate(pages []PageExtraction) time.Time {
	for _, page := range pages {
		if page.Info.IssuedDate != nil && !page.Info.IssuedDate.IsZero() {
			return page.Info.IssuedDate.Time.UTC()
		}
	}
	return time.Time{}
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func decimalValue(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
