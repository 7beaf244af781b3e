package quote

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/warp/energy-engine/energy"
	"github.com/xuri/excelize/v2"
)

// Export formats.
const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// ContentType returns the MIME type for an export format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/pdf"
}

// Export renders a quote in the given format.
func Export(q *Quote, format string) ([]byte, error) {
	switch format {
	case FormatPDF:
		return BuildPDF(q)
	case FormatXLSX:
		return BuildXLSX(q)
	default:
		return nil, &energy.ValidationError{Field: "format", Message: fmt.Sprintf("unsupported export format %q", format)}
	}
}

// line is one row of the cost table shared by both formats.
type line struct {
	section string
	label   string
	amount  decimal.Decimal
}

// lines lists the cost table. Electricity is shown before the feed-in credit,
// so each section's lines add up to its subtotal.
func lines(b energy.CostBreakdown) []line {
	return []line{
		{"Supplier", "Electricity", b.Supplier.Electricity.Add(b.Supplier.FeedInCredit)},
		{"Supplier", "Gas", b.Supplier.Gas},
		{"Supplier", "Standing charge", b.Supplier.StandingCharge},
		{"Supplier", "Feed-in credit", b.Supplier.FeedInCredit.Neg()},
		{"Supplier", "Subtotal", b.Supplier.Subtotal},
		{"Energy tax", "Electricity", b.Tax.Electricity},
		{"Energy tax", "Gas", b.Tax.Gas},
		{"Energy tax", "Rebate", b.Tax.Rebate.Neg()},
		{"Energy tax", "Subtotal", b.Tax.Subtotal},
		{"Network", "Electricity", b.NetworkFee.Electricity},
		{"Network", "Gas", b.NetworkFee.Gas},
		{"Network", "Subtotal", b.NetworkFee.Subtotal},
		{"Total", "Annual excl. VAT", b.Totals.AnnualExclVAT},
		{"Total", fmt.Sprintf("VAT %s%%", b.Totals.VATPercent.String()), b.Totals.VAT},
		{"Total", "Annual incl. VAT", b.Totals.AnnualInclVAT},
		{"Total", "Monthly excl. VAT", b.Totals.MonthlyExclVAT},
		{"Total", "Monthly incl. VAT", b.Totals.MonthlyInclVAT},
	}
}

func money(d decimal.Decimal) string {
	return energy.RoundMoney(d).StringFixed(energy.MoneyPlaces)
}

// BuildPDF renders a one-page PDF of a frozen quote.
func BuildPDF(q *Quote) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Energy Cost Quote")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Quote: %s", q.ID))
	pdf.Ln(5)
	if q.Reference != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Reference: %s", q.Reference))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Contract: %s", q.ContractType))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Postcode: %s", q.Input.Address.Postcode))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Tariff year: %d (tax table %d)", q.Year, q.Snapshot.TaxTable.Year))
	pdf.Ln(5)
	if q.Breakdown.NetworkFee.OperatorName != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Network operator: %s", q.Breakdown.NetworkFee.OperatorName))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Frozen: %s", q.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if q.Breakdown.NetworkFee.IsEstimate {
		pdf.Cell(0, 6, "Network fees are an estimate (large connection).")
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Section", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "Item", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "EUR", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, l := range lines(q.Breakdown) {
		pdf.CellFormat(40, 6, l.section, "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, l.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, money(l.amount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(q.Breakdown.Tax.Brackets) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(30, 6, "Commodity", "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, "Quantity", "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, "Rate", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "Tax", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, bc := range q.Breakdown.Tax.Brackets {
			pdf.CellFormat(30, 6, string(bc.Commodity), "1", 0, "L", false, 0, "")
			pdf.CellFormat(35, 6, bc.Quantity.String(), "1", 0, "R", false, 0, "")
			pdf.CellFormat(35, 6, bc.Rate.String(), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 6, money(bc.Amount), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "", 8)
	pdf.Cell(0, 5, fmt.Sprintf("Snapshot hash: %s", q.SnapshotHash))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sheetWriter keeps the first excelize error so a sheet can be filled
// without checking every cell.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	money int
	err   error
}

func (w *sheetWriter) set(cell string, v any) {
	if w.err == nil {
		w.err = w.f.SetCellValue(w.sheet, cell, v)
	}
}

// amount writes a numeric cell with full decimal precision.
func (w *sheetWriter) amount(cell string, d decimal.Decimal) {
	if w.err == nil {
		w.err = w.f.SetCellFloat(w.sheet, cell, d.InexactFloat64(), -1, 64)
	}
}

// euros writes a numeric cell rounded to cents in the money format.
func (w *sheetWriter) euros(cell string, d decimal.Decimal) {
	w.amount(cell, energy.RoundMoney(d))
	if w.err == nil {
		w.err = w.f.SetCellStyle(w.sheet, cell, cell, w.money)
	}
}

// BuildXLSX renders a frozen quote as a workbook with a summary sheet and a
// tax bracket sheet.
func BuildXLSX(q *Quote) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	bracketSheet := "tax brackets"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(bracketSheet); err != nil {
		return nil, err
	}
	// Built-in number format 2 is "0.00".
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, err
	}

	sum := &sheetWriter{f: f, sheet: summarySheet, money: moneyStyle}
	sum.set("A1", "Energy Cost Quote")
	sum.set("A3", "Quote")
	sum.set("B3", string(q.ID))
	sum.set("A4", "Reference")
	sum.set("B4", q.Reference)
	sum.set("A5", "Contract")
	sum.set("B5", string(q.ContractType))
	sum.set("A6", "Tariff year")
	sum.set("B6", q.Year)
	sum.set("A7", "Network operator")
	sum.set("B7", q.Breakdown.NetworkFee.OperatorName)
	sum.set("A8", "Estimate")
	sum.set("B8", q.Breakdown.NetworkFee.IsEstimate)
	sum.set("A9", "Frozen")
	sum.set("B9", q.CreatedAt.Format(time.RFC3339))
	sum.set("A10", "Snapshot hash")
	sum.set("B10", q.SnapshotHash)

	sum.set("A12", "Section")
	sum.set("B12", "Item")
	sum.set("C12", "EUR")
	for i, l := range lines(q.Breakdown) {
		row := i + 13
		sum.set(fmt.Sprintf("A%d", row), l.section)
		sum.set(fmt.Sprintf("B%d", row), l.label)
		sum.euros(fmt.Sprintf("C%d", row), l.amount)
	}
	if sum.err != nil {
		return nil, fmt.Errorf("write %s sheet: %w", summarySheet, sum.err)
	}

	br := &sheetWriter{f: f, sheet: bracketSheet, money: moneyStyle}
	br.set("A1", "Commodity")
	br.set("B1", "From")
	br.set("C1", "Up to")
	br.set("D1", "Quantity")
	br.set("E1", "Rate")
	br.set("F1", "Tax")
	for i, bc := range q.Breakdown.Tax.Brackets {
		row := i + 2
		br.set(fmt.Sprintf("A%d", row), string(bc.Commodity))
		br.amount(fmt.Sprintf("B%d", row), bc.From)
		if bc.UpTo != nil {
			br.amount(fmt.Sprintf("C%d", row), *bc.UpTo)
		}
		br.amount(fmt.Sprintf("D%d", row), bc.Quantity)
		br.amount(fmt.Sprintf("E%d", row), bc.Rate)
		br.euros(fmt.Sprintf("F%d", row), bc.Amount)
	}
	if br.err != nil {
		return nil, fmt.Errorf("write %s sheet: %w", bracketSheet, br.err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
