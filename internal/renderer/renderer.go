// Package renderer turns an invoice snapshot into a printable PDF document.
//
// The renderer is pure: output depends only on the snapshot, it touches no
// storage and takes no locks, so callers are free to run it concurrently and
// discard results that lose the artifact commit race.
package renderer

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/invoply/invoply-api/internal/apperrors"
	"github.com/invoply/invoply-api/internal/store"
)

// Snapshot is the full input to a render. It is assembled by the invoice
// service from the invoice row plus the issuing account and optional client
// at render time; the renderer never reads them itself.
type Snapshot struct {
	InvoiceID    string
	Number       string
	BusinessName string
	ClientName   string
	ClientEmail  string
	Items        []store.LineItem
	TotalCents   int64
	DueDate      *time.Time
	CreatedAt    time.Time
	Paid         bool
}

// Render produces a single-page PDF for the snapshot. A malformed snapshot
// (no items, or an item whose stored total disagrees with its quantity and
// unit price) yields a RenderError and no output.
func Render(snap Snapshot) ([]byte, error) {
	if err := validate(snap); err != nil {
		return nil, &apperrors.RenderError{Err: err}
	}

	var lines []line
	title := "INVOICE"
	if snap.Number != "" {
		title = "INVOICE " + snap.Number
	}
	lines = append(lines, line{text: title, bold: true, size: 18})
	if snap.BusinessName != "" {
		lines = append(lines, line{text: snap.BusinessName, size: 12})
	}
	lines = append(lines, line{text: "Issued " + snap.CreatedAt.UTC().Format("2006-01-02"), size: 10})
	if snap.DueDate != nil {
		lines = append(lines, line{text: "Due " + snap.DueDate.UTC().Format("2006-01-02"), size: 10})
	}
	if snap.ClientName != "" {
		lines = append(lines, line{})
		lines = append(lines, line{text: "Billed to: " + snap.ClientName, size: 11})
		if snap.ClientEmail != "" {
			lines = append(lines, line{text: snap.ClientEmail, size: 10})
		}
	}

	lines = append(lines, line{})
	for _, it := range snap.Items {
		lines = append(lines, line{
			text: fmt.Sprintf("%s  x%s @ %s  =  %s",
				it.Description, trimFloat(it.Quantity),
				FormatCents(it.UnitPriceCents), FormatCents(it.TotalCents)),
			size: 10,
		})
	}

	lines = append(lines, line{})
	lines = append(lines, line{text: "Total: " + FormatCents(snap.TotalCents), bold: true, size: 13})
	if snap.Paid {
		lines = append(lines, line{text: "PAID", bold: true, size: 13})
	}

	return writePDF(lines), nil
}

func validate(snap Snapshot) error {
	if len(snap.Items) == 0 {
		return fmt.Errorf("invoice %s has no line items", snap.InvoiceID)
	}
	var sum int64
	for i, it := range snap.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i)
		}
		if it.UnitPriceCents < 0 {
			return fmt.Errorf("item %d: negative unit price", i)
		}
		if want := LineTotalCents(it.Quantity, it.UnitPriceCents); it.TotalCents != want {
			return fmt.Errorf("item %d: stored total %d does not match computed %d", i, it.TotalCents, want)
		}
		sum += it.TotalCents
	}
	if sum != snap.TotalCents {
		return fmt.Errorf("invoice total %d does not match item sum %d", snap.TotalCents, sum)
	}
	return nil
}

// LineTotalCents computes a line total as quantity times unit price, rounded
// half away from zero to the nearest cent.
func LineTotalCents(quantity float64, unitPriceCents int64) int64 {
	v := quantity * float64(unitPriceCents)
	if v >= 0 {
		return int64(v + 0.5)
	}
	return int64(v - 0.5)
}

// FormatCents renders an amount in cents as a dollar string, e.g. 123456 ->
// "$1234.56".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// PDF generation. The document is a fixed single-page layout with two
// standard fonts; all object offsets are computed, so output for a given
// snapshot is byte-for-byte stable.

type line struct {
	text string
	bold bool
	size int
}

const (
	pageWidth  = 612 // US letter, points
	pageHeight = 792
	marginLeft = 56
	topStart   = 736
)

func writePDF(lines []line) []byte {
	var content bytes.Buffer
	y := topStart
	for _, ln := range lines {
		if ln.text == "" {
			y -= 10
			continue
		}
		font := "F1"
		if ln.bold {
			font = "F2"
		}
		size := ln.size
		if size == 0 {
			size = 10
		}
		y -= size + 6
		fmt.Fprintf(&content, "BT /%s %d Tf %d %d Td (%s) Tj ET\n",
			font, size, marginLeft, y, escapePDFText(ln.text))
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Contents 4 0 R /Resources << /Font << /F1 5 0 R /F2 6 0 R >> >> >>",
			pageWidth, pageHeight),
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica-Bold >>",
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xrefStart := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&out, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, xrefStart)
	return out.Bytes()
}

func escapePDFText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
