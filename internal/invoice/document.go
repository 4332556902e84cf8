package invoice

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	ordermodel "github.com/frahmantamala/order-management/internal/core/datamodel/order"
)

// buildDocument renders the invoice PDF: header, order metadata, the line
// item table and the verification QR code.
func buildDocument(companyName, verifyURL string, qrPNG []byte, o *ordermodel.Order, items []*ordermodel.OrderItem) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Invoice %s", o.InvoiceNumber), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, companyName, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Invoice No: %s", o.InvoiceNumber), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Order Code: %s", o.OrderCode), "", 1, "L", false, 0, "")
	if o.PaidAt != nil {
		pdf.CellFormat(0, 6, fmt.Sprintf("Paid At: %s", o.PaidAt.Format("2006-01-02 15:04:05 MST")), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(90, 8, "Item", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Unit Price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(40, 8, "Line Total", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range items {
		pdf.CellFormat(90, 8, item.ProductName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 8, fmt.Sprintf("%d", item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, fmt.Sprintf("%.2f", item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", item.LineTotal), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(150, 8, "Subtotal", "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", o.Subtotal), "1", 1, "R", false, 0, "")
	if o.Discount > 0 {
		pdf.CellFormat(150, 8, "Discount", "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 8, fmt.Sprintf("-%.2f", o.Discount), "1", 1, "R", false, 0, "")
	}
	if o.CreditApplied > 0 {
		pdf.CellFormat(150, 8, "Credit Applied", "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 8, fmt.Sprintf("-%.2f", o.CreditApplied), "1", 1, "R", false, 0, "")
	}
	pdf.CellFormat(150, 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", o.Total), "1", 1, "R", false, 0, "")
	pdf.Ln(8)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("verification-qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("verification-qr", 10, pdf.GetY(), 40, 40, false, opts, 0, "")

	pdf.SetXY(55, pdf.GetY()+15)
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, "Scan to verify this invoice:", "", 1, "L", false, 0, "")
	pdf.SetX(55)
	pdf.SetTextColor(0, 0, 200)
	pdf.CellFormat(0, 5, verifyURL, "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
