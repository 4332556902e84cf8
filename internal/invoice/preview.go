package invoice

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/fogleman/gg"

	ordermodel "github.com/frahmantamala/order-management/internal/core/datamodel/order"
)

const (
	previewWidth  = 600
	previewHeight = 340
)

// renderPreview rasterizes a compact invoice card for inline display in
// clients that cannot embed the PDF.
func renderPreview(companyName string, qrPNG []byte, o *ordermodel.Order) ([]byte, error) {
	qrImage, err := png.Decode(bytes.NewReader(qrPNG))
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(previewWidth, previewHeight)

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB255(40, 40, 40)
	dc.DrawRectangle(0, 0, previewWidth, 70)
	dc.Fill()

	// The context's built-in bitmap face keeps the renderer free of font
	// file assets.
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(companyName, 20, 35, 0, 0.5)

	dc.SetRGB255(40, 40, 40)
	dc.DrawString(fmt.Sprintf("Invoice %s", o.InvoiceNumber), 20, 110)
	dc.DrawString(fmt.Sprintf("Order %s", o.OrderCode), 20, 140)
	dc.DrawString(fmt.Sprintf("Total %.2f", o.Total), 20, 170)
	if o.PaidAt != nil {
		dc.DrawString(fmt.Sprintf("Paid %s", o.PaidAt.Format("2006-01-02")), 20, 200)
	}

	dc.DrawImage(qrImage, previewWidth-276, previewHeight-276)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
