// Package invoice renders the artifacts for a confirmed order: a PDF
// document with an embedded verification QR code and a raster preview
// image, both pushed to object storage.
package invoice

import (
	"context"
	"fmt"
)

// Storage is the object store the artifacts land in. Put returns the public
// URL of the stored object.
type Storage interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// VerificationURL is the payload encoded into the invoice QR code. Scanning
// it opens the public verification page for the order.
func VerificationURL(baseURL, orderCode, invoiceNumber string) string {
	return fmt.Sprintf("%s/verify/%s/%s", baseURL, orderCode, invoiceNumber)
}

func documentKey(invoiceNumber string) string {
	return fmt.Sprintf("invoices/%s/invoice.pdf", invoiceNumber)
}

func previewKey(invoiceNumber string) string {
	return fmt.Sprintf("invoices/%s/invoice.png", invoiceNumber)
}
