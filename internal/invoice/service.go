package invoice

import (
	"context"
	"log/slog"

	"github.com/skip2/go-qrcode"

	ordermodel "github.com/frahmantamala/order-management/internal/core/datamodel/order"
)

const qrSize = 256

// Service runs the invoice pipeline. The PDF document is the primary
// artifact; the raster preview is best-effort and its failure never blocks
// the document.
type Service struct {
	storage       Storage
	verifyBaseURL string
	companyName   string
	logger        *slog.Logger
}

func NewService(storage Storage, verifyBaseURL, companyName string, logger *slog.Logger) *Service {
	return &Service{
		storage:       storage,
		verifyBaseURL: verifyBaseURL,
		companyName:   companyName,
		logger:        logger,
	}
}

// Generate renders and stores the invoice artifacts for a confirmed order.
// Returns the public URLs; imageURL is nil when the preview leg failed.
func (s *Service) Generate(ctx context.Context, o *ordermodel.Order, items []*ordermodel.OrderItem) (docURL, imageURL *string, err error) {
	verifyURL := VerificationURL(s.verifyBaseURL, o.OrderCode, o.InvoiceNumber)

	qrPNG, err := qrcode.Encode(verifyURL, qrcode.Medium, qrSize)
	if err != nil {
		return nil, nil, err
	}

	pdfBytes, err := buildDocument(s.companyName, verifyURL, qrPNG, o, items)
	if err != nil {
		return nil, nil, err
	}

	storedDocURL, err := s.storage.Put(ctx, documentKey(o.InvoiceNumber), "application/pdf", pdfBytes)
	if err != nil {
		return nil, nil, err
	}
	docURL = &storedDocURL

	previewPNG, err := renderPreview(s.companyName, qrPNG, o)
	if err != nil {
		s.logger.Warn("invoice preview render failed",
			"error", err,
			"invoice_number", o.InvoiceNumber)
		return docURL, nil, nil
	}
	storedImageURL, err := s.storage.Put(ctx, previewKey(o.InvoiceNumber), "image/png", previewPNG)
	if err != nil {
		s.logger.Warn("invoice preview upload failed",
			"error", err,
			"invoice_number", o.InvoiceNumber)
		return docURL, nil, nil
	}
	imageURL = &storedImageURL

	return docURL, imageURL, nil
}
