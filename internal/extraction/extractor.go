package extraction

import (
	"context"
	"log"

	"github.com/prasetyawan/billing-extractor-service/internal/domain"
	"github.com/prasetyawan/billing-extractor-service/internal/imageutil"
)

// extractionPrompt instructs the model to return the page's fields as bare JSON
const extractionPrompt = `Analyze this invoice image and extract the following information in JSON format:
{
    "invoiceNumber": "string or null",
    "issuedDate": "YYYY-MM-DD format or null",
    "vendorName": "string or null",
    "totalAmount": number or null,
    "items": [
        {
            "itemId": "string or null",
            "description": "string or null",
            "quantity": number or null,
            "unitPrice": number or null,
            "unit": "string or null (e.g., lbs, gallons, pcs)",
            "amount": number or null
        }
    ],
    "adjustments": [
        {
            "description": "string or null (e.g., Discount, Shipping Fee)",
            "amount": number or null
        }
    ]
}

Return ONLY valid JSON without any markdown formatting or code blocks.
If a field cannot be determined from the image, use null.`

// ContentGenerator produces raw text from an image and a prompt
type ContentGenerator interface {
	GenerateFromImage(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, error)
}

// Extractor asks a vision model to read a single invoice page
type Extractor struct {
	generator ContentGenerator
}

// NewExtractor creates a new Extractor backed by the given generator
func NewExtractor(generator ContentGenerator) *Extractor {
	return &Extractor{generator: generator}
}

// ExtractFromImage sends one image through the model and parses the result.
// The returned record may be partially or entirely empty; only transport
// failures surface as errors.
func (e *Extractor) ExtractFromImage(ctx context.Context, imageData []byte, mimeType string) (domain.ExtractedPageInfo, error) {
	resized, err := imageutil.ResizeImage(imageData, nil)
	if err != nil {
		// Undecodable images are still worth sending; the model may cope
		log.Printf("Image resize failed, sending original: %v", err)
		resized = imageData
	}

	raw, err := e.generator.GenerateFromImage(ctx, extractionPrompt, resized, mimeType)
	if err != nil {
		return domain.ExtractedPageInfo{}, err
	}

	return ParseResponse(raw), nil
}
