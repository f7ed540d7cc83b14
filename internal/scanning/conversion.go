package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// invoiceScanPrompt is the shared prompt used by all LLM providers for scanning bills and invoices
const invoiceScanPrompt = `You are analyzing a bill or invoice document. Carefully read all text in the image and extract the following information:

1. **Vendor/Business Name**: The merchant, shop, or business name issuing the bill, usually the largest text or in a header.

2. **Invoice Number**: The invoice, bill, or receipt number if printed. Use null if there is none.

3. **Date**: The invoice or purchase date. Convert it to ISO 8601 format (YYYY-MM-DD). Common formats: DD/MM/YYYY, MM/DD/YYYY, or written dates.

4. **Currency**: The ISO 4217 currency code if identifiable (e.g. "INR", "USD"). Use "INR" if a rupee symbol is present.

5. **Line Items**: Every purchased item with its quantity and unit price where readable. Skip header rows and total rows.

6. **Amounts**: The subtotal, tax amount, and final total. Totals are usually at the bottom, labeled "TOTAL", "Grand Total", or "Amount Due". Extract only numeric values.

7. **Raw Text**: All text you can read from the document, line by line.

Return ONLY valid JSON in this exact format:
{
  "vendor": "Business Name",
  "invoice_number": "INV-001",
  "date": "YYYY-MM-DD",
  "currency": "INR",
  "line_items": [
    {"name": "Item name", "quantity": 1, "unit_price": 0.00}
  ],
  "subtotal": 0.00,
  "tax_amount": 0.00,
  "total_amount": 0.00,
  "raw_text": "..."
}

Important:
- The date must be in YYYY-MM-DD format
- All amounts must be numbers (not strings)
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// pdfToImage converts a PDF to a PNG image
func pdfToImage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Render the first page (most bills are single page)
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// imageToPNG converts any image format to PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	// HEIC/HEIF (common on iPhones) is not supported by Go's standard image package
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
				return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	// HEIC files carry an ftyp box at offset 4 with a HEIC-related brand
	if string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		if brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1" {
			return true
		}
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return mimeType == "image/heic" || mimeType == "image/heif" ||
		strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// isPDF checks whether the payload is a PDF document
func isPDF(data []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

// prepareImageData normalizes an uploaded document to PNG for the vision model.
// PDFs are rendered (first page), HEIC and standard images are re-encoded.
func prepareImageData(data []byte, contentType string) ([]byte, error) {
	if isPDF(data, contentType) {
		return pdfToImage(data)
	}
	return imageToPNG(data, contentType)
}
