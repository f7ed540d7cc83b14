package scanning

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// commonUnits are quantity units seen on handwritten and printed bills
var commonUnits = []string{
	"kg", "kgs", "gm", "g", "ltr", "l", "ml",
	"pcs", "pc", "nos", "no", "units",
}

var (
	priceRegex   = regexp.MustCompile(`(\d+(?:\.\d{1,2})?)`)
	qtyRegex     = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	nonNameRegex = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
)

// skipMarkers identify header/total lines that are not line items
var skipMarkers = []string{"total", "subtotal", "amount due", "grand total"}

// minLineItemConfidence filters weak parses
const minLineItemConfidence = 0.3

// ExtractLineItems extracts probable line items from raw OCR text.
// Each item carries a confidence score in [0, 1]; lines scoring below
// 0.3 are dropped.
func ExtractLineItems(ocrText string) []LineItem {
	if ocrText == "" {
		return nil
	}

	var items []LineItem
	for _, line := range cleanLines(ocrText) {
		if item, ok := parseLine(line); ok {
			items = append(items, item)
		}
	}
	return items
}

// cleanLines normalizes OCR text into candidate lines
func cleanLines(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if len(line) < 4 {
			continue
		}
		// ignore headers / totals heuristically
		lower := strings.ToLower(line)
		skip := false
		for _, marker := range skipMarkers {
			if strings.Contains(lower, marker) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// parseLine attempts to parse a single OCR line into a line item
func parseLine(line string) (LineItem, bool) {
	confidence := 0.0
	original := line

	// The last number on a line is usually the price
	var price *float64
	prices := priceRegex.FindAllString(line, -1)
	if len(prices) > 0 {
		if v, err := strconv.ParseFloat(prices[len(prices)-1], 64); err == nil {
			price = &v
			confidence += 0.4
			line = strings.TrimSpace(strings.Replace(line, prices[len(prices)-1], "", 1))
		}
	}

	// A remaining leading number is the quantity
	var qty *float64
	if m := qtyRegex.FindString(line); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			qty = &v
			confidence += 0.2
			line = strings.TrimSpace(strings.Replace(line, m, "", 1))
		}
	}

	// Known units boost confidence
	for _, unit := range commonUnits {
		unitRegex := regexp.MustCompile(fmt.Sprintf(`(?i)\b%s\b`, unit))
		if unitRegex.MatchString(line) {
			confidence += 0.1
			line = unitRegex.ReplaceAllString(line, "")
			break
		}
	}

	// Remaining text is the name candidate
	name := strings.TrimSpace(nonNameRegex.ReplaceAllString(line, ""))
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return LineItem{}, false
	}

	confidence = math.Min(math.Round(confidence*100)/100, 1.0)
	if confidence < minLineItemConfidence {
		return LineItem{}, false
	}

	return LineItem{
		Name:       name,
		Quantity:   qty,
		UnitPrice:  price,
		Confidence: confidence,
		RawLine:    original,
	}, true
}
