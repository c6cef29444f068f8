package evidence

import (
	"context"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/claimclaw/contest-cli/internal/model"
)

// Label patterns lifted from real repudiation letters. Matching is done on
// whitespace-flattened text so labels split across lines still hit.
var (
	reasonPattern = regexp.MustCompile(`(?i)(?:reason for (?:rejection|repudiation)|grounds? (?:of|for) (?:rejection|repudiation)|rejection reason)\s*[:\-]?\s*([^.;\n]{4,200})`)

	policyStartPattern = regexp.MustCompile(`(?i)(?:policy (?:start|commencement|inception) date|date of commencement|risk start date)\s*[:\-]?\s*([^.;,\n]{6,40})`)

	claimDatePattern = regexp.MustCompile(`(?i)(?:claim submission|submission date|date of claim|date of intimation|intimation date|claim lodged on|lodged on)\s*[:\-]?\s*([^.;,\n]{6,40})`)

	rejectionDatePattern = regexp.MustCompile(`(?i)(?:rejection date|repudiation date|date of repudiation|letter date|date of rejection|dated)\s*[:\-]?\s*([^.;,\n]{6,40})`)

	diagnosisPattern = regexp.MustCompile(`(?i)(?:final diagnosis|diagnosis|provisional diagnosis)\s*[:\-]?\s*([^.;\n]{4,200})`)

	dateTokenPattern = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}[/-]\d{1,2}[/-]20\d{2}|\d{1,2}\s+[A-Za-z]{3,9}\s+20\d{2}|[A-Za-z]{3,9}\s+\d{1,2},?\s+20\d{2})\b`)

	billItemPattern = regexp.MustCompile(`(?m)^\s*([A-Za-z][A-Za-z /&().-]{2,60}?)\s+(?:Rs\.?|INR|₹)\s*([\d,]+(?:\.\d{1,2})?)\s*$`)
)

// TextExtractor implements Extractor over plain-text document files. It is
// the fallback for runs without an OCR or vision capability configured.
type TextExtractor struct{}

// NewTextExtractor creates a TextExtractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract reads the four documents and pulls out labeled fields.
func (e *TextExtractor) Extract(ctx context.Context, docs model.DocumentSet) (*model.ClaimEvidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rejection, err := readDocument(docs.RejectionLetter)
	if err != nil {
		return nil, &ExtractionError{Document: "rejection_letter", Err: err}
	}
	discharge, err := readDocument(docs.DischargeSummary)
	if err != nil {
		return nil, &ExtractionError{Document: "discharge_summary", Err: err}
	}
	policy, err := readDocument(docs.PolicyDocument)
	if err != nil {
		return nil, &ExtractionError{Document: "policy_document", Err: err}
	}
	bill, err := readDocument(docs.HospitalBill)
	if err != nil {
		return nil, &ExtractionError{Document: "hospital_bill", Err: err}
	}

	rejectionFlat := collapseWhitespace(rejection)
	ev := &model.ClaimEvidence{
		RejectionReason:  firstGroup(reasonPattern, rejectionFlat),
		DiagnosisSummary: firstGroup(diagnosisPattern, collapseWhitespace(discharge)),
		PolicyStartDate:  labeledDate(policyStartPattern, collapseWhitespace(policy)),
		BillItems:        extractBillItems(bill),
	}

	ev.ClaimSubmissionDate = labeledDate(claimDatePattern, rejectionFlat)
	ev.RejectionDate = labeledDate(rejectionDatePattern, rejectionFlat)
	if ev.ClaimSubmissionDate == "" || ev.RejectionDate == "" {
		earliest, latest := fallbackDates(rejectionFlat)
		if ev.ClaimSubmissionDate == "" {
			ev.ClaimSubmissionDate = earliest
		}
		if ev.RejectionDate == "" {
			ev.RejectionDate = latest
		}
	}

	zap.L().Debug("text extraction complete",
		zap.Bool("reason_found", ev.RejectionReason != ""),
		zap.Int("bill_items", len(ev.BillItems)),
	)
	return ev, nil
}

func readDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "read %s", path)
	}
	if isPDF(data) {
		return "", eris.Errorf("%s is a PDF; text extraction requires plain-text documents", path)
	}
	return string(data), nil
}

func isPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// labeledDate returns the first parseable date following the label, or "".
func labeledDate(re *regexp.Regexp, text string) string {
	candidate := firstGroup(re, text)
	if candidate == "" {
		return ""
	}
	token := dateTokenPattern.FindString(candidate)
	if token == "" {
		token = candidate
	}
	t, err := ParseDate(token)
	if err != nil {
		return ""
	}
	return isoDate(t)
}

// fallbackDates scans for any date tokens and returns the earliest and
// latest, on the assumption that intimation precedes repudiation.
func fallbackDates(text string) (earliest, latest string) {
	var min, max string
	for _, token := range dateTokenPattern.FindAllString(text, -1) {
		t, err := ParseDate(token)
		if err != nil {
			continue
		}
		iso := isoDate(t)
		if min == "" || iso < min {
			min = iso
		}
		if max == "" || iso > max {
			max = iso
		}
	}
	return min, max
}

func extractBillItems(billText string) []model.BillItem {
	var items []model.BillItem
	for _, m := range billItemPattern.FindAllStringSubmatch(billText, -1) {
		amount, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err != nil {
			continue
		}
		items = append(items, model.BillItem{
			Description: strings.TrimSpace(m[1]),
			Amount:      amount,
		})
	}
	return items
}
