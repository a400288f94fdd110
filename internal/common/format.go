package common

import (
	"fmt"
	"strings"

	"crypto-payments-go/internal/models"
)

const (
	// Default separator widths
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintSeparator prints a separator line with the specified character and width
func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a formatted header with title and separators
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

// PrintFooter prints a formatted footer with message and separators
func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// PrintBoxSeparator prints a box-drawing separator line (for sub-sections)
func PrintBoxSeparator(width int) {
	fmt.Println("├" + strings.Repeat("─", width))
}

// BoxPrefix returns the appropriate box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix returns the prefix for detail lines under list items
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// FormatResult renders a single payment result line
func FormatResult(index int, result models.PaymentResult) string {
	if !result.Success {
		return fmt.Sprintf("#%d FAILED  [%s] %s", index+1, result.ErrorCode, result.Error)
	}

	line := fmt.Sprintf("#%d %-9s %s", index+1, strings.ToUpper(result.Status), result.TransactionId)
	if result.EstimatedFee != nil {
		line += fmt.Sprintf("  fee=%s", result.EstimatedFee.String())
	}
	if result.TxRef != "" {
		line += fmt.Sprintf("  ref=%s", result.TxRef)
	}
	if result.EstimatedTime > 0 {
		line += fmt.Sprintf("  eta=%s", result.EstimatedTime)
	}
	return line
}

// PrintResults prints a list of payment results and a success tally
func PrintResults(results []models.PaymentResult) {
	succeeded := 0
	for i, r := range results {
		fmt.Println(FormatResult(i, r))
		if r.Success {
			succeeded++
		}
	}
	PrintSeparator("-", DefaultWidth)
	fmt.Printf("%d of %d payments accepted\n", succeeded, len(results))
}

// PrintPayment prints the detail lines of a payment record under a list item
func PrintPayment(p models.PaymentRecord, isLast bool) {
	prefix := BoxPrefix(isLast)
	detail := BoxDetailPrefix(isLast)

	fmt.Printf("%s%s  %-9s %-8s %s %s\n", prefix,
		p.CreatedAt.Format("2006-01-02 15:04:05"), p.Status, p.Kind, p.Amount.String(), p.Currency)
	fmt.Printf("%s   id: %s\n", detail, p.Id)
	if dest := p.Destination(); dest != "" {
		fmt.Printf("%s   to: %s\n", detail, dest)
	}
	if p.TotalFee.IsPositive() {
		fmt.Printf("%s   fees: service=%s %s, gas=%s %s\n", detail,
			p.ServiceFee.String(), p.Currency, p.GasFee.String(), p.FeeCurrency)
	}
	if p.ExternalTxRef != "" {
		fmt.Printf("%s   ref: %s\n", detail, p.ExternalTxRef)
	}
	if p.ErrorMessage != "" {
		fmt.Printf("%s   error: %s\n", detail, p.ErrorMessage)
	}
}
