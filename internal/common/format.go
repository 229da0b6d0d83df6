package common

import (
	"fmt"
	"strings"
	"time"

	"institutional-custody-go/internal/models"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a title between two separator lines
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the box-drawing prefix for list items
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

// PrintWallet prints a wallet summary line followed by its signers
func PrintWallet(w models.Wallet, isLast bool) {
	scheme := string(w.WalletType)
	if w.MultisigType != "" {
		scheme = fmt.Sprintf("%s/%s", w.WalletType, w.MultisigType)
	}
	fmt.Printf("%s%s  %-10s %d-of-%d  %-8s chain=%d  %s\n",
		BoxPrefix(isLast), w.Id, scheme, w.RequiredSignatures, w.TotalSigners, w.Status, w.ChainId, w.Label)

	detail := BoxDetailPrefix(isLast)
	for _, s := range w.Signers {
		fmt.Printf("%s    %-7s %s\n", detail, s.Role, s.UserId)
	}
}

// PrintAuditEntry prints one audit log line
func PrintAuditEntry(e models.AccessLog) {
	outcome := "ok"
	if !e.Success {
		outcome = "FAILED: " + e.ErrorMessage
	}
	fmt.Printf("%s  %-12s %-26s %-18s %s  %s\n",
		e.CreatedAt.Format(time.RFC3339), e.UserId, e.Action, e.ResourceType, e.ResourceId, outcome)
}
