package requests

import "fmt"

// FormatNumber renders a request number such as REQ-2024-007.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("REQ-%d-%03d", year, seq)
}
