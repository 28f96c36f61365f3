package services

import (
	"encoding/json"
	"log"
	"os"
)

// BINEntry describes a 4-digit card prefix in the issuer table.
type BINEntry struct {
	Bank    string `json:"bank"`
	Network string `json:"network"`
	Country string `json:"country"`
	Valid   bool   `json:"valid"`
	Test    bool   `json:"test,omitempty"`
}

// defaultBINTable covers the issuers the product accepts plus the usual
// gateway test prefixes, which are recognized but always rejected.
var defaultBINTable = map[string]BINEntry{
	// Turkish banks - Visa
	"4546": {Bank: "Akbank", Network: "visa", Country: "TR", Valid: true},
	"4355": {Bank: "Garanti BBVA", Network: "visa", Country: "TR", Valid: true},
	"4508": {Bank: "İş Bankası", Network: "visa", Country: "TR", Valid: true},
	"4603": {Bank: "Yapı Kredi", Network: "visa", Country: "TR", Valid: true},
	"4289": {Bank: "Ziraat Bankası", Network: "visa", Country: "TR", Valid: true},
	"4532": {Bank: "Halkbank", Network: "visa", Country: "TR", Valid: true},
	"4506": {Bank: "Vakıfbank", Network: "visa", Country: "TR", Valid: true},
	"4022": {Bank: "QNB Finansbank", Network: "visa", Country: "TR", Valid: true},
	"4043": {Bank: "Denizbank", Network: "visa", Country: "TR", Valid: true},

	// Turkish banks - Mastercard
	"5406": {Bank: "Akbank", Network: "mastercard", Country: "TR", Valid: true},
	"5440": {Bank: "Garanti BBVA", Network: "mastercard", Country: "TR", Valid: true},
	"5528": {Bank: "İş Bankası", Network: "mastercard", Country: "TR", Valid: true},
	"5571": {Bank: "Yapı Kredi", Network: "mastercard", Country: "TR", Valid: true},
	"5549": {Bank: "Ziraat Bankası", Network: "mastercard", Country: "TR", Valid: true},
	"5504": {Bank: "Halkbank", Network: "mastercard", Country: "TR", Valid: true},
	"5456": {Bank: "Vakıfbank", Network: "mastercard", Country: "TR", Valid: true},

	// Gateway test cards, never accepted
	"4111": {Bank: "Test Card", Network: "visa", Country: "US", Test: true},
	"4242": {Bank: "Test Card", Network: "visa", Country: "US", Test: true},
	"4000": {Bank: "Test Card", Network: "visa", Country: "US", Test: true},
	"5555": {Bank: "Test Card", Network: "mastercard", Country: "US", Test: true},
	"2223": {Bank: "Test Card", Network: "mastercard", Country: "US", Test: true},
}

// LoadBINTable reads the issuer table from a JSON file keyed by 4-digit
// prefix. An empty path or a load failure falls back to the built-in table
// so card validation never starts without one.
func LoadBINTable(path string) map[string]BINEntry {
	if path == "" {
		return defaultBINTable
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[CARDS] Failed to read BIN table %s, using built-in table: %v", path, err)
		return defaultBINTable
	}

	table := make(map[string]BINEntry)
	if err := json.Unmarshal(data, &table); err != nil {
		log.Printf("[CARDS] Failed to parse BIN table %s, using built-in table: %v", path, err)
		return defaultBINTable
	}

	log.Printf("[CARDS] Loaded BIN table from %s (%d prefixes)", path, len(table))
	return table
}
