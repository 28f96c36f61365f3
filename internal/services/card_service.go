package services

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Fields a validation failure can be attributed to.
const (
	FieldCardNumber = "cardNumber"
	FieldExpiry     = "expiry"
	FieldCVC        = "cvc"
	FieldCardName   = "cardName"
)

// CardInfo is the resolved issuer information for a recognized BIN.
type CardInfo struct {
	Bank    string `json:"bank"`
	Network string `json:"network"`
	Country string `json:"country"`
	IsTest  bool   `json:"isTest"`
}

// CardValidationResult is the full outcome of a validation run.
// IsValid is true exactly when Errors is empty. CardInfo is populated as
// soon as the BIN resolves, even when a later stage fails. FailedField is
// set to the input that caused the first error.
type CardValidationResult struct {
	IsValid     bool      `json:"isValid"`
	Errors      []string  `json:"errors"`
	Warnings    []string  `json:"warnings"`
	CardInfo    *CardInfo `json:"cardInfo"`
	FailedField string    `json:"failedField,omitempty"`
}

// CardInput carries the raw card fields as submitted.
type CardInput struct {
	CardNumber string
	Expiry     string
	CVC        string
	CardName   string
}

// CardValidator checks card details against format rules, the Luhn
// checksum and the issuer BIN table. Pure computation: no I/O, no state
// beyond the table and the clock.
type CardValidator struct {
	table map[string]BINEntry
	now   func() time.Time
}

func NewCardValidator(table map[string]BINEntry) *CardValidator {
	return &CardValidator{table: table, now: time.Now}
}

var expiryPattern = regexp.MustCompile(`^\d{2}/\d{2}$`)

// Validate runs the full pipeline in fixed order: format, Luhn, BIN
// lookup, test-card rejection, issuer validity, expiry, CVV, holder name.
// In strict mode it stops at the first error; otherwise it accumulates
// every error and keeps going.
func (v *CardValidator) Validate(in CardInput, strict bool) *CardValidationResult {
	res := &CardValidationResult{Errors: []string{}, Warnings: []string{}}
	clean := stripWhitespace(in.CardNumber)

	fail := func(field, msg string) bool {
		res.Errors = append(res.Errors, msg)
		if res.FailedField == "" {
			res.FailedField = field
		}
		return strict
	}

	// 1. Format
	if len(clean) < 13 || len(clean) > 19 {
		if fail(FieldCardNumber, "card number must be 13-19 digits") {
			return res
		}
	}
	if !digitsOnly(clean) {
		if fail(FieldCardNumber, "card number must contain only digits") {
			return res
		}
	}

	// 2. Luhn checksum
	if !LuhnCheck(clean) {
		if fail(FieldCardNumber, "invalid card number (Luhn check failed)") {
			return res
		}
	}

	// 3. BIN lookup
	var entry *BINEntry
	if len(clean) >= 4 {
		if e, ok := v.table[clean[:4]]; ok {
			entry = &e
		}
	}
	if entry == nil {
		res.Warnings = append(res.Warnings, "card is not registered in the system")
		if fail(FieldCardNumber, "unrecognized card number, please use a supported bank card") {
			return res
		}
	} else {
		res.CardInfo = &CardInfo{
			Bank:    entry.Bank,
			Network: entry.Network,
			Country: entry.Country,
			IsTest:  entry.Test,
		}

		// 4. Test-card rejection
		if entry.Test {
			res.Warnings = append(res.Warnings, entry.Bank+" - test card")
			if fail(FieldCardNumber, "test cards are not accepted") {
				return res
			}
		}

		// 5. Issuer validity flag
		if !entry.Valid {
			if fail(FieldCardNumber, "this card cannot be used for payments") {
				return res
			}
		}
	}

	// 6. Expiry
	expiry := strings.TrimSpace(in.Expiry)
	if !expiryPattern.MatchString(expiry) {
		if fail(FieldExpiry, "expiry date must use MM/YY format") {
			return res
		}
	} else {
		month, _ := strconv.Atoi(expiry[:2])
		year, _ := strconv.Atoi(expiry[3:])
		year += 2000

		now := v.now().UTC()
		currentYear, currentMonth := now.Year(), int(now.Month())

		switch {
		case month < 1 || month > 12:
			if fail(FieldExpiry, "expiry month must be between 01 and 12") {
				return res
			}
		case year < currentYear || (year == currentYear && month < currentMonth):
			if fail(FieldExpiry, "card has expired") {
				return res
			}
		case year > currentYear+10:
			if fail(FieldExpiry, "expiry date is too far in the future") {
				return res
			}
		}
	}

	// 7. CVV
	cvc := strings.TrimSpace(in.CVC)
	wantLen := 3
	if res.CardInfo != nil && res.CardInfo.Network == "amex" {
		wantLen = 4
	}
	switch {
	case cvc == "" || !digitsOnly(cvc):
		if fail(FieldCVC, "CVV must contain only digits") {
			return res
		}
	case len(cvc) != wantLen:
		if fail(FieldCVC, "CVV must be "+strconv.Itoa(wantLen)+" digits") {
			return res
		}
	case allSameDigit(cvc):
		res.Warnings = append(res.Warnings, "repeating digits")
		if fail(FieldCVC, "invalid CVV, please enter the code on the back of your card") {
			return res
		}
	}

	// 8. Holder name
	name := strings.TrimSpace(in.CardName)
	switch {
	case len(name) < 3:
		if fail(FieldCardName, "name on card must be at least 3 characters") {
			return res
		}
	case len(name) > 50:
		if fail(FieldCardName, "name on card is too long") {
			return res
		}
	case !strings.Contains(name, " "):
		if fail(FieldCardName, "please enter first and last name") {
			return res
		}
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// LuhnCheck validates a digit string with the Luhn checksum: doubling
// every second digit from the right, subtracting 9 when a doubled digit
// exceeds 9, and requiring the sum to be divisible by 10.
func LuhnCheck(cardNumber string) bool {
	if cardNumber == "" {
		return false
	}

	sum := 0
	double := false
	for i := len(cardNumber) - 1; i >= 0; i-- {
		c := cardNumber[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum%10 == 0
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func allSameDigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return len(s) > 0
}

// CardService exposes card validation over HTTP.
type CardService struct {
	cards     *CardValidator
	validator *ValidationHelper
}

func NewCardService(cards *CardValidator) *CardService {
	return &CardService{
		cards:     cards,
		validator: NewValidationHelper(),
	}
}

// CardValidationRequest represents the card validation payload
type CardValidationRequest struct {
	CardNumber string `json:"cardNumber" validate:"required"`
	Expiry     string `json:"expiry" validate:"required"`
	CVC        string `json:"cvc" validate:"required"`
	CardName   string `json:"cardName" validate:"required"`
}

// ValidateCard validates card details without initiating a payment
// @Summary Validate a payment card
// @Description Check card number, expiry, CVV and holder name against format rules, Luhn and the issuer table
// @Tags cards
// @Accept json
// @Produce json
// @Param card body CardValidationRequest true "Card details"
// @Success 200 {object} object{isValid=bool,cardInfo=CardInfo,message=string}
// @Failure 400 {object} ErrorResponse
// @Router /cards/validate [post]
func (cs *CardService) ValidateCard(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CardValidationRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := cs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Lenient mode: collect every problem so the client can show them all.
	result := cs.cards.Validate(CardInput{
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVC:        req.CVC,
		CardName:   req.CardName,
	}, false)

	w.Header().Set("Content-Type", "application/json")
	if !result.IsValid {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":     result.Errors[0],
			"code":      "CARD_VALIDATION_FAILED",
			"allErrors": result.Errors,
			"warnings":  result.Warnings,
			"cardInfo":  result.CardInfo,
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"isValid":  true,
		"cardInfo": result.CardInfo,
		"message":  result.CardInfo.Bank + " card verified",
	})
}
