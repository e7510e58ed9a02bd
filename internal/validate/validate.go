// Package validate implements the external value-validator contract
// (spec.md §6): classify a field by its description, then normalise or
// reject its extracted raw value. No pack repository carries Brazilian
// document-validation logic, so this is hand-rolled against the
// documented checksum algorithms rather than grounded on an example;
// see DESIGN.md for the stdlib-only justification.
package validate

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Shape classifies the expected value format of a field (spec.md §6).
type Shape string

const (
	ShapeCPF      Shape = "cpf"
	ShapeCNPJ     Shape = "cnpj"
	ShapeCEP      Shape = "cep"
	ShapePhone    Shape = "phone"
	ShapeCurrency Shape = "currency"
	ShapeDate     Shape = "date"
	ShapeInteger  Shape = "integer"
	ShapeText     Shape = "text"
)

// ClassifyShape derives a shape hint from a field description using a
// fixed keyword dictionary (spec.md §6 "Hints are derived from field
// descriptions by a fixed keyword dictionary").
func ClassifyShape(description string) Shape {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "cnpj"):
		return ShapeCNPJ
	case strings.Contains(d, "cpf"):
		return ShapeCPF
	case strings.Contains(d, "cep"):
		return ShapeCEP
	case strings.Contains(d, "telefone"), strings.Contains(d, "celular"), strings.Contains(d, "phone"):
		return ShapePhone
	case strings.Contains(d, "valor"), strings.Contains(d, "preço"), strings.Contains(d, "preco"), strings.Contains(d, "r$"), strings.Contains(d, "currency"):
		return ShapeCurrency
	case strings.Contains(d, "data"), strings.Contains(d, "date"):
		return ShapeDate
	case strings.Contains(d, "inteiro"), strings.Contains(d, "quantidade"), strings.Contains(d, "integer"):
		return ShapeInteger
	default:
		return ShapeText
	}
}

var nonDigit = regexp.MustCompile(`\D+`)

// Validate normalises value according to shape, or returns ok=false when
// the value does not satisfy the shape's format (spec.md §4.6: "A
// rejected field is considered missing").
func Validate(value string, shape Shape) (string, bool) {
	switch shape {
	case ShapeCPF:
		return validateCPF(value)
	case ShapeCNPJ:
		return validateCNPJ(value)
	case ShapeCEP:
		return validateCEP(value)
	case ShapePhone:
		return validatePhone(value)
	case ShapeCurrency:
		return validateCurrency(value)
	case ShapeDate:
		return validateDate(value)
	case ShapeInteger:
		return validateInteger(value)
	default:
		return validateText(value)
	}
}

func validateText(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false
	}
	return v, true
}

func validateInteger(value string) (string, bool) {
	digits := nonDigit.ReplaceAllString(value, "")
	if digits == "" {
		return "", false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return "", false
	}
	return strconv.Itoa(n), true
}

func validateCEP(value string) (string, bool) {
	digits := nonDigit.ReplaceAllString(value, "")
	if len(digits) != 8 {
		return "", false
	}
	return digits[:5] + "-" + digits[5:], true
}

func validatePhone(value string) (string, bool) {
	digits := nonDigit.ReplaceAllString(value, "")
	switch len(digits) {
	case 11:
		return "(" + digits[:2] + ") " + digits[2:7] + "-" + digits[7:], true
	case 10:
		return "(" + digits[:2] + ") " + digits[2:6] + "-" + digits[6:], true
	default:
		return "", false
	}
}

func validateCurrency(value string) (string, bool) {
	v := strings.TrimSpace(value)
	v = strings.NewReplacer("R$", "", "r$", "", " ", "").Replace(v)
	v = strings.ReplaceAll(v, ".", "")
	v = strings.ReplaceAll(v, ",", ".")
	if v == "" {
		return "", false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', 2, 64), true
}

var dateLayouts = []string{"02/01/2006", "2006-01-02", "02-01-2006"}

func validateDate(value string) (string, bool) {
	v := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// validateCPF checks the two mod-11 verification digits of an 11-digit
// Brazilian taxpayer ID and formats it as XXX.XXX.XXX-XX.
func validateCPF(value string) (string, bool) {
	digits := nonDigit.ReplaceAllString(value, "")
	if len(digits) != 11 || allSameDigit(digits) {
		return "", false
	}
	if cpfCheckDigit(digits, 9) != int(digits[9]-'0') {
		return "", false
	}
	if cpfCheckDigit(digits, 10) != int(digits[10]-'0') {
		return "", false
	}
	return digits[:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:], true
}

func cpfCheckDigit(digits string, length int) int {
	sum := 0
	weight := length + 1
	for i := 0; i < length; i++ {
		sum += int(digits[i]-'0') * weight
		weight--
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

// validateCNPJ checks the two mod-11 verification digits of a 14-digit
// Brazilian company ID and formats it as XX.XXX.XXX/XXXX-XX.
func validateCNPJ(value string) (string, bool) {
	digits := nonDigit.ReplaceAllString(value, "")
	if len(digits) != 14 || allSameDigit(digits) {
		return "", false
	}
	if cnpjCheckDigit(digits, 12) != int(digits[12]-'0') {
		return "", false
	}
	if cnpjCheckDigit(digits, 13) != int(digits[13]-'0') {
		return "", false
	}
	return digits[:2] + "." + digits[2:5] + "." + digits[5:8] + "/" + digits[8:12] + "-" + digits[12:], true
}

func cnpjCheckDigit(digits string, length int) int {
	weights := make([]int, length)
	w := 2
	for i := length - 1; i >= 0; i-- {
		weights[i] = w
		w++
		if w > 9 {
			w = 2
		}
	}
	sum := 0
	for i := 0; i < length; i++ {
		sum += int(digits[i]-'0') * weights[i]
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

func allSameDigit(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
