package models

import (
	"fmt"
	"sort"
	"strings"
)

// PaymentMethod is the closed set of checkout payment options:
// Wallet, Card and CashOnDelivery. The unexported marker keeps the
// set closed to this package.
type PaymentMethod interface {
	// Code is the wire tag sent to the backend.
	Code() string
	paymentMethod()
}

// Wallet pays through the external e-wallet gateway via a redirect form.
type Wallet struct{}

// Card collects card fields locally. They are never transmitted.
type Card struct {
	Name   string `json:"-"`
	Number string `json:"-"`
	Expiry string `json:"-"`
	CVV    string `json:"-"`
}

// CashOnDelivery settles on delivery; no redirect is involved.
type CashOnDelivery struct{}

const (
	CodeWallet         = "esewa"
	CodeCard           = "card"
	CodeCashOnDelivery = "cod"
)

func (Wallet) Code() string         { return CodeWallet }
func (Card) Code() string           { return CodeCard }
func (CashOnDelivery) Code() string { return CodeCashOnDelivery }

func (Wallet) paymentMethod()         {}
func (Card) paymentMethod()           {}
func (CashOnDelivery) paymentMethod() {}

// String masks everything but the last four card digits.
func (c Card) String() string {
	n := strings.ReplaceAll(c.Number, " ", "")
	if len(n) > 4 {
		n = n[len(n)-4:]
	}
	return "card ****" + n
}

// ParsePaymentMethod maps a wire tag back to its variant.
func ParsePaymentMethod(code string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case CodeWallet, "wallet":
		return Wallet{}, nil
	case CodeCard:
		return Card{}, nil
	case CodeCashOnDelivery, "cash_on_delivery":
		return CashOnDelivery{}, nil
	default:
		return nil, fmt.Errorf("unknown payment method %q", code)
	}
}

// RedirectForm is the structured gateway handoff: a target URL and the
// hidden fields to post to it.
type RedirectForm struct {
	Action string            `json:"action"`
	Method string            `json:"method"`
	Fields map[string]string `json:"fields"`
}

// Clone deep-copies f. A nil form clones to nil.
func (f *RedirectForm) Clone() *RedirectForm {
	if f == nil {
		return nil
	}
	out := *f
	if f.Fields != nil {
		out.Fields = make(map[string]string, len(f.Fields))
		for k, v := range f.Fields {
			out.Fields[k] = v
		}
	}
	return &out
}

// FormField is one name/value pair of a RedirectForm.
type FormField struct {
	Name  string
	Value string
}

// SortedFields returns the fields ordered by name.
func (f RedirectForm) SortedFields() []FormField {
	out := make([]FormField, 0, len(f.Fields))
	for k, v := range f.Fields {
		out = append(out, FormField{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
