package models

import "fmt"

// Step is a checkout state machine step.
type Step int

const (
	StepInformation Step = iota
	StepPayment
	StepProcessing
	StepCompleted
	StepFailed
)

func (s Step) String() string {
	switch s {
	case StepInformation:
		return "information"
	case StepPayment:
		return "payment"
	case StepProcessing:
		return "processing"
	case StepCompleted:
		return "completed"
	case StepFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transition is possible.
func (s Step) Terminal() bool { return s == StepCompleted || s == StepFailed }

// ShippingInfo is collected in the Information step. Only presence is
// validated.
type ShippingInfo struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
}

// CheckoutState is a snapshot of an in-progress checkout.
type CheckoutState struct {
	Step            Step          `json:"step"`
	ShippingInfo    ShippingInfo  `json:"shipping_info"`
	PaymentMethod   PaymentMethod `json:"-"`
	Order           *Order        `json:"order,omitempty"`
	PaymentArtifact *RedirectForm `json:"payment_artifact,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Clone returns a copy that shares no order lines or form fields with s.
func (s CheckoutState) Clone() CheckoutState {
	if s.Order != nil {
		o := s.Order.Clone()
		s.Order = &o
	}
	s.PaymentArtifact = s.PaymentArtifact.Clone()
	return s
}

// CheckoutResult is the backend response to a checkout commit.
type CheckoutResult struct {
	Order       Order
	PaymentForm *RedirectForm
}
