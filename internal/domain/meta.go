package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const maxShortContentWords = 12

type OfferMeta struct {
	PackageType  string  `json:"packageType"`
	ShortContent string  `json:"shortContent"`
	Price        float64 `json:"price"`
	Duration     string  `json:"duration"`
}

type DeliveryMeta struct {
	PackageType string `json:"packageType"`
	WorkDone    string `json:"workDone"`
}

type OrderMeta struct {
	OrderID     string  `json:"orderId"`
	PackageType string  `json:"packageType"`
	Price       float64 `json:"price"`
	Duration    string  `json:"duration"`
}

func (o OfferMeta) Validate() error {
	if strings.TrimSpace(o.PackageType) == "" || strings.TrimSpace(o.ShortContent) == "" || strings.TrimSpace(o.Duration) == "" {
		return fmt.Errorf("%w: packageType, shortContent and duration are required", ErrInvalidMeta)
	}
	if len(strings.Fields(o.ShortContent)) > maxShortContentWords {
		return ErrTooManyWords
	}
	if !validPrice(o.Price) {
		return ErrInvalidPrice
	}
	return nil
}

func (d DeliveryMeta) Validate() error {
	if strings.TrimSpace(d.PackageType) == "" || strings.TrimSpace(d.WorkDone) == "" {
		return fmt.Errorf("%w: packageType and workDone are required", ErrInvalidMeta)
	}
	return nil
}

func (o OrderMeta) Validate() error {
	if strings.TrimSpace(o.OrderID) == "" || strings.TrimSpace(o.PackageType) == "" || strings.TrimSpace(o.Duration) == "" {
		return fmt.Errorf("%w: orderId, packageType and duration are required", ErrInvalidMeta)
	}
	if !validPrice(o.Price) {
		return ErrInvalidPrice
	}
	return nil
}

// validPrice accepts positive prices whose cent value fits in an int64.
// NaN and infinities fail both comparisons.
func validPrice(price float64) bool {
	return price > 0 && price*100 < math.MaxInt64
}

// MinorUnits converts a decimal price to integer cents.
func MinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

// Apply fills the order fields of m from a validated offer.
func (o OfferMeta) Apply(m *ChatMessage) {
	m.Kind = KindOffer
	m.PackageType = o.PackageType
	m.ShortContent = o.ShortContent
	m.PriceMinorUnits = MinorUnits(o.Price)
	m.Duration = o.Duration
	if strings.TrimSpace(m.Body) == "" {
		m.Body = "Offer: " + o.ShortContent
	}
}

func (d DeliveryMeta) Apply(m *ChatMessage) {
	m.Kind = KindDelivery
	m.PackageType = d.PackageType
	m.WorkDone = d.WorkDone
	if strings.TrimSpace(m.Body) == "" {
		m.Body = "Delivery completed: " + d.WorkDone
	}
}

func (o OrderMeta) Apply(m *ChatMessage) {
	m.Kind = KindOrder
	m.OrderID = o.OrderID
	m.PackageType = o.PackageType
	m.PriceMinorUnits = MinorUnits(o.Price)
	m.Duration = o.Duration
	m.Status = StatusPending
}

// DecodeMeta parses raw into the schema belonging to kind and applies it to m.
// Unknown fields are rejected. Kinds without a schema must not carry meta.
func DecodeMeta(kind Kind, raw json.RawMessage, m *ChatMessage) error {
	empty := len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
	if !kind.IsOrderLike() {
		if !empty {
			return fmt.Errorf("%w: %s messages take no meta", ErrInvalidMeta, kind)
		}
		return nil
	}
	if empty {
		return fmt.Errorf("%w: %s requires meta", ErrInvalidMeta, kind)
	}

	switch kind {
	case KindOffer:
		var o OfferMeta
		if err := strictDecode(raw, &o); err != nil {
			return err
		}
		if err := o.Validate(); err != nil {
			return err
		}
		o.Apply(m)
	case KindDelivery:
		var d DeliveryMeta
		if err := strictDecode(raw, &d); err != nil {
			return err
		}
		if err := d.Validate(); err != nil {
			return err
		}
		d.Apply(m)
	case KindOrder:
		var o OrderMeta
		if err := strictDecode(raw, &o); err != nil {
			return err
		}
		if err := o.Validate(); err != nil {
			return err
		}
		o.Apply(m)
	}
	return nil
}

func strictDecode(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMeta, err)
	}
	return nil
}
