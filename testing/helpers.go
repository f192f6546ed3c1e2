// Package testing provides test utilities for muesli.
package testing

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zoobzio/muesli"
	"go.uber.org/zap/zaptest"
)

// NewSerializer returns a Serializer logging to tb. Options are applied after
// the logger, so they may replace it.
func NewSerializer(tb testing.TB, opts ...muesli.Option) *muesli.Serializer {
	tb.Helper()
	return muesli.New(append([]muesli.Option{muesli.WithLogger(zaptest.NewLogger(tb))}, opts...)...)
}

// RoundTrip writes v with s and reads the document back as a T.
func RoundTrip[T any](tb testing.TB, s *muesli.Serializer, v T) (T, []byte) {
	tb.Helper()
	ctx := context.Background()

	data, err := muesli.Encode(ctx, s, v)
	if err != nil {
		tb.Fatalf("Encode(%T) error: %v", v, err)
	}
	got, report, err := muesli.Decode[T](ctx, s, data)
	if err != nil {
		tb.Fatalf("Decode[%s] error: %v\n%s", reflect.TypeFor[T](), err, data)
	}
	if len(report.Warnings) > 0 {
		tb.Fatalf("Decode[%s] warnings: %v", reflect.TypeFor[T](), report.Warnings)
	}
	return got, data
}

// AssertEqual fails tb with a diff when got differs from want.
func AssertEqual(tb testing.TB, want, got any, opts ...cmp.Option) {
	tb.Helper()
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		tb.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

// Item is anything an Order can hold.
type Item interface {
	Total() float64
}

// Product is an Item sold by unit.
type Product struct {
	SKU   string  `yaml:"sku"`
	Price float64 `yaml:"price"`
	Qty   int     `yaml:"qty,default=1"`
}

// Total implements Item.
func (p *Product) Total() float64 { return p.Price * float64(p.Qty) }

// Service is an Item billed by time.
type Service struct {
	Name  string        `yaml:"name"`
	Rate  float64       `yaml:"rate"`
	Spent time.Duration `yaml:"spent"`
}

// Total implements Item.
func (s *Service) Total() float64 { return s.Rate * s.Spent.Hours() }

// Customer is referenced from several orders.
type Customer struct {
	ID    string `yaml:"id,order=0"`
	Email string `yaml:"email,alias=mail"`
}

// Order is a typical document root: scalars, an ordered id, a polymorphic
// item list, a dictionary, a set and a shared reference.
type Order struct {
	ID       string              `yaml:"id,order=0"`
	Placed   time.Time           `yaml:"placed"`
	Customer *Customer           `yaml:"customer"`
	Items    []Item              `yaml:"items"`
	Notes    map[string]string   `yaml:"notes"`
	Flags    map[string]struct{} `yaml:"flags"`
	Weights  []float32           `yaml:"weights,mode=binary"`
}

// Ledger holds orders that share customers.
type Ledger struct {
	Orders []*Order `yaml:"orders"`
}

// SampleOrder returns an Order exercising every member.
func SampleOrder() *Order {
	return &Order{
		ID:       "ord-1",
		Placed:   time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		Customer: &Customer{ID: "c-1", Email: "ada@example.com"},
		Items: []Item{
			&Product{SKU: "bolt", Price: 0.25, Qty: 40},
			&Service{Name: "fitting", Rate: 60, Spent: 90 * time.Minute},
		},
		Notes:   map[string]string{"gate": "B", "dock": "3"},
		Flags:   map[string]struct{}{"fragile": {}, "priority": {}},
		Weights: []float32{1.5, 2.25},
	}
}

// SampleLedger returns two orders placed by the same customer.
func SampleLedger() *Ledger {
	first, second := SampleOrder(), SampleOrder()
	second.ID = "ord-2"
	second.Customer = first.Customer
	return &Ledger{Orders: []*Order{first, second}}
}
