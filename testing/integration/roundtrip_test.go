package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/zoobzio/muesli"
	"github.com/zoobzio/muesli/msgpack"
	muesliest "github.com/zoobzio/muesli/testing"
	"golang.org/x/sync/errgroup"
)

func TestRoundTrip_Settings(t *testing.T) {
	tests := []struct {
		name string
		opts []muesli.Option
	}{
		{"defaults", nil},
		{"emit defaults", []muesli.Option{muesli.WithEmitDefaultValues(true)}},
		{"without aliases", []muesli.Option{muesli.WithEmitAlias(false)}},
		{"short type names", []muesli.Option{muesli.WithShortTypeNames(true)}},
		{"unsorted", []muesli.Option{muesli.WithSortKeys(false, nil)}},
		{"flow sequences", []muesli.Option{muesli.WithFlowSequenceLimit(8)}},
		{"wide indent", []muesli.Option{muesli.WithIndent(4)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := muesliest.NewSerializer(t, tt.opts...)
			original := muesliest.SampleOrder()

			got, _ := muesliest.RoundTrip(t, s, original)
			muesliest.AssertEqual(t, original, got)
		})
	}
}

func TestRoundTrip_SharedCustomer(t *testing.T) {
	s := muesliest.NewSerializer(t, muesli.WithEmitAlias(true))

	got, data := muesliest.RoundTrip(t, s, muesliest.SampleLedger())
	if len(got.Orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(got.Orders))
	}
	if got.Orders[0].Customer != got.Orders[1].Customer {
		t.Errorf("customer should be shared after reading:\n%s", data)
	}
	if strings.Count(string(data), "c-1") != 1 {
		t.Errorf("shared customer should be written once:\n%s", data)
	}
}

func TestRoundTrip_SharedCustomerWithoutAliases(t *testing.T) {
	s := muesliest.NewSerializer(t, muesli.WithEmitAlias(false))

	got, data := muesliest.RoundTrip(t, s, muesliest.SampleLedger())
	if got.Orders[0].Customer == got.Orders[1].Customer {
		t.Error("without aliases every reference is a copy")
	}
	if strings.Count(string(data), "c-1") != 2 {
		t.Errorf("customer should be written per order:\n%s", data)
	}
}

func TestJSONCompatible_Order(t *testing.T) {
	s := muesliest.NewSerializer(t, muesli.WithJSONCompatible(true))
	order := muesliest.SampleOrder()
	order.Items = nil

	data, err := s.Serialize(context.Background(), order)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, data)
	}
	if out["id"] != "ord-1" {
		t.Errorf("id = %v, want ord-1", out["id"])
	}

	got, _, err := muesli.Decode[*muesliest.Order](context.Background(), s, data)
	if err != nil {
		t.Fatalf("JSON output should read back: %v", err)
	}
	muesliest.AssertEqual(t, order, got)
}

func TestDeserialize_AliasedMember(t *testing.T) {
	s := muesliest.NewSerializer(t)

	got, report, err := muesli.Decode[muesliest.Customer](context.Background(), s, []byte("id: c-9\nmail: x@example.com\n"))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Email != "x@example.com" {
		t.Errorf("Email = %q, want x@example.com", got.Email)
	}
	if !report.Remapped {
		t.Error("reading an alias should mark the report remapped")
	}
}

func TestDeserializeAll_Stream(t *testing.T) {
	s := muesliest.NewSerializer(t)
	doc := "id: c-1\nemail: a@example.com\n---\nid: c-2\nemail: b@example.com\n---\nid: c-3\n"

	values, _, err := s.DeserializeAll(context.Background(), []byte(doc), reflect.TypeFor[*muesliest.Customer]())
	if err != nil {
		t.Fatalf("DeserializeAll() error: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("documents = %d, want 3", len(values))
	}
	if last := values[2].(*muesliest.Customer); last.ID != "c-3" || last.Email != "" {
		t.Errorf("last document = %+v", last)
	}
}

func TestRoundTrip_SharedCustomerByDefault(t *testing.T) {
	s := muesliest.NewSerializer(t)

	got, data := muesliest.RoundTrip(t, s, muesliest.SampleLedger())
	if got.Orders[0].Customer != got.Orders[1].Customer {
		t.Errorf("default settings should keep the customer shared:\n%s", data)
	}
}

func TestSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muesli.yaml")
	settings := "naming_convention: camel\nemit_alias: true\nallow_errors: true\n"
	if err := os.WriteFile(path, []byte(settings), 0o600); err != nil {
		t.Fatal(err)
	}

	opt, err := muesli.LoadSettingsFile(path)
	if err != nil {
		t.Fatalf("LoadSettingsFile() error: %v", err)
	}

	type window struct {
		MinWidth int
		Title    string
	}
	s := muesliest.NewSerializer(t, opt)

	data, err := s.Serialize(context.Background(), window{MinWidth: 300, Title: "main"})
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	if !strings.Contains(string(data), "minWidth: 300") {
		t.Errorf("camel case names expected:\n%s", data)
	}

	got, report, err := muesli.Decode[window](context.Background(), s, []byte("minWidth: wide\ntitle: main\n"))
	if err != nil {
		t.Fatalf("Decode() with errors allowed: %v", err)
	}
	if got.Title != "main" || len(report.Warnings) != 1 {
		t.Errorf("got %+v with %d warnings, want title main and 1 warning", got, len(report.Warnings))
	}
}

func TestCodecs(t *testing.T) {
	codecs := []muesli.Codec{muesli.New(), msgpack.New()}
	original := muesliest.Customer{ID: "c-1", Email: "ada@example.com"}

	for _, c := range codecs {
		t.Run(c.ContentType(), func(t *testing.T) {
			data, err := c.Marshal(original)
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}
			var got muesliest.Customer
			if err := c.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			muesliest.AssertEqual(t, original, got)
		})
	}
}

func TestConcurrentSerializers(t *testing.T) {
	s := muesliest.NewSerializer(t, muesli.WithEmitAlias(true))
	ctx := context.Background()

	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			ledger := muesliest.SampleLedger()
			data, err := muesli.Encode(ctx, s, ledger)
			if err != nil {
				return err
			}
			_, _, err = muesli.Decode[*muesliest.Ledger](ctx, s, data)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent round trip: %v", err)
	}
}

func TestClone_Order(t *testing.T) {
	s := muesliest.NewSerializer(t)
	original := muesliest.SampleOrder()

	clone, err := muesli.Clone(context.Background(), s, original)
	if err != nil {
		t.Fatalf("Clone() error: %v", err)
	}
	muesliest.AssertEqual(t, original, clone)

	clone.Customer.Email = "changed"
	clone.Notes["gate"] = "Z"
	if original.Customer.Email != "ada@example.com" || original.Notes["gate"] != "B" {
		t.Error("Clone() should not share state with the original")
	}
}
