package receipt

import (
	"strings"
	"testing"
)

func TestNormalizeFallbacks(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want Customer
	}{
		{
			name: "primary fields",
			rec: Record{
				Name: "Արամ", CustomerID: "77", ID: "1", MNumber: "091000000",
				PhoneNumber: "093", Address: "Abovyan 1", PaymentDay: "15", PaymentAmount: "5000",
			},
			want: Customer{ID: "77", Name: "Արամ", Phone: "091000000", Address: "Abovyan 1", PaymentDay: "15", Expected: 5000},
		},
		{
			name: "secondary fields",
			rec: Record{
				CustomerName: "Anna", ID: "2", PhoneNumber: "093111111",
				StreetName: "Tumanyan", Building: "5", Apartment: "12",
			},
			want: Customer{ID: "2", Name: "Anna", Phone: "093111111", Address: "Tumanyan 5 12"},
		},
		{
			name: "last resort fields",
			rec:  Record{FullName: "Davit", MobilePhoneNumber: "094", Building: "9"},
			want: Customer{Name: "Davit", Phone: "094", Address: "9"},
		},
		{
			name: "anonymous",
			rec:  Record{Name: "  "},
			want: Customer{Name: AnonymousName},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Normalize(); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCustomerKey(t *testing.T) {
	if k := (Customer{ID: "5", Phone: "091"}).Key(); k != "5" {
		t.Errorf("Key() = %q, want 5", k)
	}
	if k := (Customer{Phone: "091"}).Key(); k != "091" {
		t.Errorf("Key() = %q, want 091", k)
	}
}

func TestLoadRecords(t *testing.T) {
	input := `[
		{"customerId": 1001, "fullName": "Anna", "mobilePhoneNumber": "093", "expectedPaymentAmount": 4500.4},
		{"id": "x2", "name": null, "streetName": "Komitas", "building": 3}
	]`
	customers, err := LoadRecords(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(customers) != 2 {
		t.Fatalf("got %d customers, want 2", len(customers))
	}
	if customers[0].ID != "1001" || customers[0].Expected != 4500 {
		t.Errorf("customers[0] = %+v", customers[0])
	}
	if customers[1].Name != AnonymousName || customers[1].Address != "Komitas 3" {
		t.Errorf("customers[1] = %+v", customers[1])
	}
}

func TestLoadRecordsSingleObject(t *testing.T) {
	customers, err := LoadRecords(strings.NewReader(`{"name": "Solo", "id": 9}`))
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(customers) != 1 || customers[0].ID != "9" {
		t.Errorf("customers = %+v", customers)
	}
}

func TestLoadRecordsInvalid(t *testing.T) {
	if _, err := LoadRecords(strings.NewReader(`[{"id": true}]`)); err == nil {
		t.Error("LoadRecords should reject a boolean id")
	}
	if _, err := LoadRecords(strings.NewReader(`not json`)); err == nil {
		t.Error("LoadRecords should reject invalid JSON")
	}
}

func TestFind(t *testing.T) {
	customers := []Customer{{ID: "1", Phone: "091"}, {ID: "2", Phone: "093"}}
	if c, ok := Find(customers, "093"); !ok || c.ID != "2" {
		t.Errorf("Find(093) = %+v, %v", c, ok)
	}
	if _, ok := Find(customers, "nope"); ok {
		t.Error("Find(nope) should not match")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"5000", 5000, false},
		{" 1250.50 ", 1251, false},
		{"-1", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
