// Package receipt turns billing records into printable receipts: it
// normalizes customer records once at ingestion, lays out single and
// multi-customer receipts and renders them to bitmaps.
package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// AnonymousName is used when a record carries no name at all.
const AnonymousName = "Անանուն օգտատեր"

// Field is a JSON value that may arrive as a string, a number or null.
type Field string

// UnmarshalJSON accepts strings, numbers and null.
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Field(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("receipt: field is neither string nor number: %s", data)
	}
	*f = Field(n.String())
	return nil
}

// Record is a customer record as returned by the billing API. Different
// endpoints fill different subsets of these fields.
type Record struct {
	Name              Field `json:"name"`
	CustomerName      Field `json:"customerName"`
	FullName          Field `json:"fullName"`
	CustomerID        Field `json:"customerId"`
	ID                Field `json:"id"`
	MNumber           Field `json:"mNumber"`
	PhoneNumber       Field `json:"phoneNumber"`
	MobilePhoneNumber Field `json:"mobilePhoneNumber"`
	Address           Field `json:"address"`
	StreetName        Field `json:"streetName"`
	Building          Field `json:"building"`
	Apartment         Field `json:"apartment"`
	PaymentDay        Field `json:"expectedPaymentDay"`
	PaymentAmount     Field `json:"expectedPaymentAmount"`
}

// Customer is the normalized form of a Record.
type Customer struct {
	ID         string
	Name       string
	Phone      string
	Address    string
	PaymentDay string
	// Expected is the expected payment in dram.
	Expected int64
}

// Key identifies the customer within a list: the id, or the phone
// number for records without one.
func (c Customer) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Phone
}

func first(fields ...Field) string {
	for _, f := range fields {
		if s := strings.TrimSpace(string(f)); s != "" {
			return s
		}
	}
	return ""
}

// Normalize resolves the field fallbacks of r.
func (r Record) Normalize() Customer {
	name := first(r.Name, r.CustomerName, r.FullName)
	if name == "" {
		name = AnonymousName
	}
	addr := first(r.Address)
	if addr == "" {
		addr = strings.Join(strings.Fields(strings.Join([]string{
			string(r.StreetName), string(r.Building), string(r.Apartment),
		}, " ")), " ")
	}
	expected, _ := ParseAmount(string(r.PaymentAmount))

	return Customer{
		ID:         first(r.CustomerID, r.ID),
		Name:       name,
		Phone:      first(r.MNumber, r.PhoneNumber, r.MobilePhoneNumber),
		Address:    addr,
		PaymentDay: first(r.PaymentDay),
		Expected:   expected,
	}
}

// LoadRecords reads a JSON array of records, or a single record object,
// and normalizes each one.
func LoadRecords(r io.Reader) ([]Customer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("receipt: read records: %w", err)
	}
	data = bytes.TrimSpace(data)

	var records []Record
	if len(data) > 0 && data[0] == '{' {
		var one Record
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("receipt: parse record: %w", err)
		}
		records = []Record{one}
	} else if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("receipt: parse records: %w", err)
	}

	customers := make([]Customer, len(records))
	for i, rec := range records {
		customers[i] = rec.Normalize()
	}
	return customers, nil
}

// Find returns the customer whose id or phone number equals key.
func Find(customers []Customer, key string) (Customer, bool) {
	for _, c := range customers {
		if c.ID == key || c.Phone == key {
			return c, true
		}
	}
	return Customer{}, false
}

// ParseAmount parses a dram amount such as "5000" or "5000.00",
// rounding to whole dram. Empty input is zero.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("receipt: invalid amount %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("receipt: negative amount %q", s)
	}
	return int64(math.Round(v)), nil
}
