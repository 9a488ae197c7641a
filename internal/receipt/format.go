package receipt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chaz8081/thermobill/internal/escpos"
	"github.com/chaz8081/thermobill/internal/text"
)

// Separator spans the 32 character line of a 58mm printer.
var Separator = strings.Repeat("=", 32)

// Locale selects receipt labels and month names.
type Locale string

const (
	Armenian Locale = "hy"
	English  Locale = "en"
)

// ParseLocale maps a config value to a Locale.
func ParseLocale(s string) (Locale, error) {
	switch Locale(s) {
	case Armenian, "":
		return Armenian, nil
	case English:
		return English, nil
	default:
		return Armenian, fmt.Errorf("receipt: unknown locale %q", s)
	}
}

type labels struct {
	collector, name, address, phone     string
	paymentDay, expected, paid, date    string
	number, customers, total, signature string
	currency                            string
	months                              [12]string
}

var localeLabels = map[Locale]labels{
	Armenian: {
		collector:  "Գանձող",
		name:       "Անուն, ազգանուն",
		address:    "Հասցե",
		phone:      "Հեռ.",
		paymentDay: "Վճարման օր",
		expected:   "Գումար",
		paid:       "Վճարված գումար",
		date:       "Ամսաթիվ",
		number:     "Անդորրագիր",
		customers:  "Ընդհանուր օգտատերեր",
		total:      "Ընդհանուր գումար",
		signature:  "Ստորագրություն",
		currency:   "դրամ",
		months: [12]string{
			"Հունվար", "Փետրվար", "Մարտ", "Ապրիլ", "Մայիս", "Հունիս",
			"Հուլիս", "Օգոստոս", "Սեպտեմբեր", "Հոկտեմբեր", "Նոյեմբեր", "Դեկտեմբեր",
		},
	},
	English: {
		collector:  "Collector",
		name:       "Name",
		address:    "Address",
		phone:      "Phone",
		paymentDay: "Payment day",
		expected:   "Amount",
		paid:       "Paid",
		date:       "Date",
		number:     "Receipt",
		customers:  "Customers",
		total:      "Total",
		signature:  "Signature",
		currency:   "AMD",
		months: [12]string{
			"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December",
		},
	},
}

func (l Locale) labels() labels {
	if lb, ok := localeLabels[l]; ok {
		return lb
	}
	return localeLabels[Armenian]
}

// MonthName returns the localized name of m.
func (l Locale) MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return l.labels().months[m-1]
}

// Style is the print style of one line.
type Style struct {
	Align  escpos.Alignment
	Bold   bool
	Double bool
}

// Line is one printed line of a Document.
type Line struct {
	Text  string
	Style Style
}

// Document is a laid out receipt ready for rendering or direct text printing.
type Document struct {
	Lines []Line
	// QR is encoded as a QR code under the text when non-empty.
	QR string
}

func (d *Document) add(s string, st Style) {
	d.Lines = append(d.Lines, Line{Text: s, Style: st})
}

func (d *Document) field(label, value string) {
	if value == "" {
		return
	}
	d.add(label+": "+value, Style{})
}

// Text returns the document as plain lines.
func (d Document) Text() string {
	var b strings.Builder
	for _, l := range d.Lines {
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// EscPos renders the document on the direct text path, carrying
// alignment, emphasis and size as ESC/POS commands.
func (d Document) EscPos(o text.Options) []byte {
	cp := o.PageFor(o.Prepare(d.Text()))
	ts := escpos.NewTextStream()
	ts.CodePage(cp.Selector)
	var cur Style
	for _, l := range d.Lines {
		if l.Style.Align != cur.Align {
			ts.Align(l.Style.Align)
		}
		if l.Style.Bold != cur.Bold {
			ts.Bold(l.Style.Bold)
		}
		if l.Style.Double != cur.Double {
			size := escpos.SizeNormal
			if l.Style.Double {
				size = escpos.SizeDouble
			}
			ts.Size(size)
		}
		cur = l.Style
		ts.Line(cp.Encode(o.Prepare(l.Text)))
	}
	return ts.Bytes(o.FeedLines)
}

// Fields are the inputs of a single payment receipt.
type Fields struct {
	Company   string
	Collector string
	Customer  Customer
	// Paid is the collected amount in dram.
	Paid int64
	// Month is the billing month printed next to the payment day.
	Month  time.Month
	Date   time.Time
	Number string
}

// FormatAmount formats a dram amount with the locale currency.
func (l Locale) FormatAmount(v int64) string {
	return strconv.FormatInt(v, 10) + " " + l.labels().currency
}

// FormatReceipt lays out a payment receipt.
func FormatReceipt(f Fields, loc Locale) Document {
	lb := loc.labels()
	center := Style{Align: escpos.AlignCenter}

	var d Document
	d.add(f.Company, Style{Align: escpos.AlignCenter, Bold: true, Double: true})
	d.add(Separator, center)
	d.field(lb.collector, f.Collector)
	d.field(lb.name, f.Customer.Name)
	d.field("ID", f.Customer.ID)
	d.field(lb.address, f.Customer.Address)
	d.field(lb.phone, f.Customer.Phone)
	if day := f.Customer.PaymentDay; day != "" {
		if m := loc.MonthName(f.Month); m != "" {
			day += " " + m
		}
		d.field(lb.paymentDay, day)
	}
	if f.Customer.Expected > 0 {
		d.field(lb.expected, loc.FormatAmount(f.Customer.Expected))
	}
	d.add(Separator, center)
	if !f.Date.IsZero() {
		d.field(lb.date, f.Date.Format("02.01.2006 15:04"))
	}
	d.add(lb.paid+": "+loc.FormatAmount(f.Paid), Style{Bold: true})
	if f.Number != "" {
		d.field(lb.number, f.Number)
		d.QR = f.Number
	}
	return d
}

// ListEntry is one customer on a list receipt with the amount entered for them.
type ListEntry struct {
	Customer Customer
	Amount   int64
}

// Total sums the entry amounts.
func Total(entries []ListEntry) int64 {
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	return sum
}

// FormatList lays out a multi-customer collection list with a grand total.
func FormatList(company string, entries []ListEntry, date time.Time, loc Locale) Document {
	lb := loc.labels()
	center := Style{Align: escpos.AlignCenter}

	var d Document
	d.add(company, Style{Align: escpos.AlignCenter, Bold: true, Double: true})
	if !date.IsZero() {
		d.field(lb.date, date.Format("02.01.2006"))
	}
	d.field(lb.customers, strconv.Itoa(len(entries)))
	d.add(Separator, center)
	for i, e := range entries {
		d.add(fmt.Sprintf("%d. %s", i+1, e.Customer.Name), Style{Bold: true})
		d.field(" ID", e.Customer.ID)
		d.field(" "+lb.phone, e.Customer.Phone)
		d.field(" "+lb.address, e.Customer.Address)
		d.field(lb.expected, loc.FormatAmount(e.Amount))
		d.add(lb.signature+": _______________", Style{})
		d.add(" ", Style{})
	}
	d.add(Separator, center)
	d.add(lb.total+": "+loc.FormatAmount(Total(entries)), Style{Bold: true})
	return d
}
