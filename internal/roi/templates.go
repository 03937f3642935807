package roi

import (
	"fmt"
	"sort"

	"docscan/internal/datefmt"
)

// Template is one document layout: a full ROI table plus its date conventions.
type Template struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	DateStyle   datefmt.Style `json:"date_style"`
	DateOrder   datefmt.Order `json:"date_order"`
	Fields      []Field       `json:"fields"`
}

// Extent returns the smallest image size that contains every ROI of the template.
func (t *Template) Extent() (width, height int) {
	for _, f := range t.Fields {
		b := f.Bounds()
		width = max(width, b.X2)
		height = max(height, b.Y2)
	}
	return width, height
}

// Field returns the named field.
func (t *Template) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks every rectangle and rejects duplicate names.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("roi: template has no name")
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("roi: template %s has no fields", t.Name)
	}

	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("roi: template %s has a field without a name", t.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("roi: template %s declares %s twice", t.Name, f.Name)
		}
		seen[f.Name] = true

		if f.Composite() {
			if f.Kind != KindDate {
				return fmt.Errorf("roi: %s.%s has digit slots but is a %s field", t.Name, f.Name, f.Kind)
			}
			for _, d := range f.Digits {
				if !d.Rect.Valid() {
					return fmt.Errorf("roi: %s.%s.%s has invalid rectangle %s", t.Name, f.Name, d.Name, d.Rect)
				}
			}
			continue
		}
		if !f.Rect.Valid() {
			return fmt.Errorf("roi: %s.%s has invalid rectangle %s", t.Name, f.Name, f.Rect)
		}
	}
	return nil
}

// digitRow lays out equally wide slots left to right starting at x.
func digitRow(x, y1, y2, width int, names ...string) []Digit {
	digits := make([]Digit, len(names))
	for i, n := range names {
		digits[i] = Digit{Name: n, Rect: R(x+i*width, y1, x+(i+1)*width, y2)}
	}
	return digits
}

// Cheque is the cheque layout. The date is printed in eight boxes, month first.
var Cheque = &Template{
	Name:        "cheque",
	Description: "Bank cheque: account block, boxed MMDDYYYY date, payee, amounts, two signatures, MICR line",
	DateStyle:   datefmt.Strict,
	DateOrder:   datefmt.MDY,
	Fields: []Field{
		Text("Account_Number", R(35, 100, 380, 130)),
		Text("Account_Name", R(430, 60, 980, 130)),
		Text("Check_Number", R(1390, 70, 1650, 100)),
		Text("BRSTN_Number", R(1750, 60, 1880, 130)),
		DateDigits("Date", digitRow(1585, 165, 220, 40, "M1", "M2", "D1", "D2", "Y1", "Y2", "Y3", "Y4")...),
		Text("Payee_Name", R(310, 280, 1350, 380)),
		Text("Amount_In_Digits", R(1440, 280, 1905, 380)),
		Text("Amount_In_Words", R(200, 390, 1905, 470)),
		Signature("Signature_1", R(1500, 550, 1905, 690)),
		Signature("Signature_2", R(1030, 550, 1440, 690)),
		Text("MICR_Code", R(470, 790, 725, 850)),
		Text("Bank_Name", R(130, 510, 400, 570)),
		Text("Branch_Name", R(40, 595, 400, 635)),
	},
}

// Mandate is the debit mandate layout. Dates are read as one region each and
// normalized with zero padding.
var Mandate = &Template{
	Name:        "mandate",
	Description: "Debit mandate: UMRN, sponsor and utility codes, bank account, amounts, validity period, three signatories",
	DateStyle:   datefmt.Padded,
	DateOrder:   datefmt.DMY,
	Fields: []Field{
		Text("UMRN_Number", R(480, 70, 1455, 132)),
		Date("Date1", R(1515, 70, 1955, 132)),
		Text("Sponsor_bank_Code", R(480, 132, 1045, 190)),
		Text("Utility_Code", R(1195, 132, 1955, 190)),
		Text("I/We_Hereby_Authorize", R(593, 192, 880, 230)),
		Text("Bank_A/C_Number", R(460, 230, 1955, 285)),
		Text("With_Bank", R(205, 293, 870, 339)),
		Text("IFSC_Code", R(940, 285, 1460, 340)),
		Text("MICR_Code", R(1570, 285, 1955, 340)),
		Text("Amount_in_Words", R(335, 348, 1503, 403)),
		Text("Amount_in_Digits", R(1560, 348, 1945, 403)),
		Text("Reference_1", R(240, 460, 1070, 510)),
		Text("Phone_No", R(1230, 450, 1800, 507)),
		Text("Reference_2", R(240, 510, 1070, 550)),
		Text("Email_ID", R(1220, 510, 1945, 550)),
		Date("Date_From", R(150, 610, 520, 670)),
		Date("Date_To", R(150, 680, 520, 740)),
		Signature("Signature_1", R(550, 600, 1000, 745)),
		Text("Name_1", R(580, 755, 1005, 815)),
		Signature("Signature_2", R(1020, 600, 1470, 745)),
		Text("Name_2", R(1055, 755, 1475, 815)),
		Signature("Signature_3", R(1490, 600, 1940, 745)),
		Text("Name_3", R(1533, 755, 1945, 815)),
	},
}

var registry = map[string]*Template{
	Cheque.Name:  Cheque,
	Mandate.Name: Mandate,
}

// Lookup returns the template registered under name.
func Lookup(name string) (*Template, bool) {
	t, ok := registry[name]
	return t, ok
}

// Templates returns all registered templates sorted by name.
func Templates() []*Template {
	out := make([]*Template, 0, len(registry))
	for _, t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered template names sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, t := range Templates() {
		names = append(names, t.Name)
	}
	return names
}
