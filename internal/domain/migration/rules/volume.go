package rules

import domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"

var volumeRules = []Rule{
	{Name: "CT1", Check: func(c *Checker, r domain.Record) { c.Required(r) }},
	{Name: "CT2", Check: func(c *Checker, r domain.Record) {
		c.OneOf(r, domain.FieldProduct, domain.Products, domain.CodeInvalidProduct)
	}},
	{Name: "CT3", Check: checkOccurrenceMonth},
	{Name: "CT4", Check: checkVolumeCount},
	{Name: "CT5", Check: func(c *Checker, r domain.Record) { c.BoxCode(r) }},
}

func checkOccurrenceMonth(c *Checker, r domain.Record) {
	value := r.Value(domain.FieldOccurrenceMonth)
	if value == "" {
		return
	}
	if _, err := domain.ParseMonth(value); err != nil {
		c.fail(domain.CodeInvalidMonthFormat, domain.FieldOccurrenceMonth,
			"%s %q is not a valid month (MM/YYYY)", c.header(domain.FieldOccurrenceMonth), value)
	}
}

func checkVolumeCount(c *Checker, r domain.Record) {
	value := r.Value(domain.FieldVolumeCount)
	if value == "" {
		return
	}
	if _, err := domain.ParseCount(value); err != nil {
		c.fail(domain.CodeInvalidNumber, domain.FieldVolumeCount,
			"%s %q must be a positive whole number", c.header(domain.FieldVolumeCount), value)
	}
}
