package rules

import domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"

// creditRules are shared by the contract and CIF sheets, which describe the same
// credit documents keyed differently.
func creditRules() []Rule {
	return []Rule{
		{Name: "CT1", Check: func(c *Checker, r domain.Record) { c.Required(r) }},
		{Name: "CT2", Check: func(c *Checker, r domain.Record) {
			c.OneOf(r, domain.FieldDocumentFlow, domain.DocumentFlows, domain.CodeInvalidDocumentFlow)
		}},
		{Name: "CT3", Check: func(c *Checker, r domain.Record) {
			c.OneOf(r, domain.FieldCreditTermCategory, domain.CreditTermCategories, domain.CodeInvalidCreditTerm)
		}},
		{Name: "CT4", Check: func(c *Checker, r domain.Record) {
			c.OneOf(r, domain.FieldDocumentType, domain.DocumentTypes, domain.CodeInvalidDocumentType)
		}},
		{Name: "CT5", Check: func(c *Checker, r domain.Record) {
			c.Date(r, domain.FieldDisbursementDate)
			c.Date(r, domain.FieldDueDate)
			c.Date(r, domain.FieldDestructionDate)
		}},
		{Name: "CT6", Check: checkDueAfterDisbursement},
		{Name: "CT7", Check: func(c *Checker, r domain.Record) { c.BoxCode(r) }},
		{Name: "CT8", Check: checkDestructionSentinel},
	}
}

func checkDueAfterDisbursement(c *Checker, r domain.Record) {
	disbursed := date(r, domain.FieldDisbursementDate)
	due := date(r, domain.FieldDueDate)
	if disbursed == nil || due == nil {
		return
	}
	if due.Before(*disbursed) {
		c.fail(domain.CodeInvalidDateRange, domain.FieldDueDate, "%s %s is before %s %s",
			c.header(domain.FieldDueDate), domain.FormatDate(due),
			c.header(domain.FieldDisbursementDate), domain.FormatDate(disbursed))
	}
}

// checkDestructionSentinel: permanent documents, and documents without a due date,
// can only carry the 9999-12-31 destruction date.
func checkDestructionSentinel(c *Checker, r domain.Record) {
	destruction := date(r, domain.FieldDestructionDate)
	if destruction == nil {
		return
	}
	permanent := domain.IsPermanent(r.Value(domain.FieldCreditTermCategory))
	noDueDate := r.Value(domain.FieldDueDate) == ""
	if !permanent && !noDueDate {
		return
	}
	if !destruction.Equal(domain.SentinelDestructionDate) {
		c.fail(domain.CodeInvalidDestructionDate, domain.FieldDestructionDate,
			"%s must be 31/12/9999 when there is no due date or the credit term is %s, got %s",
			c.header(domain.FieldDestructionDate), domain.CreditTermPermanent, domain.FormatDate(destruction))
	}
}

var (
	contractRules = creditRules()
	cifRules      = creditRules()
)
