package migration

const (
	CreditTermShort     = "Ngắn hạn"
	CreditTermMedium    = "Trung hạn"
	CreditTermLong      = "Dài hạn"
	CreditTermPermanent = "Vĩnh viễn"
)

var (
	DocumentFlows        = []string{"HSTD thường", "HSTD trung dài hạn", "HSTD thấu chi", "HSTD thẻ"}
	CreditTermCategories = []string{CreditTermShort, CreditTermMedium, CreditTermLong, CreditTermPermanent}
	DocumentTypes        = []string{"PASS TTN", "PASS TSBĐ", "HĐTD", "KUNN"}
	Products             = []string{"Cho vay", "Thẻ tín dụng", "Bảo lãnh", "Thấu chi"}
)

// retentionYears is how long a document is kept after its due date.
var retentionYears = map[string]int{
	CreditTermShort:  5,
	CreditTermMedium: 10,
	CreditTermLong:   20,
}

// InAllowList reports exact membership after NFC normalization.
func InAllowList(value string, allowed []string) bool {
	value = NormalizeText(value)
	for _, candidate := range allowed {
		if NormalizeText(candidate) == value {
			return true
		}
	}
	return false
}

func IsPermanent(category string) bool {
	return NormalizeText(category) == NormalizeText(CreditTermPermanent)
}
