package enrichment

// rule is the tax treatment a classification tier assigns.
type rule struct {
	Category      string
	Deductible    bool
	DeductiblePct int
	ScheduleRef   string
}

// patternRule matches a lowercase substring against merchant or category
// text. Ordered: the first match wins, so evaluation stays deterministic.
type patternRule struct {
	Pattern string
	Rule    rule
}

// mccRules maps merchant category codes to tax treatment.
// Key: ISO 18245 MCC as it appears on the wire (e.g. "8398").
var mccRules = map[string]rule{
	"8398": {"charitable_donation", true, 100, "Schedule A"},
	"8011": {"medical_expense", true, 100, "Schedule A"},
	"8021": {"medical_expense", true, 100, "Schedule A"},
	"8041": {"medical_expense", true, 100, "Schedule A"},
	"8062": {"medical_expense", true, 100, "Schedule A"},
	"5912": {"medical_expense", true, 100, "Schedule A"},
	"9311": {"tax_payment", false, 0, ""},
	"8211": {"education", false, 0, ""},
	"8220": {"education", false, 0, ""},
	"8299": {"education", false, 0, ""},
	"8351": {"childcare", false, 0, ""},
	"5943": {"office_supplies", true, 100, "Schedule C"},
	"7372": {"software_subscription", true, 100, "Schedule C"},
	"4814": {"phone_internet", true, 50, "Schedule C"},
	"5411": {"groceries", false, 0, ""},
	"5812": {"dining", false, 0, ""},
	"5814": {"dining", false, 0, ""},
	"4111": {"transportation", false, 0, ""},
	"4121": {"transportation", false, 0, ""},
	"4511": {"travel", false, 0, ""},
	"7011": {"travel", false, 0, ""},
	"4900": {"utilities", false, 0, ""},
	"6300": {"insurance", false, 0, ""},
	"6513": {"rent", false, 0, ""},
}

// merchantRules match against the merchant/payee text when no MCC matched.
var merchantRules = []patternRule{
	{"goodwill", rule{"charitable_donation", true, 100, "Schedule A"}},
	{"salvation army", rule{"charitable_donation", true, 100, "Schedule A"}},
	{"red cross", rule{"charitable_donation", true, 100, "Schedule A"}},
	{"united way", rule{"charitable_donation", true, 100, "Schedule A"}},
	{"cvs", rule{"medical_expense", true, 100, "Schedule A"}},
	{"walgreens", rule{"medical_expense", true, 100, "Schedule A"}},
	{"aws", rule{"software_subscription", true, 100, "Schedule C"}},
	{"github", rule{"software_subscription", true, 100, "Schedule C"}},
	{"zoom.us", rule{"software_subscription", true, 100, "Schedule C"}},
	{"coursera", rule{"education", false, 0, ""}},
	{"udemy", rule{"education", false, 0, ""}},
	{"uber", rule{"transportation", false, 0, ""}},
	{"lyft", rule{"transportation", false, 0, ""}},
	{"airbnb", rule{"travel", false, 0, ""}},
	{"delta air", rule{"travel", false, 0, ""}},
	{"united airlines", rule{"travel", false, 0, ""}},
	{"starbucks", rule{"dining", false, 0, ""}},
	{"whole foods", rule{"groceries", false, 0, ""}},
	{"trader joe", rule{"groceries", false, 0, ""}},
	{"geico", rule{"insurance", false, 0, ""}},
	{"state farm", rule{"insurance", false, 0, ""}},
	{"comcast", rule{"phone_internet", true, 50, "Schedule C"}},
	{"verizon", rule{"phone_internet", true, 50, "Schedule C"}},
}

// categoryRules match against the raw provider category when neither MCC nor
// merchant matched.
var categoryRules = []patternRule{
	{"payroll", rule{"salary_income", false, 0, ""}},
	{"salary", rule{"salary_income", false, 0, ""}},
	{"dividend", rule{"dividend_income", false, 0, "Schedule B"}},
	{"interest earned", rule{"interest_income", false, 0, "Schedule B"}},
	{"interest income", rule{"interest_income", false, 0, "Schedule B"}},
	{"rental income", rule{"rental_income", false, 0, "Schedule E"}},
	{"charit", rule{"charitable_donation", true, 100, "Schedule A"}},
	{"donation", rule{"charitable_donation", true, 100, "Schedule A"}},
	{"medical", rule{"medical_expense", true, 100, "Schedule A"}},
	{"healthcare", rule{"medical_expense", true, 100, "Schedule A"}},
	{"tax", rule{"tax_payment", false, 0, ""}},
	{"education", rule{"education", false, 0, ""}},
	{"tuition", rule{"education", false, 0, ""}},
	{"child care", rule{"childcare", false, 0, ""}},
	{"food and drink", rule{"dining", false, 0, ""}},
	{"restaurants", rule{"dining", false, 0, ""}},
	{"groceries", rule{"groceries", false, 0, ""}},
	{"travel", rule{"travel", false, 0, ""}},
	{"rent", rule{"rent", false, 0, ""}},
	{"utilities", rule{"utilities", false, 0, ""}},
	{"insurance", rule{"insurance", false, 0, ""}},
	{"subscription", rule{"software_subscription", false, 0, ""}},
	{"bank fees", rule{"bank_fees", false, 0, ""}},
	{"deposit", rule{"general_income", false, 0, ""}},
}

// taxAuthorityPatterns is the fixed payee/category pattern set that alone may
// flag a transaction as a tax payment. Ordered: more specific payment types
// are matched before generic federal/state patterns.
var taxAuthorityPatterns = []struct {
	Pattern     string
	PaymentType string
}{
	{"estimated tax", "estimated"},
	{"irs", "federal"},
	{"internal revenue", "federal"},
	{"us treasury", "federal"},
	{"u.s. treasury", "federal"},
	{"ustreasury", "federal"},
	{"franchise tax", "state"},
	{"department of revenue", "state"},
	{"dept of revenue", "state"},
	{"state tax", "state"},
	{"tax payment", "other"},
}
