package fundkrawler

// Variant selects which yield window of the theme feed is requested. Its value
// is sent verbatim as the `st` query parameter.
type Variant string

// Variant constant definitions
const (
	VariantWeek    Variant = "SYL_W"
	VariantMonth   Variant = "SYL_M"
	VariantQuarter Variant = "SYL_Q"
	VariantYear    Variant = "SYL_1N"
)

// AllVariants lists every variant the feed knows about, shortest window first.
var AllVariants = []Variant{VariantWeek, VariantMonth, VariantQuarter, VariantYear}

// Label returns a human friendly name used for store directories and logs.
// Unknown variants are returned unchanged.
func (v Variant) Label() string {
	switch v {
	case VariantWeek:
		return "week"
	case VariantMonth:
		return "month"
	case VariantQuarter:
		return "quarter"
	case VariantYear:
		return "year"
	default:
		return string(v)
	}
}

func (v Variant) String() string {
	return string(v)
}
