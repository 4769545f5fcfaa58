package category

import (
	"sort"
	"strings"
)

// AllCategories is the form value of users who do not narrow by career path.
const AllCategories = "all-categories"

const (
	EarlyCareer = "early-career"
	Unsure      = "unsure"
)

// Career path categories stored on jobs.
const (
	StrategyBusinessDesign = "strategy-business-design"
	DataAnalytics          = "data-analytics"
	RetailLuxury           = "retail-luxury"
	SalesClientSuccess     = "sales-client-success"
	MarketingGrowth        = "marketing-growth"
	FinanceInvestment      = "finance-investment"
	OperationsSupplyChain  = "operations-supply-chain"
	ProductInnovation      = "product-innovation"
	TechTransformation     = "tech-transformation"
	SustainabilityESG      = "sustainability-esg"
)

var careerPaths = []string{
	StrategyBusinessDesign,
	DataAnalytics,
	RetailLuxury,
	SalesClientSuccess,
	MarketingGrowth,
	FinanceInvestment,
	OperationsSupplyChain,
	ProductInnovation,
	TechTransformation,
	SustainabilityESG,
}

// experience-level strings superseded by the job's boolean flags.
var experienceLevels = map[string]struct{}{
	"internship": {},
	"graduate":   {},
	"general":    {},
}

var formLabels = map[string]string{
	"Strategy & Business Design":  StrategyBusinessDesign,
	"Data & Analytics":            DataAnalytics,
	"Retail & Luxury":             RetailLuxury,
	"Sales & Client Success":      SalesClientSuccess,
	"Marketing & Growth":          MarketingGrowth,
	"Finance & Investment":        FinanceInvestment,
	"Operations & Supply Chain":   OperationsSupplyChain,
	"Product & Innovation":        ProductInnovation,
	"Tech & Transformation":       TechTransformation,
	"Sustainability & ESG":        SustainabilityESG,
	"Not Sure Yet / General":      Unsure,
	"strategy":                    StrategyBusinessDesign,
	"data":                        DataAnalytics,
	"retail":                      RetailLuxury,
	"sales":                       SalesClientSuccess,
	"marketing":                   MarketingGrowth,
	"finance":                     FinanceInvestment,
	"operations":                  OperationsSupplyChain,
	"product":                     ProductInnovation,
	"tech":                        TechTransformation,
	"sustainability":              SustainabilityESG,
	"Early Career / Entry Level":  EarlyCareer,
	"Graduate Programmes":         EarlyCareer,
	"Not sure yet":                Unsure,
}

var canonical = func() map[string]struct{} {
	set := make(map[string]struct{}, len(careerPaths)+2)
	for _, c := range CanonicalCategories() {
		set[c] = struct{}{}
	}
	return set
}()

// CanonicalCategories returns the full canonical vocabulary: every career path plus the early-career and unsure flags.
func CanonicalCategories() []string {
	out := make([]string, 0, len(careerPaths)+2)
	out = append(out, careerPaths...)
	return append(out, EarlyCareer, Unsure)
}

func IsCanonical(c string) bool {
	_, ok := canonical[c]
	return ok
}

// SatisfactionFunc scales the number of overlapping categories into 0..100.
// userCount is always greater than zero.
type SatisfactionFunc func(overlap, userCount int) float64

// ProportionalSatisfaction is the default scaling: share of the user's selection covered by the job.
func ProportionalSatisfaction(overlap, userCount int) float64 {
	return float64(overlap) / float64(userCount) * 100
}

// NeutralSatisfaction is returned for users without any category preference.
const NeutralSatisfaction = 1.0

// Mapper converts form labels to stored categories and scores category overlap.
// The zero value is not usable; construct it with New.
type Mapper struct {
	satisfaction SatisfactionFunc
}

type Option func(*Mapper)

// WithSatisfaction replaces the overlap scaling function.
func WithSatisfaction(fn SatisfactionFunc) Option {
	return func(m *Mapper) {
		if fn != nil {
			m.satisfaction = fn
		}
	}
}

func New(opts ...Option) *Mapper {
	m := &Mapper{satisfaction: ProportionalSatisfaction}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MapFormLabelToDatabase returns the stored category for a form label. Unknown labels pass through unchanged.
func (m *Mapper) MapFormLabelToDatabase(label string) string {
	if mapped, ok := formLabels[strings.TrimSpace(label)]; ok {
		return mapped
	}
	return label
}

// GetDatabaseCategoriesForForm expands the all-categories sentinel; any other value maps to itself.
func (m *Mapper) GetDatabaseCategoriesForForm(formValue string) []string {
	if strings.TrimSpace(formValue) == AllCategories {
		return CanonicalCategories()
	}
	return []string{formValue}
}

// ExpandForm maps and expands a list of form values into a deduplicated category set, preserving first-seen order.
func (m *Mapper) ExpandForm(formValues []string) []string {
	seen := make(map[string]struct{}, len(formValues))
	out := make([]string, 0, len(formValues))
	for _, v := range formValues {
		if strings.TrimSpace(v) == "" {
			continue
		}
		for _, c := range m.GetDatabaseCategoriesForForm(m.MapFormLabelToDatabase(v)) {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// GetStudentSatisfactionScore scores how well the job's categories cover the user's selection.
func (m *Mapper) GetStudentSatisfactionScore(jobCategories, userFormValues []string) float64 {
	user := m.ExpandForm(userFormValues)
	if len(user) == 0 {
		return NeutralSatisfaction
	}

	jobSet := make(map[string]struct{}, len(jobCategories))
	for _, c := range jobCategories {
		jobSet[c] = struct{}{}
	}

	overlap := 0
	for _, c := range user {
		if _, ok := jobSet[c]; ok {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}

	score := m.satisfaction(overlap, len(user))
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

// IsAllCategories reports whether the form values contain the all-categories sentinel.
func IsAllCategories(formValues []string) bool {
	for _, v := range formValues {
		if strings.TrimSpace(v) == AllCategories {
			return true
		}
	}
	return false
}

// CleanCategories normalizes a job's category list: labels are mapped, experience-level
// strings are dropped in favour of the job flags, non-canonical values are removed and
// unsure is kept only when nothing else remains. Applying it twice yields the same result.
func (m *Mapper) CleanCategories(categories []string) []string {
	set := make(map[string]struct{}, len(categories))
	for _, raw := range categories {
		c := strings.ToLower(strings.TrimSpace(m.MapFormLabelToDatabase(raw)))
		if _, ok := experienceLevels[c]; ok {
			continue
		}
		if !IsCanonical(c) {
			continue
		}
		set[c] = struct{}{}
	}

	if len(set) > 1 {
		delete(set, Unsure)
	}
	if len(set) == 0 {
		return []string{Unsure}
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
