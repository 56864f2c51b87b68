// Package history merges the assessment and plan version timelines into one
// change feed bucketed by local calendar date.
package history

import (
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/models"
)

const dateLayout = "2006-01-02"

const (
	DescriptionBoth       = "Assessment and plan updated"
	DescriptionAssessment = "Assessment updated"
	DescriptionPlan       = "Plan updated"
)

type LastVersions struct {
	Assessment *models.VersionDetails `json:"assessment,omitempty"`
	Plan       *models.VersionDetails `json:"plan,omitempty"`
}

type VersionsOnDate struct {
	Date          string       `json:"date"`
	Description   string       `json:"description,omitempty"`
	Regular       LastVersions `json:"regular"`
	Countersigned LastVersions `json:"countersigned"`
}

type Reconciler struct {
	Location *time.Location
}

func NewReconciler(loc *time.Location) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{Location: loc}
}

// dayVersions is one type's activity on one date.
type dayVersions struct {
	latestCountersigned *models.VersionDetails
	regular             []models.VersionDetails
}

func (d dayVersions) active() bool {
	return d.latestCountersigned != nil || len(d.regular) > 0
}

// Reconcile is deterministic and leaves both inputs untouched.
func (r *Reconciler) Reconcile(assessment []models.VersionDetails, plan []models.VersionDetails) []VersionsOnDate {
	assessmentDays := r.byDate(assessment)
	planDays := r.byDate(plan)

	dates := make([]string, 0, len(assessmentDays)+len(planDays))
	seen := map[string]bool{}
	for _, days := range []map[string]dayVersions{assessmentDays, planDays} {
		for date := range days {
			if !seen[date] {
				seen[date] = true
				dates = append(dates, date)
			}
		}
	}
	sort.Strings(dates)

	var lastAssessment, lastPlan *models.VersionDetails
	out := make([]VersionsOnDate, 0, len(dates))
	for _, date := range dates {
		a, p := assessmentDays[date], planDays[date]

		regularAssessment := regularEntry(a, p, lastAssessment)
		regularPlan := regularEntry(p, a, lastPlan)

		assessmentChanged := a.latestCountersigned != nil || !sameVersion(regularAssessment, lastAssessment)
		planChanged := p.latestCountersigned != nil || !sameVersion(regularPlan, lastPlan)

		out = append(out, VersionsOnDate{
			Date:        date,
			Description: describe(assessmentChanged, planChanged),
			Regular: LastVersions{
				Assessment: copyOf(regularAssessment),
				Plan:       copyOf(regularPlan),
			},
			Countersigned: LastVersions{
				Assessment: copyOf(a.latestCountersigned),
				Plan:       copyOf(p.latestCountersigned),
			},
		})

		lastAssessment = regularAssessment
		lastPlan = regularPlan
	}
	return out
}

// byDate sorts a copy of versions and splits it per local date.
func (r *Reconciler) byDate(versions []models.VersionDetails) map[string]dayVersions {
	sorted := make([]models.VersionDetails, len(versions))
	copy(sorted, versions)
	sort.SliceStable(sorted, func(i, j int) bool { return isAfter(sorted[j], sorted[i]) })

	days := map[string]dayVersions{}
	for i := range sorted {
		v := &sorted[i]
		date := v.UpdatedAt.In(r.Location).Format(dateLayout)
		day := days[date]
		if v.IsCountersigned() {
			day.latestCountersigned = v
		} else {
			day.regular = append(day.regular, *v)
		}
		days[date] = day
	}
	return days
}

// regularEntry picks the version this type shows in the regular bucket.
// In order: the newest version after the day's countersigned one; the
// countersigned one itself when the other type's activity warrants it; the
// newest plain version; the value carried from an earlier date.
func regularEntry(own dayVersions, other dayVersions, carried *models.VersionDetails) *models.VersionDetails {
	cs := own.latestCountersigned
	if cs != nil {
		for i := len(own.regular) - 1; i >= 0; i-- {
			if isAfter(own.regular[i], *cs) {
				return &own.regular[i]
			}
		}
		if promoteCountersigned(cs, other) {
			return cs
		}
	}
	if n := len(own.regular); n > 0 {
		return &own.regular[n-1]
	}
	return carried
}

// promoteCountersigned keeps a countersigned version visible in the regular
// bucket while the other type moved on after it the same day.
func promoteCountersigned(cs *models.VersionDetails, other dayVersions) bool {
	if other.latestCountersigned != nil {
		return isAfter(*other.latestCountersigned, *cs)
	}
	return other.active()
}

// isAfter orders by update time, then version number.
func isAfter(a models.VersionDetails, b models.VersionDetails) bool {
	if a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.Version > b.Version
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func sameVersion(a *models.VersionDetails, b *models.VersionDetails) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Uuid == b.Uuid && a.Version == b.Version && a.UpdatedAt.Equal(b.UpdatedAt)
}

func describe(assessmentChanged bool, planChanged bool) string {
	switch {
	case assessmentChanged && planChanged:
		return DescriptionBoth
	case assessmentChanged:
		return DescriptionAssessment
	case planChanged:
		return DescriptionPlan
	}
	return ""
}

func copyOf(v *models.VersionDetails) *models.VersionDetails {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
