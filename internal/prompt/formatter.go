// Package prompt renders a patient data bundle into the clinically
// structured text document sent to the language model. Rendering is
// deterministic: the same bundle, reason context, and clock day always
// produce byte-identical output.
package prompt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/praxisgate/go-handover/internal/domain/patient"
)

// Limits applied when rendering a bundle.
const (
	maxVisits        = 10
	maxPrescriptions = 25
	maxLabs          = 25
	maxRadiology     = 5
)

// noReasonText is emitted when no visit reason can be resolved.
const noReasonText = "no specific reason - general summary"

// Formatter renders bundles into prompt text.
type Formatter struct {
	tables RelevanceTables
	now    func() time.Time
}

// NewFormatter creates a formatter with the given relevance tables.
func NewFormatter(tables RelevanceTables) *Formatter {
	return &Formatter{tables: tables, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (f *Formatter) WithClock(now func() time.Time) *Formatter {
	f.now = now
	return f
}

// resolvedReason is the visit-reason context after precedence rules.
type resolvedReason struct {
	Primary   string
	Detailed  string
	VisitType string
	Priority  string
	Referring string
}

// resolveReason applies precedence: explicit override, then the most
// recent visit's reason-for-visit, then its chief complaint.
func resolveReason(bundle *patient.Bundle, override *patient.VisitReason) *resolvedReason {
	if override != nil && override.PrimaryReason != "" {
		detailed := override.DetailedReason
		if detailed == "" {
			detailed = override.PrimaryReason
		}
		return &resolvedReason{
			Primary:   override.PrimaryReason,
			Detailed:  detailed,
			VisitType: override.VisitType,
			Priority:  override.PriorityLevel,
			Referring: override.ReferringDoctor,
		}
	}
	if len(bundle.Visits) > 0 {
		latest := bundle.Visits[0]
		if latest.ReasonForVisit != "" {
			return &resolvedReason{Primary: latest.ReasonForVisit, Detailed: latest.ReasonForVisit, VisitType: "Follow-up", Priority: "Normal"}
		}
		if latest.ChiefComplaint != "" {
			return &resolvedReason{Primary: latest.ChiefComplaint, Detailed: latest.ChiefComplaint, VisitType: "Follow-up", Priority: "Normal"}
		}
	}
	return nil
}

// Age computes a calendar-aware age in full years. ok is false when the
// date of birth is absent or unparseable; that is a reporting condition,
// never an error.
func Age(dob string, now time.Time) (int, bool) {
	parsed, ok := parseFlexibleDate(dob)
	if !ok {
		return 0, false
	}
	years := now.Year() - parsed.Year()
	if now.Month() < parsed.Month() || (now.Month() == parsed.Month() && now.Day() < parsed.Day()) {
		years--
	}
	if years < 0 {
		return 0, false
	}
	return years, true
}

// parseFlexibleDate accepts the date shapes seen in exchange files and
// the relational store.
func parseFlexibleDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == "--" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", "02.01.2006", "01/02/2006", "02/01/2006", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	// Legacy DDMMYYYY without separators.
	if len(value) == 8 {
		if _, err := strconv.Atoi(value); err == nil {
			if t, err := time.Parse("02012006", value); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Format renders the bundle. legacyText, when non-empty, is the
// formatted BDT record block and is prepended under its own heading.
// The override reason, when present, wins over the latest visit's own
// reason fields.
func (f *Formatter) Format(bundle *patient.Bundle, legacyText string, override *patient.VisitReason) string {
	var b strings.Builder

	if legacyText != "" {
		b.WriteString("=== BDT PATIENT RECORD ===\n\n")
		b.WriteString(strings.TrimSpace(legacyText))
		b.WriteString("\n\n=== ADDITIONAL DATABASE INFORMATION ===\n\n")
	}

	reason := resolveReason(bundle, override)
	reasonText := ""

	b.WriteString("PATIENT DATA DUMP:\n\n")
	b.WriteString("0. CURRENT VISIT REASON - PRIMARY FOCUS FOR ANALYSIS\n")
	if reason != nil {
		reasonText = strings.ToLower(reason.Primary + " " + reason.Detailed)
		fmt.Fprintf(&b, "- Primary Reason: %s\n", reason.Primary)
		fmt.Fprintf(&b, "- Visit Type: %s\n", orDefault(reason.VisitType, "Not specified"))
		fmt.Fprintf(&b, "- Priority: %s\n", orDefault(reason.Priority, "Normal"))
		fmt.Fprintf(&b, "- Detailed Reason: %s\n", reason.Detailed)
		fmt.Fprintf(&b, "- Referring Doctor: %s\n", orDefault(reason.Referring, "None"))
		fmt.Fprintf(&b, "\nINSTRUCTION: Focus your analysis specifically on data related to %q. "+
			"Prioritize relevant historical data, medications, lab trends, and vitals related to this specific concern.\n\n",
			reason.Primary)
	} else {
		fmt.Fprintf(&b, "- %s\n\n", noReasonText)
	}

	f.writeDemographics(&b, bundle.Patient)
	f.writeVisits(&b, bundle.Visits, reasonText)
	f.writePrescriptions(&b, bundle.Prescriptions, reasonText)
	f.writeLabs(&b, bundle.LabOrders, reasonText)
	f.writeRadiology(&b, bundle.RadiologyOrders)

	return b.String()
}

func (f *Formatter) writeDemographics(b *strings.Builder, p *patient.Patient) {
	ageText := "Unknown"
	if age, ok := Age(p.DateOfBirth, f.now()); ok {
		ageText = strconv.Itoa(age)
	}
	b.WriteString("1. DEMOGRAPHICS\n")
	fmt.Fprintf(b, "- Name: %s %s\n", p.FirstName, p.LastName)
	fmt.Fprintf(b, "- Age: %s\n", ageText)
	fmt.Fprintf(b, "- Allergies: %s\n", joinOrNone(p.Allergies))
	fmt.Fprintf(b, "- Chronic Conditions: %s\n\n", joinOrNone(p.ChronicConditions))
}

func (f *Formatter) writeVisits(b *strings.Builder, visits []patient.Visit, reasonText string) {
	fmt.Fprintf(b, "2. VISIT HISTORY (%d records) - FOCUS ON VISITS RELATED TO CURRENT REASON\n", len(visits))
	for i, v := range visits {
		if i >= maxVisits {
			break
		}
		diagnosis := orDefault(v.Diagnosis, "N/A")
		plan := orDefault(v.TreatmentPlan, "N/A")

		marker := ""
		if reasonText != "" {
			haystack := strings.ToLower(diagnosis + " " + plan)
			if strings.Contains(haystack, strings.TrimSpace(reasonText)) {
				marker = visitMarker
			} else {
				for _, rule := range f.tables.Visits {
					if containsAny(reasonText, rule.Triggers) && containsAny(haystack, rule.Keywords) {
						marker = visitMarker
						break
					}
				}
			}
		}

		fmt.Fprintf(b, "   [%s] Dx: %s | Plan: %s%s\n", v.VisitDate.Format("2006-01-02"), diagnosis, plan, marker)
		if len(v.Vitals) > 0 {
			fmt.Fprintf(b, "   > Vitals: %s\n", string(v.Vitals))
		}
	}
}

func (f *Formatter) writePrescriptions(b *strings.Builder, prescriptions []patient.Prescription, reasonText string) {
	fmt.Fprintf(b, "\n3. MEDICATIONS (%d records) - HIGHLIGHT RELEVANT TO VISIT REASON\n", len(prescriptions))
	seen := make(map[string]bool)
	count := 0
	for _, rx := range prescriptions {
		if count >= maxPrescriptions {
			break
		}
		name := strings.ToLower(strings.TrimSpace(rx.MedicationName))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		count++

		marker := ""
		for _, rule := range f.tables.Medications {
			if containsAny(reasonText, rule.Triggers) && containsAny(name, rule.Keywords) {
				marker = medicationMarker
				break
			}
		}

		line := strings.TrimSpace(strings.Join([]string{rx.MedicationName, rx.Dosage, rx.Frequency}, " "))
		fmt.Fprintf(b, "   - %s%s\n", line, marker)
	}
}

func (f *Formatter) writeLabs(b *strings.Builder, labs []patient.LabOrder, reasonText string) {
	fmt.Fprintf(b, "\n4. LAB RESULTS (%d records) - PRIORITIZE RELEVANT TO VISIT REASON\n", len(labs))
	for i, lab := range labs {
		if i >= maxLabs {
			break
		}
		marker := ""
		testName := strings.ToLower(lab.TestName)
		for _, rule := range f.tables.Labs {
			if containsAny(reasonText, rule.Triggers) && containsAny(testName, rule.Tests) {
				marker = rule.Marker
				break
			}
		}
		fmt.Fprintf(b, "   [%s] %s: %s%s\n",
			lab.OrderedAt.Format("2006-01-02"), lab.TestName, orDefault(lab.Result, "Pending"), marker)
	}
}

func (f *Formatter) writeRadiology(b *strings.Builder, orders []patient.RadiologyOrder) {
	if len(orders) == 0 {
		return
	}
	fmt.Fprintf(b, "\n5. RADIOLOGY (%d records)\n", len(orders))
	for i, rad := range orders {
		if i >= maxRadiology {
			break
		}
		fmt.Fprintf(b, "   [%s] %s: %s\n",
			rad.OrderedAt.Format("2006-01-02"), rad.TestName, orDefault(rad.Result, "Pending"))
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "None"
	}
	return strings.Join(values, ", ")
}
