// Package recovery builds a post-race physical recovery report for a driver
// from estimated physiological loads and significant in-race events.
package recovery

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/okian/pitwall/internal/domain/types"
)

// Severity levels used in findings.
const (
	SeverityHigh     = "High"
	SeverityModerate = "Moderate"
	SeverityNormal   = "Normal"
	SeverityLow      = "Low"
)

// Focus areas, in report order.
const (
	FocusDehydration       = "Dehydration"
	FocusNeckStrain        = "Neck Strain"
	FocusSpinalCompression = "Spinal Compression"
)

// Thresholds for raising a finding above its baseline severity.
const (
	fluidLossLimitL     = 2.5
	neckLoadLimitKg     = 22.0
	verticalGLimit      = 5.0
	spinalEventsLimit   = 10.0
	sustainedHighGEvent = "SustainedHighG"
	overallSummary      = "A demanding race with significant physical exertion. Primary recovery focus should be on dehydration and neck strain."
	unknownCockpitTemp  = "unknown"
)

// RaceData is the input to Generate.
type RaceData struct {
	DriverID          string             `json:"driver_id"`
	TrackName         string             `json:"track_name"`
	CockpitTempC      types.Number       `json:"cockpit_temp_c,omitzero"`
	Estimates         Estimates          `json:"hpc_race_summary_estimates"`
	SignificantEvents []SignificantEvent `json:"significant_events"`
}

// Estimates are modelled whole-race loads.
type Estimates struct {
	EstimatedTotalFluidLossL          types.Number `json:"estimated_total_fluid_loss_l,omitzero"`
	PeakNeckLoadEquivalentKg          types.Number `json:"peak_neck_load_equivalent_kg,omitzero"`
	CumulativeSpinalCompressionEvents types.Number `json:"cumulative_spinal_compression_events,omitzero"`
}

// SignificantEvent is one notable moment of the race.
type SignificantEvent struct {
	EventType  string       `json:"event_type"`
	DurationMs types.Number `json:"duration_ms,omitzero"`
	GForces    GForces      `json:"g_forces"`
}

type GForces struct {
	LateralPeakG  types.Number `json:"lateral_peak_g,omitzero"`
	VerticalPeakG types.Number `json:"vertical_peak_g,omitzero"`
}

// Report is the generated recovery plan.
type Report struct {
	DriverID             string      `json:"driver_id"`
	TrackName            string      `json:"track_name"`
	OverallSummary       string      `json:"overall_summary"`
	KeyMetrics           []KeyMetric `json:"key_metrics"`
	PriorityRecoveryPlan []Finding   `json:"priority_recovery_plan"`
}

type KeyMetric struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

type Finding struct {
	FocusArea      string `json:"focus_area"`
	Severity       string `json:"severity"`
	Evidence       string `json:"evidence"`
	Recommendation string `json:"recommendation"`
}

// Peaks summarises the event list.
type Peaks struct {
	LateralG             float64
	VerticalG            float64
	SustainedHighGMillis float64
}

// ScanEvents finds the largest absolute lateral and vertical loads and sums
// the duration of sustained high-G events.
func ScanEvents(events []SignificantEvent) Peaks {
	var p Peaks
	for _, ev := range events {
		if lat := ev.GForces.LateralPeakG.Or(0); math.Abs(lat) > math.Abs(p.LateralG) {
			p.LateralG = lat
		}
		if vert := ev.GForces.VerticalPeakG.Or(0); math.Abs(vert) > math.Abs(p.VerticalG) {
			p.VerticalG = vert
		}
		if ev.EventType == sustainedHighGEvent {
			p.SustainedHighGMillis += ev.DurationMs.Or(0)
		}
	}
	return p
}

// Generate builds the report. Findings always appear in the order
// dehydration, neck strain, spinal compression.
func Generate(data RaceData) Report {
	peaks := ScanEvents(data.SignificantEvents)
	fluidLoss := data.Estimates.EstimatedTotalFluidLossL.Or(0)
	neckLoad := data.Estimates.PeakNeckLoadEquivalentKg.Or(0)
	spinalEvents := data.Estimates.CumulativeSpinalCompressionEvents.Or(0)

	return Report{
		DriverID:       data.DriverID,
		TrackName:      data.TrackName,
		OverallSummary: overallSummary,
		KeyMetrics: []KeyMetric{
			{Metric: "Peak Lateral G-Force", Value: fmt.Sprintf("%.1f G", math.Abs(peaks.LateralG))},
			{Metric: "Peak Vertical G-Force", Value: fmt.Sprintf("%.1f G", math.Abs(peaks.VerticalG))},
			{Metric: "Estimated Fluid Loss", Value: num(fluidLoss) + " Liters"},
			{Metric: "Peak Neck Load", Value: "~" + num(neckLoad) + " kg"},
		},
		PriorityRecoveryPlan: []Finding{
			dehydration(fluidLoss, data.CockpitTempC),
			neckStrain(neckLoad, peaks.LateralG),
			spinalCompression(spinalEvents, peaks.VerticalG),
		},
	}
}

func dehydration(fluidLoss float64, cockpitTemp types.Number) Finding {
	f := Finding{FocusArea: FocusDehydration}
	if fluidLoss > fluidLossLimitL {
		temp := unknownCockpitTemp
		if cockpitTemp.Valid {
			temp = num(cockpitTemp.Float64)
		}
		f.Severity = SeverityHigh
		f.Evidence = fmt.Sprintf("HPC models estimate a significant fluid loss of %sL, based on a cockpit temperature of %s°C and sustained G-exertion.", num(fluidLoss), temp)
		f.Recommendation = "Immediate intake of 1.5L of electrolyte solution over the next 60 minutes. Avoid caffeine for the next 4 hours."
		return f
	}
	f.Severity = SeverityNormal
	f.Evidence = fmt.Sprintf("Estimated fluid loss of %sL is within expected limits.", num(fluidLoss))
	f.Recommendation = "Standard rehydration protocol."
	return f
}

func neckStrain(neckLoad, peakLateralG float64) Finding {
	f := Finding{FocusArea: FocusNeckStrain}
	if neckLoad > neckLoadLimitKg {
		f.Severity = SeverityHigh
		f.Evidence = fmt.Sprintf("The vehicle experienced sustained lateral forces up to %.1fG. Biomechanical models estimate this created a peak equivalent load of %skg on neck muscles.", math.Abs(peakLateralG), num(neckLoad))
		f.Recommendation = "Targeted cryotherapy (ice pack) on the affected side of the neck for 15 minutes, followed by gentle stretching exercises."
		return f
	}
	f.Severity = SeverityLow
	f.Evidence = "Neck load was within expected operational range."
	f.Recommendation = "Standard stretching."
	return f
}

func spinalCompression(spinalEvents, peakVerticalG float64) Finding {
	f := Finding{FocusArea: FocusSpinalCompression}
	if peakVerticalG > verticalGLimit && spinalEvents > spinalEventsLimit {
		f.Severity = SeverityModerate
		f.Evidence = fmt.Sprintf("The chassis accelerometer registered a significant vertical G-force spike of %.1fG from a kerb strike. The HPC counted %s cumulative micro-compression events.", peakVerticalG, num(spinalEvents))
		f.Recommendation = "10 minutes of spinal decompression stretches. Prioritize sleeping on a firm surface tonight. Report any lower back pain."
		return f
	}
	f.Severity = SeverityLow
	f.Evidence = "Vertical loads and vibrations were within normal limits."
	f.Recommendation = "No specific action required."
	return f
}

// Decode parses race data JSON.
func Decode(raw []byte) (RaceData, error) {
	var data RaceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return RaceData{}, fmt.Errorf("%w: %v", ErrInvalidRaceData, err)
	}
	return data, nil
}

// num formats v with the shortest representation, e.g. 2.8 or 24.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
