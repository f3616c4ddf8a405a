package render

import (
	"github.com/shaunagostinho/gaugedash/internal/palette"
	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

const basicTint = palette.Orange

// RPMColor is the tachometer tint in full-color mode.
func RPMColor(rpm float64) palette.Color {
	switch {
	case rpm > 6000:
		return palette.Red
	case rpm > 4000:
		return palette.Yellow
	}
	return palette.Green
}

// ThresholdColor is the full-color tint of a panel value. Channels without
// thresholds keep the basic tint.
func ThresholdColor(ch telemetry.Channel, v float64) palette.Color {
	switch ch {
	case telemetry.ChannelRPM:
		return RPMColor(v)
	case telemetry.ChannelCoolant:
		return band(v > 110, v > 80)
	case telemetry.ChannelIAT:
		return band(v > 60, v > 40)
	case telemetry.ChannelTPS, telemetry.ChannelMAP:
		return band(v > 100, v > 80)
	case telemetry.ChannelAdvance:
		return band(v < 0, false)
	case telemetry.ChannelFuelPressure:
		return band(v < 28, v < 30)
	case telemetry.ChannelAFR:
		return band(v > 15.2 && v < 20, v < 13)
	case telemetry.ChannelVoltage:
		return band(v < 12, v < 12.5)
	}
	return basicTint
}

func band(alert, caution bool) palette.Color {
	switch {
	case alert:
		return palette.Red
	case caution:
		return palette.Yellow
	}
	return palette.Green
}

// indicatorAccent is the active color of an indicator. Rev limiter and
// launch control stand out in red.
func indicatorAccent(ind telemetry.Indicator) palette.Color {
	if ind == telemetry.IndicatorRev || ind == telemetry.IndicatorLaunch {
		return palette.Red
	}
	return palette.Orange
}
