package layout

import (
	"sort"

	"github.com/shaunagostinho/gaugedash/internal/palette"
	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

const (
	PresetDefault  = "default"
	PresetCluster9 = "cluster9"

	// PresetLegacy names the fixed serial-era layout, which is cluster9.
	PresetLegacy = "legacy"
)

// Presets returns the names of the built-in layouts.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Preset returns a copy of a built-in layout.
func Preset(name string) (Configuration, bool) {
	if name == PresetLegacy {
		name = PresetCluster9
	}
	fn, ok := presets[name]
	if !ok {
		return Configuration{}, false
	}
	return fn(), true
}

var presets = map[string]func() Configuration{
	PresetDefault:  defaultPreset,
	PresetCluster9: cluster9Preset,
}

// defaultPreset is the eight-panel layout with two spare indicators that
// ship disabled.
func defaultPreset() Configuration {
	c := Configuration{
		Panels: [MaxPanels]Panel{
			{Channel: telemetry.ChannelAFR, Kind: KindFloat, Position: 0, Decimals: 1, Enabled: true, Label: "AFR", Color: palette.Green},
			{Channel: telemetry.ChannelTPS, Kind: KindInt, Position: 1, Enabled: true, Label: "TPS", Unit: "%", Color: palette.White},
			{Channel: telemetry.ChannelIAT, Kind: KindUnsigned, Position: 2, Enabled: true, Label: "IAT", Unit: "°C", Color: palette.White},
			{Channel: telemetry.ChannelMAP, Kind: KindInt, Position: 3, Enabled: true, Label: "MAP", Unit: "kPa", Color: palette.White},
			{Channel: telemetry.ChannelAdvance, Kind: KindInt, Position: 4, Enabled: true, Label: "ADV", Unit: "°", Color: palette.Red},
			{Channel: telemetry.ChannelFuelPressure, Kind: KindInt, Position: 5, Enabled: true, Label: "FP", Unit: "psi", Color: palette.White},
			{Channel: telemetry.ChannelCoolant, Kind: KindUnsigned, Position: 6, Enabled: true, Label: "Coolant", Unit: "°C", Color: palette.White},
			{Channel: telemetry.ChannelVoltage, Kind: KindFloat, Position: 7, Decimals: 1, Enabled: true, Label: "Voltage", Unit: "V", Color: palette.Green},
		},
		Indicators: [MaxIndicators]IndicatorSlot{
			{Indicator: telemetry.IndicatorSync, Position: 0, Enabled: true, Label: "SYNC"},
			{Indicator: telemetry.IndicatorFan, Position: 1, Enabled: true, Label: "FAN"},
			{Indicator: telemetry.IndicatorRev, Position: 2, Enabled: true, Label: "REV"},
			{Indicator: telemetry.IndicatorLaunch, Position: 3, Enabled: true, Label: "LCH"},
			{Indicator: telemetry.IndicatorAirCon, Position: 4, Enabled: true, Label: "AC"},
			{Indicator: telemetry.IndicatorDFCO, Position: 5, Enabled: true, Label: "DFCO"},
			{Indicator: telemetry.IndicatorASE, Position: 6, Enabled: false, Label: "ASE"},
			{Indicator: telemetry.IndicatorWUE, Position: 7, Enabled: false, Label: "WUE"},
		},
		ActivePanels:     8,
		ActiveIndicators: ExpectedIndicators,
		RPMMode:          0,
		ShowIndicators:   true,
		CanSpeed:         500000,
	}
	return c
}

// cluster9Preset fills all nine positions: CLT IAT AFR BAT on top, RPM FP
// TPS MAP ADV below.
func cluster9Preset() Configuration {
	c := Configuration{
		ShowIndicators: true,
		CanSpeed:       500000,
	}
	c.addPanel(0, "CLT", telemetry.ChannelCoolant, true, 0)
	c.addPanel(1, "IAT", telemetry.ChannelIAT, true, 0)
	c.addPanel(2, "AFR", telemetry.ChannelAFR, true, 1)
	c.addPanel(3, "BAT", telemetry.ChannelVoltage, true, 1)
	c.addPanel(4, "RPM", telemetry.ChannelRPM, true, 0)
	c.addPanel(5, "FP", telemetry.ChannelFuelPressure, true, 0)
	c.addPanel(6, "TPS", telemetry.ChannelTPS, true, 0)
	c.addPanel(7, "MAP", telemetry.ChannelMAP, true, 0)
	c.addPanel(8, "ADV", telemetry.ChannelAdvance, true, 0)

	c.addIndicator(0, "SYNC", telemetry.IndicatorSync, true)
	c.addIndicator(1, "FAN", telemetry.IndicatorFan, true)
	c.addIndicator(2, "REV", telemetry.IndicatorRev, true)
	c.addIndicator(3, "LCH", telemetry.IndicatorLaunch, true)
	c.addIndicator(4, "AC", telemetry.IndicatorAirCon, true)
	c.addIndicator(5, "DFCO", telemetry.IndicatorDFCO, true)
	return c
}
