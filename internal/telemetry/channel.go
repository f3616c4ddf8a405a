package telemetry

import (
	"strings"

	"github.com/pkg/errors"
)

// Channel selects a numeric telemetry quantity.
type Channel uint8

const (
	ChannelNone Channel = iota
	ChannelIAT
	ChannelCoolant
	ChannelAFR
	ChannelAdvance
	ChannelTrigger
	ChannelTPS
	ChannelVoltage
	ChannelMAP
	ChannelRPM
	ChannelFuelPressure
	ChannelVSS

	channelCount
)

var channelNames = [channelCount]string{
	ChannelNone:         "NONE",
	ChannelIAT:          "IAT",
	ChannelCoolant:      "CLT",
	ChannelAFR:          "AFR",
	ChannelAdvance:      "ADV",
	ChannelTrigger:      "TRIG",
	ChannelTPS:          "TPS",
	ChannelVoltage:      "BAT",
	ChannelMAP:          "MAP",
	ChannelRPM:          "RPM",
	ChannelFuelPressure: "FP",
	ChannelVSS:          "VSS",
}

// Channels lists every selectable channel except ChannelNone.
func Channels() []Channel {
	out := make([]Channel, 0, channelCount-1)
	for c := ChannelNone + 1; c < channelCount; c++ {
		out = append(out, c)
	}
	return out
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool { return c < channelCount }

func (c Channel) String() string {
	if !c.Valid() {
		return "NONE"
	}
	return channelNames[c]
}

// ParseChannel resolves a short channel name such as "CLT" or "AFR".
func ParseChannel(s string) (Channel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range channelNames {
		if name == s {
			return Channel(i), nil
		}
	}
	return ChannelNone, errors.Errorf("unknown channel %q", s)
}

func (c Channel) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Channel) UnmarshalText(b []byte) error {
	v, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Indicator selects a boolean status bit.
type Indicator uint8

const (
	IndicatorNone Indicator = iota
	IndicatorSync
	IndicatorFan
	IndicatorASE
	IndicatorWUE
	IndicatorRev
	IndicatorLaunch
	IndicatorAirCon
	IndicatorDFCO

	indicatorCount
)

var indicatorNames = [indicatorCount]string{
	IndicatorNone:   "NONE",
	IndicatorSync:   "SYNC",
	IndicatorFan:    "FAN",
	IndicatorASE:    "ASE",
	IndicatorWUE:    "WUE",
	IndicatorRev:    "REV",
	IndicatorLaunch: "LCH",
	IndicatorAirCon: "AC",
	IndicatorDFCO:   "DFCO",
}

// Indicators lists every status bit except IndicatorNone.
func Indicators() []Indicator {
	out := make([]Indicator, 0, indicatorCount-1)
	for i := IndicatorNone + 1; i < indicatorCount; i++ {
		out = append(out, i)
	}
	return out
}

func (i Indicator) Valid() bool { return i < indicatorCount }

func (i Indicator) String() string {
	if !i.Valid() {
		return "NONE"
	}
	return indicatorNames[i]
}

// ParseIndicator resolves a short indicator name such as "SYNC" or "LCH".
func ParseIndicator(s string) (Indicator, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range indicatorNames {
		if name == s {
			return Indicator(i), nil
		}
	}
	return IndicatorNone, errors.Errorf("unknown indicator %q", s)
}

func (i Indicator) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Indicator) UnmarshalText(b []byte) error {
	v, err := ParseIndicator(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}
