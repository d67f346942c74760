// Package voice derives browser speech-synthesis settings for a character's reply.
package voice

import (
	"math"

	"github.com/zhouzirui/z-tavern/callhub/internal/analysis/emotion"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
)

// Settings is sent to the client so the browser can speak the reply.
type Settings struct {
	Type      string  `json:"type"`
	Lang      string  `json:"lang"`
	Rate      float64 `json:"rate"`
	Pitch     float64 `json:"pitch"`
	Volume    float64 `json:"volume"`
	VoiceName *string `json:"voice_name"`
	Gender    string  `json:"gender"`
	Age       string  `json:"age"`
	Emotion   string  `json:"emotion,omitempty"`
}

const (
	defaultLang   = "zh-CN"
	defaultRate   = 0.9
	defaultPitch  = 1.0
	defaultVolume = 1.0
)

var accentLanguages = map[string]string{
	"chinese":         "zh-CN",
	"english":         "en-US",
	"british":         "en-GB",
	"british_posh":    "en-GB",
	"british_refined": "en-GB",
	"american":        "en-US",
	"japanese":        "ja-JP",
	"french":          "fr-FR",
	"german":          "de-DE",
}

// LanguageFor maps an accent name to a BCP 47 tag, defaulting to zh-CN.
func LanguageFor(accent string) string {
	if lang, ok := accentLanguages[accent]; ok {
		return lang
	}
	return defaultLang
}

// ForCharacter returns the speech settings configured for c. A nil character gets defaults.
func ForCharacter(c *character.Character) Settings {
	s := Settings{
		Type:   "browser",
		Lang:   defaultLang,
		Rate:   defaultRate,
		Pitch:  defaultPitch,
		Volume: defaultVolume,
		Gender: "female",
		Age:    "adult",
	}
	if c == nil {
		return s
	}

	p := c.Voice
	s.Lang = LanguageFor(p.Accent)
	if p.Rate > 0 {
		s.Rate = p.Rate
	}
	if p.Pitch > 0 {
		s.Pitch = p.Pitch
	}
	if p.Volume > 0 {
		s.Volume = p.Volume
	}
	if p.VoiceName != "" {
		name := p.VoiceName
		s.VoiceName = &name
	}
	if p.Gender != "" {
		s.Gender = p.Gender
	}
	if p.Age != "" {
		s.Age = p.Age
	}
	return s
}

type shift struct{ rate, pitch, volume float64 }

// toneShifts are the full-intensity multiplier offsets per tone.
var toneShifts = map[emotion.Label]shift{
	emotion.Happy:   {rate: 0.05, pitch: 0.08},
	emotion.Excited: {rate: 0.12, pitch: 0.12, volume: 0.05},
	emotion.Sad:     {rate: -0.1, pitch: -0.08},
	emotion.Comfort: {rate: -0.1, pitch: -0.04, volume: -0.05},
	emotion.Angry:   {rate: 0.08, volume: 0.05},
	emotion.Serious: {rate: -0.05, pitch: -0.05},
}

// Adjust shades s toward the tone in d, scaled by its intensity.
func Adjust(s Settings, d emotion.Decision) Settings {
	delta, ok := toneShifts[d.Label]
	if !ok || d.Intensity <= 0 {
		return s
	}

	k := math.Min(d.Intensity, 1)
	s.Rate = clamp(s.Rate*(1+delta.rate*k), 0.5, 2)
	s.Pitch = clamp(s.Pitch*(1+delta.pitch*k), 0.1, 2)
	s.Volume = clamp(s.Volume*(1+delta.volume*k), 0, 1)
	s.Emotion = string(d.Label)
	return s
}

// ForReply combines the character's settings with the tone of the exchange.
func ForReply(c *character.Character, userUtterance, reply string) Settings {
	return Adjust(ForCharacter(c), emotion.Analyze(userUtterance, reply))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
