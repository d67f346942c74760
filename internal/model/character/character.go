package character

// VoiceProfile 描述角色在浏览器端语音合成时的参数。
type VoiceProfile struct {
	Gender    string  `json:"gender,omitempty" yaml:"gender"`
	Age       string  `json:"age,omitempty" yaml:"age"`
	Accent    string  `json:"accent,omitempty" yaml:"accent"`
	VoiceName string  `json:"voiceName,omitempty" yaml:"voice_name"`
	Rate      float64 `json:"rate,omitempty" yaml:"rate"`
	Pitch     float64 `json:"pitch,omitempty" yaml:"pitch"`
	Volume    float64 `json:"volume,omitempty" yaml:"volume"`
}

// Example is a sample exchange injected into the system prompt.
type Example struct {
	User      string `json:"user" yaml:"user"`
	Assistant string `json:"assistant" yaml:"assistant"`
}

// Character captures the role-playing attributes of a conversation partner.
type Character struct {
	ID                  string       `json:"id" yaml:"id"`
	Name                string       `json:"name" yaml:"name"`
	Description         string       `json:"description" yaml:"description"`
	Personality         string       `json:"personality" yaml:"personality"`
	Background          string       `json:"background" yaml:"background"`
	Avatar              string       `json:"avatar,omitempty" yaml:"avatar"`
	Category            string       `json:"category" yaml:"category"`
	Greeting            string       `json:"greeting" yaml:"greeting"`
	Skills              []string     `json:"skills,omitempty" yaml:"skills"`
	Voice               VoiceProfile `json:"voice" yaml:"voice"`
	Examples            []Example    `json:"examples,omitempty" yaml:"examples"`
	TemperatureModifier float64      `json:"-" yaml:"temperature_modifier"`
}
