package voice

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zhouzirui/z-tavern/callhub/internal/analysis/emotion"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
)

func TestForCharacterDefaults(t *testing.T) {
	s := ForCharacter(nil)
	require.Equal(t, "browser", s.Type)
	require.Equal(t, "zh-CN", s.Lang)
	require.InDelta(t, 0.9, s.Rate, 1e-9)
	require.Nil(t, s.VoiceName)
	require.Equal(t, "female", s.Gender)
}

func TestForCharacterProfile(t *testing.T) {
	s := ForCharacter(&character.Character{Voice: character.VoiceProfile{
		Gender: "male", Age: "young", Accent: "british_posh", VoiceName: "Daniel", Rate: 1.1,
	}})

	require.Equal(t, "en-GB", s.Lang)
	require.InDelta(t, 1.1, s.Rate, 1e-9)
	require.InDelta(t, 1.0, s.Pitch, 1e-9)
	require.Equal(t, "Daniel", *s.VoiceName)
	require.Equal(t, "male", s.Gender)
	require.Equal(t, "young", s.Age)
}

func TestLanguageFor(t *testing.T) {
	require.Equal(t, "ja-JP", LanguageFor("japanese"))
	require.Equal(t, "en-US", LanguageFor("american"))
	require.Equal(t, "zh-CN", LanguageFor("klingon"))
}

func TestAdjust(t *testing.T) {
	base := ForCharacter(nil)

	require.Equal(t, base, Adjust(base, emotion.Decision{Label: emotion.Neutral}))

	excited := Adjust(base, emotion.Decision{Label: emotion.Excited, Intensity: 1})
	require.Greater(t, excited.Rate, base.Rate)
	require.Greater(t, excited.Pitch, base.Pitch)
	require.LessOrEqual(t, excited.Volume, 1.0)
	require.Equal(t, "excited", excited.Emotion)

	comfort := Adjust(base, emotion.Decision{Label: emotion.Comfort, Intensity: 0.5})
	require.Less(t, comfort.Rate, base.Rate)
}

func TestForReplyUsesUserMood(t *testing.T) {
	s := ForReply(nil, "我好难过", "嗯。")
	require.Equal(t, "comfort", s.Emotion)
}
