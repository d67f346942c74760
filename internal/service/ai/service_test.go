package ai

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/chat"
)

func TestBuildSystemPrompt(t *testing.T) {
	c := &character.Character{
		Name:   "孔子",
		Skills: []string{"儒家哲学", "教育"},
		Examples: []character.Example{
			{User: "q1", Assistant: "a1"},
			{User: "q2", Assistant: "a2"},
			{User: "q3", Assistant: "a3"},
			{User: "q4", Assistant: "a4"},
		},
	}

	chatPrompt := BuildSystemPrompt(c, ModeChat)
	require.True(t, strings.HasPrefix(chatPrompt, "你是孔子。"))
	require.Contains(t, chatPrompt, "【角色基本信息】")
	require.Contains(t, chatPrompt, "专业技能：儒家哲学, 教育")
	require.Contains(t, chatPrompt, "\n孔子：a3")
	require.NotContains(t, chatPrompt, "q4")
	require.NotContains(t, chatPrompt, "语音通话")

	require.Contains(t, BuildSystemPrompt(c, ModeVoiceCall), "语音通话")
}

func TestTemperatureClamps(t *testing.T) {
	require.InDelta(t, 0.8, Temperature(0.8, nil), 1e-9)
	require.InDelta(t, 0.9, Temperature(0.7, &character.Character{TemperatureModifier: 0.2}), 1e-9)
	require.InDelta(t, 1.0, Temperature(0.9, &character.Character{TemperatureModifier: 0.5}), 1e-9)
	require.InDelta(t, 0.0, Temperature(0.1, &character.Character{TemperatureModifier: -0.5}), 1e-9)
}

func TestBuildHistoryMessagesMapsSenders(t *testing.T) {
	history := buildHistoryMessages([]chat.Message{
		chat.NewCharacterMessage("greeting", nil),
		chat.NewUserMessage("hi", chat.KindText),
	})

	require.Len(t, history, 2)
	require.Equal(t, schema.Assistant, history[0].Role)
	require.Equal(t, schema.User, history[1].Role)
	require.Nil(t, buildHistoryMessages(nil))
}

func TestMessageFragmentsSkipsEmptyDeltas(t *testing.T) {
	reader := schema.StreamReaderFromArray([]*schema.Message{
		schema.AssistantMessage("你好", nil),
		schema.AssistantMessage("", nil),
		schema.AssistantMessage("。", nil),
	})

	text, err := Collect(&messageFragments{reader: reader})
	require.NoError(t, err)
	require.Equal(t, "你好。", text)
}

type failingFragments struct{ sent bool }

func (f *failingFragments) Recv() (string, error) {
	if !f.sent {
		f.sent = true
		return "partial", nil
	}
	return "", errors.New("upstream reset")
}

func (f *failingFragments) Close() {}

func TestCollectKeepsPartialText(t *testing.T) {
	text, err := Collect(&failingFragments{})
	require.Error(t, err)
	require.NotErrorIs(t, err, io.EOF)
	require.Equal(t, "partial", text)
}
