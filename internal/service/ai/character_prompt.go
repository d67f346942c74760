package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
)

const maxPromptExamples = 3

// BuildSystemPrompt renders the role-play instructions for c. Voice calls get an extra
// brevity rule so replies stay short enough to speak.
func BuildSystemPrompt(c *character.Character, mode Mode) string {
	var b strings.Builder

	fmt.Fprintf(&b, "你是%s。请始终保持角色扮演，不要打破人设。\n\n", c.Name)

	b.WriteString("【角色基本信息】\n")
	fmt.Fprintf(&b, "名字：%s\n", c.Name)
	fmt.Fprintf(&b, "描述：%s\n", c.Description)
	fmt.Fprintf(&b, "性格：%s\n", c.Personality)
	fmt.Fprintf(&b, "背景：%s\n", c.Background)
	fmt.Fprintf(&b, "专业技能：%s\n\n", strings.Join(c.Skills, ", "))

	b.WriteString("【扮演要求】\n")
	fmt.Fprintf(&b, "1. 完全以%s的身份、性格和说话方式来回应\n", c.Name)
	b.WriteString("2. 使用符合角色背景的语言风格和词汇\n")
	b.WriteString("3. 保持角色的知识范围和时代背景一致性\n")
	b.WriteString("4. 展现角色的独特个性和思维方式\n")
	b.WriteString("5. 适当引用角色的经历和故事")

	if mode == ModeVoiceCall {
		b.WriteString("\n6. 现在是语音通话，请用口语化的短句回答，每次不超过三句话，不要使用列表或表情符号")
	}

	if len(c.Examples) > 0 {
		b.WriteString("\n\n【对话示例】")
		examples := c.Examples
		if len(examples) > maxPromptExamples {
			examples = examples[:maxPromptExamples]
		}
		for _, ex := range examples {
			fmt.Fprintf(&b, "\n用户：%s", ex.User)
			fmt.Fprintf(&b, "\n%s：%s", c.Name, ex.Assistant)
		}
	}

	return b.String()
}
