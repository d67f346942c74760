// Package emotion scores the mood of an exchange with a keyword heuristic so the spoken
// reply can be delivered with a matching tone.
package emotion

import (
	"strings"
)

// Label names a delivery tone.
type Label string

const (
	Neutral Label = "neutral"
	Happy   Label = "happy"
	Sad     Label = "sad"
	Angry   Label = "angry"
	Excited Label = "excited"
	Comfort Label = "comfort"
	Serious Label = "serious"
)

// Decision is the tone picked for a reply and how strongly to apply it, in [0, 1].
type Decision struct {
	Label     Label   `json:"label"`
	Intensity float64 `json:"intensity"`
	Score     int     `json:"score"`
}

const (
	keywordWeight = 3
	// scoreCeiling is the score at which intensity saturates.
	scoreCeiling = 12
)

var lexicon = map[Label][]string{
	Happy: {
		"开心", "高兴", "快乐", "喜悦", "太好了", "太棒了", "真棒", "哈哈", "喜欢", "满意", "谢谢",
		"great", "thanks", "thank you", "love", "glad", "awesome",
	},
	Sad: {
		"难过", "伤心", "失落", "沮丧", "悲伤", "哭", "痛苦", "寂寞", "孤单", "失望", "心碎", "委屈",
		"sad", "upset", "cry", "lonely", "hurt", "depressed",
	},
	Angry: {
		"生气", "愤怒", "火大", "气死", "烦死", "受够了", "抓狂", "气炸",
		"angry", "furious", "annoyed", "mad",
	},
	Excited: {
		"激动", "期待", "太酷了", "惊喜", "哇", "热血", "震撼", "给力",
		"wow", "can't wait", "amazing", "incredible",
	},
	Comfort: {
		"别担心", "没事", "我懂", "陪着", "抱抱", "不要怕", "安心", "放心", "慢慢来", "陪伴",
		"don't worry", "i'm here", "it's okay", "take it easy",
	},
	Serious: {
		"认真", "严肃", "重要", "必须", "务必", "责任", "谨慎", "记住",
		"important", "serious", "must", "careful",
	},
}

// Analyze picks a tone for reply, falling back to a response suited to the user's mood when the
// reply itself is flat.
func Analyze(userUtterance, reply string) Decision {
	best := score(reply)
	if best.Score == 0 {
		if user := score(userUtterance); user.Score > 0 {
			best = Decision{Label: respondTo(user.Label), Score: user.Score}
		}
	}
	if best.Score == 0 {
		return Decision{Label: Neutral}
	}

	best.Intensity = float64(best.Score) / scoreCeiling
	if best.Intensity > 1 {
		best.Intensity = 1
	}
	return best
}

func score(text string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Decision{Label: Neutral}
	}

	scores := make(map[Label]int, len(lexicon))
	for label, words := range lexicon {
		for _, word := range words {
			if strings.Contains(normalized, word) {
				scores[label] += keywordWeight
			}
		}
	}

	switch exclamations := strings.Count(text, "!") + strings.Count(text, "！"); {
	case exclamations == 1:
		scores[Happy] += 2
	case exclamations > 1:
		scores[Excited] += exclamations * 2
	}

	best := Decision{Label: Neutral}
	// Iterate in a fixed order so ties resolve the same way every time.
	for _, label := range []Label{Excited, Happy, Comfort, Sad, Angry, Serious} {
		if s := scores[label]; s > best.Score {
			best = Decision{Label: label, Score: s}
		}
	}
	return best
}

// respondTo maps the user's mood to the tone a character should answer with.
func respondTo(user Label) Label {
	switch user {
	case Sad:
		return Comfort
	case Angry:
		return Serious
	default:
		return user
	}
}
