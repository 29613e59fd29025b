package agents

import (
	"math/rand/v2"
	"strings"
)

// Intent is the coarse kind of message a scripted participant answers.
type Intent string

const (
	IntentHelp     Intent = "help"
	IntentThanks   Intent = "thanks"
	IntentQuestion Intent = "question"
	IntentDefault  Intent = "default"
)

const genericReply = "Hi! I'm here to chat with you."

var intentKeywords = []struct {
	intent Intent
	words  []string
}{
	{IntentHelp, []string{"help", "assist", "support"}},
	{IntentThanks, []string{"thank", "appreciate"}},
	{IntentQuestion, []string{"?", "what", "how", "why", "when", "where"}},
}

// DetectIntent classifies text by keyword. Earlier intents win.
func DetectIntent(text string) Intent {
	lower := strings.ToLower(text)
	for _, k := range intentKeywords {
		for _, w := range k.words {
			if strings.Contains(lower, w) {
				return k.intent
			}
		}
	}
	return IntentDefault
}

type personality struct {
	lines    map[Intent][]string
	fallback []string
}

var personalities = map[string]personality{
	"alex": {
		lines: map[Intent][]string{
			IntentHelp: {
				"Happy to help. Let's go through it step by step.",
				"Of course. Here is how I would approach it.",
			},
			IntentThanks: {
				"You're welcome! Ask any time.",
				"Glad that helped.",
			},
			IntentQuestion: {
				"Good question. Let me think that through.",
				"Here's how I see it.",
			},
		},
		fallback: []string{
			"Understood. Anything specific I can help with?",
			"Noted. What would you like to do next?",
		},
	},
	"luna": {
		lines: map[Intent][]string{
			IntentHelp: {
				"Let's dream up something together!",
				"Ooh, a puzzle. Let's find a creative way through it.",
			},
			IntentThanks: {
				"Anytime! Keep creating.",
				"That was fun. Thank you for sharing it with me!",
			},
			IntentQuestion: {
				"What a lovely question. Let me wonder about it for a moment...",
				"I like where your mind is going. Here's my take.",
			},
		},
		fallback: []string{
			"Tell me more, I'm curious where this goes.",
			"That sparks a few ideas already!",
		},
	},
	"max": {
		lines: map[Intent][]string{
			IntentHelp: {
				"Let's debug it. First, what have you tried?",
				"Here's the fix I'd start with.",
			},
			IntentThanks: {
				"No problem. Ping me if it breaks again.",
				"Anytime.",
			},
			IntentQuestion: {
				"Short answer: it depends. Long answer follows.",
				"From an engineering angle, here's the breakdown.",
			},
		},
		fallback: []string{
			"Interesting. Want me to dig into the details?",
			"Got it. I have a few technical thoughts on that.",
		},
	},
	"sofia": {
		lines: map[Intent][]string{
			IntentHelp: {
				"Of course I'll help! We'll figure it out together.",
				"Don't worry, we've got this!",
			},
			IntentThanks: {
				"Aww, anytime!",
				"You made my day. Happy to help!",
			},
			IntentQuestion: {
				"Ooh, good one. Here's what I think...",
				"I love that you asked!",
			},
		},
		fallback: []string{
			"I'm all ears, tell me more!",
			"That's so cool. What else is going on?",
		},
	},
}

// Reply picks a canned answer for the named participant. Unknown names
// get a generic greeting.
func Reply(agentName, text string) string {
	p, ok := personalities[strings.ToLower(agentName)]
	if !ok {
		return genericReply
	}
	if lines := p.lines[DetectIntent(text)]; len(lines) > 0 {
		return pick(lines)
	}
	return pick(p.fallback)
}

// Names lists the built-in personalities.
func Names() []string {
	return []string{"alex", "luna", "max", "sofia"}
}

func pick(lines []string) string {
	return lines[rand.IntN(len(lines))]
}
