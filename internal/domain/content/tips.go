package content

import (
	"strings"
	"sync/atomic"
)

// Subject groups topics for learning tips.
type Subject string

const (
	SubjectMath      Subject = "math"
	SubjectScience   Subject = "science"
	SubjectHistory   Subject = "history"
	SubjectGeography Subject = "geography"
	SubjectLanguage  Subject = "language"
	SubjectGeneral   Subject = "general"
)

// DefaultTip is served when no topic maps to a subject.
const DefaultTip = "Keep being curious and asking questions! 🌟"

var tipBank = map[Subject][]string{
	SubjectMath: {
		"Try drawing pictures to help solve math problems! 🎨",
		"Break big numbers into smaller parts to make them easier to work with! 🔢",
		"Practice counting with objects you find at home! 🏠",
	},
	SubjectScience: {
		"Try simple experiments at home with adult supervision! 🔬",
		"Look for science in everyday life - like watching plants grow! 🌱",
		"Ask lots of questions about how things work! ❓",
	},
	SubjectHistory: {
		"Make a timeline of events to understand when things happened! 📅",
		"Draw pictures of historical events to remember them better! 🎨",
		"Share historical stories with your friends and family! 📚",
	},
	SubjectGeography: {
		"Look at maps when you hear about different places! 🗺️",
		"Learn about different cultures and their traditions! 🌍",
		"Try to find places you know on a globe! 🌎",
	},
	SubjectLanguage: {
		"Read your favorite stories out loud! 📖",
		"Practice writing new words you learn! ✏️",
		"Play word games with your friends! 🎮",
	},
}

var topicSubjects = map[string]Subject{
	"math":           SubjectMath,
	"numbers":        SubjectMath,
	"addition":       SubjectMath,
	"subtraction":    SubjectMath,
	"multiplication": SubjectMath,
	"division":       SubjectMath,
	"fractions":      SubjectMath,

	"science":    SubjectScience,
	"planets":    SubjectScience,
	"volcanoes":  SubjectScience,
	"weather":    SubjectScience,
	"animals":    SubjectScience,
	"human body": SubjectScience,
	"plants":     SubjectScience,

	"history":   SubjectHistory,
	"dinosaurs": SubjectHistory,
	"pyramids":  SubjectHistory,
	"castles":   SubjectHistory,

	"geography": SubjectGeography,
	"maps":      SubjectGeography,
	"countries": SubjectGeography,
	"oceans":    SubjectGeography,

	"language": SubjectLanguage,
	"reading":  SubjectLanguage,
	"writing":  SubjectLanguage,
	"spelling": SubjectLanguage,
	"stories":  SubjectLanguage,
}

// SubjectOf maps a topic to its subject, or SubjectGeneral.
func SubjectOf(topic string) Subject {
	if s, ok := topicSubjects[strings.ToLower(strings.TrimSpace(topic))]; ok {
		return s
	}
	return SubjectGeneral
}

// Tip is a short study suggestion.
type Tip struct {
	Subject Subject  `json:"subject"`
	Tip     string   `json:"tip"`
	Topics  []string `json:"topics"`
}

// LearningTip returns the n-th tip of the first topic with a known subject,
// wrapping around, or DefaultTip.
func LearningTip(topics []string, n int) Tip {
	if n < 0 {
		n = -n
	}
	if topics == nil {
		topics = []string{}
	}
	for _, t := range topics {
		subject := SubjectOf(t)
		if bank, ok := tipBank[subject]; ok {
			return Tip{Subject: subject, Tip: bank[n%len(bank)], Topics: topics}
		}
	}
	return Tip{Subject: SubjectGeneral, Tip: DefaultTip, Topics: topics}
}

// TipRotation cycles through the tips of a subject on successive calls.
type TipRotation struct {
	next atomic.Int64
}

// Next returns the following tip for topics.
func (r *TipRotation) Next(topics []string) Tip {
	return LearningTip(topics, int(r.next.Add(1)-1))
}
