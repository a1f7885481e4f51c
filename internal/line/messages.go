package line

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/garyellow/dr-matricula-go/internal/stringutil"
)

// quickReplyItem is one suggestion chip under the reply.
type quickReplyItem struct {
	Label string // at most 20 characters
	Text  string // sent as the user's message when tapped
}

// menu suggests the questions the assistant answers best.
var menu = []quickReplyItem{
	{Label: "Carreras", Text: "¿Qué carreras tienen?"},
	{Label: "Requisitos", Text: "¿Cuáles son los requisitos de admisión?"},
	{Label: "Matricularme", Text: "Quiero matricularme"},
}

func newQuickReply(items []quickReplyItem) *messaging_api.QuickReply {
	out := make([]messaging_api.QuickReplyItem, len(items))
	for i, item := range items {
		out[i] = messaging_api.QuickReplyItem{
			Action: &messaging_api.MessageAction{
				Label: stringutil.Truncate(item.Label, 20),
				Text:  item.Text,
			},
		}
	}
	return &messaging_api.QuickReply{Items: out}
}

// textMessages splits text into at most maxMessagesPerReply LINE messages.
// The menu is attached to the last one.
func textMessages(text string) []messaging_api.MessageInterface {
	chunks := stringutil.Chunk(text, maxTextRunes)
	if len(chunks) > maxMessagesPerReply {
		chunks = chunks[:maxMessagesPerReply]
	}
	msgs := make([]messaging_api.MessageInterface, 0, len(chunks))
	for i, c := range chunks {
		m := &messaging_api.TextMessage{Text: c}
		if i == len(chunks)-1 {
			m.QuickReply = newQuickReply(menu)
		}
		msgs = append(msgs, m)
	}
	return msgs
}
