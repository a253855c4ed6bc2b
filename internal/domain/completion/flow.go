package completion

import (
	"context"
	"encoding/json"

	"github.com/sashabaranov/go-openai"

	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

// FlowTurn is one question and the answer the flow gave to it.
type FlowTurn struct {
	Question string
	Answer   string
}

// FlowAnswer is a flow reply. Citations is passed through as the flow returned it.
type FlowAnswer struct {
	Answer    string
	Citations json.RawMessage
}

// Flow answers a question given the earlier turns of the conversation. A
// configured Flow replaces the completion provider for chat turns.
type Flow interface {
	Answer(ctx context.Context, question string, history []FlowTurn) (*FlowAnswer, error)
}

// flowTurns pairs user messages with the assistant reply that follows them.
// Other roles are dropped.
func flowTurns(messages []Message) []FlowTurn {
	var turns []FlowTurn
	for _, m := range messages {
		switch m.Role {
		case openai.ChatMessageRoleUser:
			turns = append(turns, FlowTurn{Question: m.Content.PlainText()})
		case openai.ChatMessageRoleAssistant:
			if len(turns) > 0 {
				turns[len(turns)-1].Answer = m.Content.PlainText()
			}
		}
	}
	return turns
}

func (s *Service) runFlow(ctx context.Context, messages []Message) (*Outcome, error) {
	turns := flowTurns(messages)
	if len(turns) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "no user message to answer", nil, "3f8d2a6c-9b1e-4c7a-8e5d-2a6f9c1b4e73")
	}
	last := turns[len(turns)-1]

	answer, err := s.flow.Answer(ctx, last.Question, turns[:len(turns)-1])
	if err != nil {
		if platformerrors.GetPlatformError(err) != nil {
			return nil, err
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal, "flow request failed", err, "b2e7c4a9-6d1f-4a3b-9c8e-5f2d7a1b6e94")
	}

	message := &ResultMessage{Role: openai.ChatMessageRoleAssistant, Content: answer.Answer}
	if len(answer.Citations) > 0 {
		ctxJSON, err := json.Marshal(map[string]json.RawMessage{"citations": answer.Citations})
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal, "flow returned unreadable citations", err, "c9a4e1d7-2b6f-4e8c-a3d5-7f1b9e2c6a48")
		}
		message.Context = ctxJSON
	}

	return &Outcome{Result: &Result{
		ID:      messages[len(messages)-1].ID,
		Choices: []Choice{{Message: message, FinishReason: openai.FinishReasonStop}},
	}}, nil
}
