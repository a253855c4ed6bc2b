package completion

import (
	"context"

	"jan-server/services/envchat-api/internal/domain/environment"
)

// Service runs the build and dispatch steps for one turn.
type Service struct {
	builder    *Builder
	dispatcher *Dispatcher
	titles     *TitleGenerator
	flow       Flow
}

// NewService wires the completion steps. flow may be nil.
func NewService(builder *Builder, dispatcher *Dispatcher, titles *TitleGenerator, flow Flow) *Service {
	return &Service{builder: builder, dispatcher: dispatcher, titles: titles, flow: flow}
}

// Run builds a request for messages against env and dispatches it. With a flow
// configured the turn is answered by the flow in batch mode instead.
func (s *Service) Run(ctx context.Context, messages []Message, env *environment.Environment, opts ...BuildOption) (*Outcome, error) {
	if s.flow != nil {
		return s.runFlow(ctx, messages)
	}
	req, err := s.builder.Build(ctx, messages, env, opts...)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Dispatch(ctx, req, env)
}

// Title generates a conversation title. It never fails.
func (s *Service) Title(ctx context.Context, messages []Message, env *environment.Environment) string {
	return s.titles.Generate(ctx, messages, env)
}
