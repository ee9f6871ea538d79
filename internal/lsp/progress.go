package lsp

import (
	"context"
	"sync"
)

// ProgressReporter sends window/workDoneProgress notifications.
type ProgressReporter struct {
	send func(msg jsonRPCMessage) error
	mu   sync.Mutex
}

func NewProgressReporter(send func(msg jsonRPCMessage) error) *ProgressReporter {
	return &ProgressReporter{send: send}
}

// Begin creates the token and sends the begin notification.
func (p *ProgressReporter) Begin(ctx context.Context, token, title string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	create := jsonRPCMessage{
		JSONRPC: "2.0",
		ID:      "progress-create-" + token,
		Method:  MethodWindowWorkDoneProgressCreate,
		Params:  mustMarshal(progressToken{Token: token}),
	}
	if err := p.send(create); err != nil {
		return err
	}
	return p.notify(token, progressStep{Kind: "begin", Title: title})
}

// Report sends an intermediate report. percentage is clamped to [0, 100].
func (p *ProgressReporter) Report(ctx context.Context, token, message string, percentage int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notify(token, progressStep{
		Kind:       "report",
		Message:    message,
		Percentage: min(max(percentage, 0), 100),
	})
}

func (p *ProgressReporter) End(ctx context.Context, token, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notify(token, progressStep{Kind: "end", Message: message})
}

func (p *ProgressReporter) notify(token string, step progressStep) error {
	return p.send(jsonRPCMessage{
		JSONRPC: "2.0",
		Method:  MethodProgress,
		Params:  mustMarshal(progressParams{Token: token, Value: step}),
	})
}
