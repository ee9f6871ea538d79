package lsp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReporter_Sequence(t *testing.T) {
	var sent []jsonRPCMessage
	p := NewProgressReporter(func(msg jsonRPCMessage) error {
		sent = append(sent, msg)
		return nil
	})
	ctx := context.Background()
	require.NoError(t, p.Begin(ctx, "tok", "analyzing"))
	require.NoError(t, p.Report(ctx, "tok", "half", 150))
	require.NoError(t, p.End(ctx, "tok", "done"))

	require.Len(t, sent, 4)
	assert.Equal(t, MethodWindowWorkDoneProgressCreate, sent[0].Method)
	var create progressToken
	require.NoError(t, json.Unmarshal(sent[0].Params, &create))
	assert.Equal(t, "tok", create.Token)

	var steps []progressStep
	for _, m := range sent[1:] {
		assert.Equal(t, MethodProgress, m.Method)
		var pp progressParams
		require.NoError(t, json.Unmarshal(m.Params, &pp))
		assert.Equal(t, "tok", pp.Token)
		steps = append(steps, pp.Value)
	}
	assert.Equal(t, []progressStep{
		{Kind: "begin", Title: "analyzing"},
		{Kind: "report", Message: "half", Percentage: 100},
		{Kind: "end", Message: "done"},
	}, steps)
}
