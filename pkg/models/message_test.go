package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluation_String(t *testing.T) {
	tests := []struct {
		name string
		eval Evaluation
		want string
	}{
		{"accept without feedback", Evaluation{Verdict: VerdictAccept}, "VERDICT: ACCEPT"},
		{"revise with feedback", Evaluation{Verdict: VerdictRevise, Feedback: "add tests"}, "VERDICT: REVISE\nFEEDBACK: add tests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eval.String())
		})
	}
}

func TestMessageKind_Valid(t *testing.T) {
	assert.True(t, MessageKindRequest.Valid())
	assert.True(t, MessageKindResponse.Valid())
	assert.True(t, MessageKindEvaluation.Valid())
	assert.False(t, MessageKind("note").Valid())
	assert.True(t, VerdictRevise.Valid())
	assert.False(t, Verdict("MAYBE").Valid())
}
