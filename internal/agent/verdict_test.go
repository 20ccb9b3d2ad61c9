package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ShayCichocki/devteam/pkg/models"
)

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantOK       bool
		wantVerdict  models.Verdict
		wantFeedback string
	}{
		{
			name:         "canonical accept",
			input:        "VERDICT: ACCEPT\nFEEDBACK: solid",
			wantOK:       true,
			wantVerdict:  models.VerdictAccept,
			wantFeedback: "solid",
		},
		{
			name:         "canonical revise multi-line feedback",
			input:        "VERDICT: REVISE\nFEEDBACK: 1. add tests\n2. handle errors",
			wantOK:       true,
			wantVerdict:  models.VerdictRevise,
			wantFeedback: "1. add tests\n2. handle errors",
		},
		{
			name:         "markdown decorations",
			input:        "**Verdict**: revise\n**Feedback**: missing pagination",
			wantOK:       true,
			wantVerdict:  models.VerdictRevise,
			wantFeedback: "missing pagination",
		},
		{
			name:         "approve synonym",
			input:        "Verdict - approve",
			wantOK:       true,
			wantVerdict:  models.VerdictAccept,
			wantFeedback: "",
		},
		{
			name:         "bare upper-case word",
			input:        "I would REJECT this: no error handling.",
			wantOK:       true,
			wantVerdict:  models.VerdictRevise,
			wantFeedback: "I would REJECT this: no error handling.",
		},
		{
			name:         "labelled past tense",
			input:        "Verdict: Accepted",
			wantOK:       true,
			wantVerdict:  models.VerdictAccept,
			wantFeedback: "",
		},
		{
			name:         "longer word is not a verdict",
			input:        "The handlers are NOT ACCEPTABLE yet. REVISE the error paths.",
			wantOK:       true,
			wantVerdict:  models.VerdictRevise,
			wantFeedback: "The handlers are NOT ACCEPTABLE yet. REVISE the error paths.",
		},
		{
			name:         "inflected words only",
			input:        "This is REJECTED? No: ACCEPTED.",
			wantOK:       false,
			wantFeedback: "This is REJECTED? No: ACCEPTED.",
		},
		{
			name:         "revise wins over accept",
			input:        "I would ACCEPT the layout but REVISE the fetch calls.",
			wantOK:       true,
			wantVerdict:  models.VerdictRevise,
			wantFeedback: "I would ACCEPT the layout but REVISE the fetch calls.",
		},
		{
			name:         "no verdict",
			input:        "Nice work overall.",
			wantOK:       false,
			wantFeedback: "Nice work overall.",
		},
		{
			name:   "empty",
			input:  "   ",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseEvaluation(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantVerdict, got.Verdict)
			}
			assert.Equal(t, tt.wantFeedback, got.Feedback)
		})
	}
}
