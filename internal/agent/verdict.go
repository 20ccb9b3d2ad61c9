package agent

import (
	"regexp"
	"strings"

	"github.com/ShayCichocki/devteam/pkg/models"
)

var (
	// verdictPattern matches "VERDICT: ACCEPT", "**Verdict** - revise" and similar.
	verdictPattern = regexp.MustCompile(`(?i)verdict[*_\s]*[:=\-][*_\s]*(accept|approve|revise|reject)(?:e?d)?\b`)
	// feedbackPattern captures everything after a FEEDBACK marker.
	feedbackPattern = regexp.MustCompile(`(?is)feedback[*_\s]*[:=\-][*_\s]*(.*)`)
	// bareVerdictPattern matches an upper-case verdict word anywhere in the text.
	// ACCEPTABLE, REJECTED and the like are not verdict words.
	bareVerdictPattern = regexp.MustCompile(`\b(ACCEPT|APPROVE|REVISE|REJECT)\b`)
	// verdictLinePattern strips the verdict line when no FEEDBACK marker exists.
	verdictLinePattern = regexp.MustCompile(`(?im)^.*verdict.*$`)
)

func toVerdict(word string) models.Verdict {
	switch strings.ToUpper(word) {
	case "ACCEPT", "APPROVE":
		return models.VerdictAccept
	default:
		return models.VerdictRevise
	}
}

// bareVerdict settles the verdict from loose verdict words. Any request for
// changes wins over approval.
func bareVerdict(words []string) models.Verdict {
	for _, w := range words {
		if toVerdict(w) == models.VerdictRevise {
			return models.VerdictRevise
		}
	}
	return models.VerdictAccept
}

// ParseEvaluation extracts a verdict and feedback from a review response.
// The second return value is false when no verdict could be found.
func ParseEvaluation(response string) (models.Evaluation, bool) {
	text := strings.TrimSpace(response)
	if text == "" {
		return models.Evaluation{}, false
	}

	var eval models.Evaluation
	if m := verdictPattern.FindStringSubmatch(text); len(m) >= 2 {
		eval.Verdict = toVerdict(m[1])
	} else if words := bareVerdictPattern.FindAllString(text, -1); len(words) > 0 {
		eval.Verdict = bareVerdict(words)
	} else {
		return models.Evaluation{Feedback: text}, false
	}

	if m := feedbackPattern.FindStringSubmatch(text); len(m) >= 2 {
		eval.Feedback = strings.TrimSpace(m[1])
	} else {
		eval.Feedback = strings.TrimSpace(verdictLinePattern.ReplaceAllString(text, ""))
	}
	return eval, true
}
