package analysis

import (
	"fmt"
	"strings"

	"github.com/seanblong/solutionfinder/pkg/models"
)

const complianceSystem = `You are a compliance expert specialising in the GDPR and the EU AI Act.
Work exclusively with the following excerpts from the legal texts.

Decide first whether the described process uses artificial intelligence
(machine learning, LLMs, automation frameworks with learned components).
- ai_used: "yes" or "no"

Classify under the GDPR:
- gdpr_status: "green", "yellow" or "red"
- gdpr_section: the exact article, or "-"

Classify under the EU AI Act:
- if ai_used is "yes": ai_act_status "warning" or "violation" and ai_act_section the exact article
- if ai_used is "no": ai_act_status "ok" and ai_act_section "-"

Reply with a single JSON object and nothing else, with exactly these fields:
{
  "ai_used": <string>,
  "gdpr_status": <string>,
  "gdpr_section": <string>,
  "ai_act_status": <string>,
  "ai_act_section": <string>,
  "explanations": {"gdpr": <string>, "ai_act": <string>}
}

Excerpts:

%s
`

const valueSystem = `You are a process consultant. Compute a numeric business value score from
the inputs, then give the factor breakdown and a short narrative.

Reply with a single JSON object and nothing else:
{
  "score": <number>,
  "breakdown": {
    "time_factor": <number>,
    "frequency_factor": <number>,
    "stakeholder_factor": <number>
  },
  "narrative": <string>
}
`

const toolsSystem = `You are an automation architect. Recommend up to three tools for the
described process, each with a reason, taking the existing applications into account.

Reply with a single JSON object and nothing else:
{
  "recommendations": [
    {"tool": <string>, "reason": <string>}
  ]
}
`

func compliancePrompt(description string, excerpts []models.SearchResult) (system, user string) {
	texts := make([]string, len(excerpts))
	for i, r := range excerpts {
		texts[i] = r.Chunk.Content
	}
	system = fmt.Sprintf(complianceSystem, strings.Join(texts, "\n\n"))
	user = fmt.Sprintf("Assess this process:\n\"\"\"%s\"\"\"", description)
	return system, user
}

func valuePrompt(req ValueRequest) (system, user string) {
	user = fmt.Sprintf("Inputs:\n- time_required: %s\n- frequency: %s\n- stakeholder: %s\n\nJSON only.",
		req.TimeRequired, req.Frequency, req.Stakeholder)
	return valueSystem, user
}

func toolsPrompt(req ToolRequest) (system, user string) {
	user = fmt.Sprintf("Process description:\n\"\"\"%s\"\"\"\n\nExisting applications:\n%s\n\nJSON only.",
		req.Description, req.Applications)
	return toolsSystem, user
}
