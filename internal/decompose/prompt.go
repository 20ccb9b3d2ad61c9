package decompose

// decompositionPrompt is the directive for task decomposition. The verbs are
// filled with the request and the list of assignable roles.
const decompositionPrompt = `Break this user request into subtasks for your team. Each subtask is handled by exactly one developer.

User request:
%s

Available roles:
%s

Return ONLY a JSON array with this exact structure (no other text):
[
  {
    "description": "Complete, self-contained description of the subtask",
    "assignee_role": "%s"
  }
]

Guidelines:
- Every subtask must name exactly one of the available roles in assignee_role
- Each description must stand on its own: the developer sees only that description
- Prefer one subtask per role; split further only when the parts are truly independent
- Do not create subtasks for review or integration; you do that yourself`
