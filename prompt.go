package lumen

import (
	"strings"
)

// DefaultPreamble is the system prompt template for ReAct runs. {tools} is
// replaced with one "name: description" line per tool and {tool_names} with
// the comma-separated tool names.
const DefaultPreamble = `Answer the following question as best you can. You have access to the following tools:

{tools}

Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [{tool_names}]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original input question

Reply with exactly one Action per message and stop after the Action Input line. Observations are provided to you; never write them yourself.`

const formatReminder = `Your last reply did not follow the required format. Reply with either
Thought: <your reasoning>
Action: <one of the tool names>
Action Input: <the input for the tool>
or
Thought: <your reasoning>
Final Answer: <your answer>`

// renderPreamble fills the tool placeholders of tmpl.
func renderPreamble(tmpl string, tools []Tool) string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return strings.NewReplacer(
		"{tools}", describeTools(tools),
		"{tool_names}", strings.Join(names, ", "),
	).Replace(tmpl)
}

// buildMessages assembles the prompt for one model call: preamble, memory
// transcript, the question, one assistant/observation pair per completed
// step, and, after a malformed reply, that reply plus a format reminder.
func buildMessages(preamble string, history []ChatMessage, input string, steps []AgentStep, malformed *Unparsed) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(history)+2+2*len(steps)+2)
	msgs = append(msgs, SystemMessage(preamble))
	msgs = append(msgs, history...)
	msgs = append(msgs, UserMessage("Question: "+input))
	for _, s := range steps {
		msgs = append(msgs, AssistantMessage(renderStep(s)))
		msgs = append(msgs, UserMessage("Observation: "+s.Observation))
	}
	if malformed != nil {
		msgs = append(msgs, AssistantMessage(malformed.Raw))
		msgs = append(msgs, UserMessage(formatReminder))
	}
	return msgs
}

func renderStep(s AgentStep) string {
	var sb strings.Builder
	if s.Thought != "" {
		sb.WriteString("Thought: ")
		sb.WriteString(s.Thought)
		sb.WriteByte('\n')
	}
	sb.WriteString("Action: ")
	sb.WriteString(s.Action)
	sb.WriteString("\nAction Input: ")
	sb.WriteString(s.ActionInput)
	return sb.String()
}
