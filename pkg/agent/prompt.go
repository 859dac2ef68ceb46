package agent

import (
	"fmt"
	"strings"
)

var rolePersonas = map[Role]string{
	RoleDebt:     "You assess debt capacity, covenants, refinancing risk and downside protection.",
	RoleTech:     "You assess the technology, product maturity, engineering risk and defensibility.",
	RoleMarket:   "You assess market size, growth, competition and go-to-market strength.",
	RoleCapital:  "You assess capital structure, valuation, dilution and expected returns.",
	RoleResearch: "You check facts, surface missing evidence and challenge unsupported claims.",
}

const responseFormat = `Reply with exactly one JSON object and nothing else. Allowed shapes:
{"action":"opinion","content":"<your current position>"}
{"action":"message","targetRole":"<debt|tech|market|capital|research>","content":"<message>"}
{"action":"vote","vote":"<approve|reject|abstain>","rationale":"<why>"}
{"action":"search","query":"<what to look up>"}
{"action":"wait","reason":"<why you pass this round>"}`

// SystemPrompt returns the system prompt for a role
func SystemPrompt(role Role) string {
	persona, ok := rolePersonas[role]
	if !ok {
		persona = "You are a member of an investment committee."
	}

	return fmt.Sprintf(
		"You are the %s member of an investment committee deliberating on a proposal. %s\n"+
			"Each round you may publish an opinion, message another member, vote once, search, or wait.\n"+
			"Vote only when you are confident; a vote is final.\n\n%s",
		role, persona, responseFormat,
	)
}

// TaskPrompt renders the user turn for one task
func TaskPrompt(task Task, briefing string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Round %d.\n", task.Round)
	if briefing != "" {
		b.WriteString("\n## Session\n")
		b.WriteString(briefing)
		b.WriteString("\n")
	}

	if len(task.Instructions) > 0 {
		b.WriteString("\n## Instructions from the operator\n")
		for _, instruction := range task.Instructions {
			fmt.Fprintf(&b, "- %s\n", instruction)
		}
	}

	if task.ForceVote {
		b.WriteString("\nThe operator has called the vote. You must reply with a vote action this round.\n")
	}

	return b.String()
}
