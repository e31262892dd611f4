package composer

import (
	"fmt"
	"strings"
)

// hostProfile describes one of the two podcast hosts.
type hostProfile struct {
	Name        string
	Traits      string
	Background  string
	SpeechStyle string
}

// hosts are listed in speaking order.
var hosts = []hostProfile{
	{
		Name:        "Alex",
		Traits:      "enthusiastic, curious, fond of analogies, asks probing questions",
		Background:  "background in computer science with interests in AI and cognitive science",
		SpeechStyle: "energetic, uses accessible language to explain complex concepts",
	},
	{
		Name:        "Jordan",
		Traits:      "analytical, thoughtful, good at synthesizing information, occasionally witty",
		Background:  "background in physics with broad knowledge across scientific disciplines",
		SpeechStyle: "measured pace, builds on concepts methodically, occasional dry humor",
	},
}

const promptPreamble = `You are a professional podcast script writer specializing in engaging, conversational scripts about scientific research papers.
Write a two-host podcast script discussing the research papers below.

GUIDELINES:
- Natural, conversational dialogue between two hosts with distinct personalities
- Make complex research accessible to the specified audience level
- Include questions, insights and appropriate humor
- Create smooth transitions between papers
- Maintain scientific accuracy; explain any technical jargon
- Include an introduction, paper discussions and a conclusion
- Do not include stage directions or sound effects

OUTPUT FORMAT:
# EPISODE TITLE

## INTRODUCTION
ALEX: dialogue
JORDAN: dialogue

## PAPER 1: Paper Title
ALEX: dialogue
JORDAN: dialogue

## CONCLUSION
ALEX: dialogue
JORDAN: dialogue
`

const promptStructure = `
## SCRIPT STRUCTURE
1. Begin with a brief introduction where the hosts welcome listeners and preview the papers
2. For each paper, introduce its title and authors, explain the research question, then discuss the findings and their significance
3. When moving between papers, reference the connections listed above
4. Conclude by summarizing key insights and their broader implications
5. Keep speaking time balanced between the two hosts

Now write the script.
`

func buildPrompt(title, technicalLevel string, targetMinutes int, digests []paperDigest) string {
	var builder strings.Builder

	builder.WriteString(promptPreamble)

	builder.WriteString("\n## HOST PERSONALITIES\n")

	for _, host := range hosts {
		fmt.Fprintf(&builder, "### %s\n", strings.ToUpper(host.Name))
		fmt.Fprintf(&builder, "- Traits: %s\n", host.Traits)
		fmt.Fprintf(&builder, "- Background: %s\n", host.Background)
		fmt.Fprintf(&builder, "- Speech style: %s\n\n", host.SpeechStyle)
	}

	builder.WriteString("## PODCAST CONFIGURATION\n")
	fmt.Fprintf(&builder, "- Episode title: %s\n", title)
	fmt.Fprintf(&builder, "- Technical level: %s\n", technicalLevel)
	fmt.Fprintf(&builder, "- Target length: approximately %d minutes\n", targetMinutes)

	builder.WriteString("\n## PAPERS TO DISCUSS\n")

	for index, digest := range digests {
		fmt.Fprintf(&builder, "\n### PAPER %d: %s\n", index+1, digest.Title)
		fmt.Fprintf(&builder, "- Authors: %s\n", digest.Authors)
		fmt.Fprintf(&builder, "- Published: %s\n", digest.Published)
		fmt.Fprintf(&builder, "- Categories: %s\n", strings.Join(digest.Categories, ", "))
		fmt.Fprintf(&builder, "- Abstract: %s\n", digest.Abstract)

		if len(digest.KeyPoints) > 0 {
			builder.WriteString("- Key points:\n")

			for _, point := range digest.KeyPoints {
				fmt.Fprintf(&builder, "  * %s\n", point)
			}
		}

		if len(digest.Connections) > 0 {
			builder.WriteString("- Connections to other papers:\n")

			for _, link := range digest.Connections {
				fmt.Fprintf(&builder, "  * Paper %d: %s\n", link.OtherIndex+1, strings.Join(link.Kinds, " and "))
			}
		}
	}

	builder.WriteString(promptStructure)

	return builder.String()
}
