package extract

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/childcare-cli/internal/model"
)

// Model constants.
const (
	ModelHaiku  = "claude-haiku-4-5-20251001"
	ModelSonnet = "claude-sonnet-4-5-20250929"
)

// Default prompt versions per pass.
const (
	DefaultContactVersion   = "v3"
	DefaultChildcareVersion = "v1"
	DefaultCombineVersion   = "v2"
)

const schoolSystemPrompt = "You are an AI expert tasked with understanding elementary and high school websites."

const elementarySystemPrompt = "You are an AI expert tasked with understanding elementary school websites."

const contactTask = `For the web page markdown given to you, extract the following information from it:
- Extract all email addresses as a list. Leave the list empty if there aren't any.
- If the page is a contact page or contact us page, set is_contact_page to true.
- If the page describes a before or after school childcare program, extract those details into before_or_after_care_details. Otherwise leave it empty.`

const contactBadExamples = `DON'T say things like the following. These are BAD responses:
- "The page does not provide specific details about before or after school childcare programs"
- "The page provides a link to the Before & After School Programs but does not include specific details about the programs themselves."
- "Students must enter and exit through Door 2. Students must wait patiently in the foyer. Once you exit the building for the day, you will not be allowed back in the building."
- "Plan ahead for before and after school programs."
- "After school programs will run as normal."`

const goodYMCA = `- "Peirce partners with the Lakeview YMCA to offer before and after school care for students in Kindergarten through 8th grades. Programs are run at Peirce School but organized and run by the YMCA. Before care runs from 7:00-8:00 am and after care runs from 3:00 - 6:00 pm."`

const goodTwoOptions = `- "We have two after school options - Right At School and Park District."`

const (
	ruleChildcareOnly = "We ONLY care about before or after care CHILDCARE programs, not general instructions about what students are supposed to do before and after school. DO NOT include general instructions about what students are supposed to do before and after school."
	ruleNoInference   = "DO NOT infer that before or after care is likely and mention that."
	ruleLinkOnly      = "A page is NOT a before or after childcare page if it just links to a page with those details."
	ruleNoAbsence     = "DO NOT mention if the page doesn't talk about before or after childcare."
	ruleStartDate     = "If a page mentions that a childcare program starts on a certain date in 2024 or 2025, include it."
	ruleOST           = `The abbreviation "OST" stands for "Out of School Time" and should be included.`
	ruleExtendedDay   = "Extended Day programs should be included."
	ruleProviders     = "Right at School, Park District, and YMCA programs should be included."
)

type contactTemplate struct {
	rules []string
	good  []string
}

var contactTemplates = map[string]contactTemplate{
	"v1": {
		rules: []string{ruleChildcareOnly, ruleNoInference, ruleLinkOnly, ruleNoAbsence},
		good:  []string{goodYMCA},
	},
	"v2": {
		rules: []string{ruleChildcareOnly, ruleNoInference, ruleLinkOnly, ruleNoAbsence, ruleOST, ruleProviders},
		good:  []string{goodYMCA, goodTwoOptions},
	},
	"v3": {
		rules: []string{ruleChildcareOnly, ruleNoInference, ruleNoAbsence, ruleStartDate, ruleOST, ruleExtendedDay, ruleProviders},
		good:  []string{goodYMCA, goodTwoOptions},
	},
}

// Prompt is a rendered (system, user) pair.
type Prompt struct {
	System string
	User   string
}

// ContactPrompt renders the pass-1 prompt for page.
func ContactPrompt(version string, page model.CrawledPage) (Prompt, error) {
	tmpl, ok := contactTemplates[version]
	if !ok {
		return Prompt{}, unknownVersion(model.PassContact, version)
	}

	var b strings.Builder
	b.WriteString(contactTask)
	b.WriteString("\n\nFollow these rules:\n")
	writeBullets(&b, tmpl.rules)
	b.WriteString("\n")
	b.WriteString(contactBadExamples)
	b.WriteString("\n\nA good extraction looks like:\n")
	b.WriteString(strings.Join(tmpl.good, "\n"))
	b.WriteString("\n\nIt's currently the year 2024--DO NOT include information on childcare programs from previous years.\n\n")
	fmt.Fprintf(&b, "Page URL: %s\nPage Title: %s\nPage Description: %s\nPage Markdown: %s\n",
		page.URL, page.Title, page.Description, page.Markdown)

	return Prompt{System: schoolSystemPrompt, User: b.String()}, nil
}

const childcareV1 = `Here is an elementary school webpage. If present, extract information about before and after school child care.
Follow these rules:
- We ONLY care about before or after care CHILDCARE programs, not general instructions about what students are supposed to do before and after school, or about summer programs, or about sports.
- Don't include info on summer camps or day camps.
- Sometimes these programs are called "OST", "Out of School Time", or "Right at School" programs.
- For the fields "before_care_quote_snippet" and "after_care_quote_snippet", return the EXACT QUOTED TEXT from the webpage "Content" that is the most relevant snippet to your answer. DO NOT CHANGE ANY WORDS.
- Use null for any field the page does not answer.

## Webpage
#URL:
%s
#Description:
%s
#Content to Quote From:
"%s"

## Answer:
`

// ChildcarePrompt renders the pass-2 prompt for page.
func ChildcarePrompt(version string, page model.CrawledPage) (Prompt, error) {
	if version != "v1" {
		return Prompt{}, unknownVersion(model.PassChildcare, version)
	}
	return Prompt{
		System: elementarySystemPrompt,
		User:   fmt.Sprintf(childcareV1, page.URL, page.Title, page.Markdown),
	}, nil
}

const combineV2 = `Here is a numbered list of json objects extracted from webpages about a single elementary school. Use the
information to synthesize a single, high quality overview of the school's before and after school child care program.
- Prefer pages where the "before_care_quote_snippet_verified" and "after_care_quote_snippet_verified" fields are true over ones where they are false.
- If there are multiple pages that contain the same information, prefer the one with the highest quality "before_care_quote_snippet_verified" and "after_care_quote_snippet_verified" fields.
- If there are multiple pages that contain the same information, prefer the one with the most recent "webpage_year" field.
- You MUST cite your sources by listing the source number in "before_care_citations" and "after_care_citations".
- Only cite source numbers that appear in the list below.

## Webpages
%s

## Answer:`

// CombinePrompt renders the pass-3 prompt around a numbered evidence list.
// v1 is accepted as an alias of v2.
func CombinePrompt(version, evidence string) (Prompt, error) {
	switch version {
	case "v1", "v2":
	default:
		return Prompt{}, unknownVersion(model.PassCombine, version)
	}
	return Prompt{
		System: schoolSystemPrompt,
		User:   fmt.Sprintf(combineV2, evidence),
	}, nil
}

// PromptVersions lists the known template versions for a pass.
func PromptVersions(pass model.Pass) []string {
	switch pass {
	case model.PassContact:
		return []string{"v1", "v2", "v3"}
	case model.PassChildcare:
		return []string{"v1"}
	case model.PassCombine:
		return []string{"v1", "v2"}
	}
	return nil
}

// CheckVersion reports ErrUnknownPromptVersion when pass has no template
// for version.
func CheckVersion(pass model.Pass, version string) error {
	if slices.Contains(PromptVersions(pass), version) {
		return nil
	}
	return unknownVersion(pass, version)
}

func writeBullets(b *strings.Builder, lines []string) {
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
}
