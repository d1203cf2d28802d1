// Package tsg holds the Technical Support Guide template, the marker
// conventions used to carve sections out of agent output, the structural
// validator, and the prompt builders for each pipeline stage.
package tsg

// Marker pairs embedded in agent output. Content outside a recognized pair is
// discarded when extracting fields.
const (
	TSGBegin       = "<!-- TSG_BEGIN -->"
	TSGEnd         = "<!-- TSG_END -->"
	QuestionsBegin = "<!-- QUESTIONS_BEGIN -->"
	QuestionsEnd   = "<!-- QUESTIONS_END -->"
	ResearchBegin  = "<!-- RESEARCH_BEGIN -->"
	ResearchEnd    = "<!-- RESEARCH_END -->"
	ReviewBegin    = "<!-- REVIEW_BEGIN -->"
	ReviewEnd      = "<!-- REVIEW_END -->"
)

const (
	// RequiredTOC must open every document.
	RequiredTOC = "[[_TOC_]]"

	// RequiredDiagnosisLine must appear verbatim in the Diagnosis section.
	RequiredDiagnosisLine = "Don't Remove This Text: Results of the Diagnosis should be attached in the Case notes/ICM."

	// NoMissing is the entire questions block when the document has no
	// placeholders left.
	NoMissing = "NO_MISSING"

	// PlaceholderPrefix starts every {{MISSING::<SECTION>::<HINT>}} placeholder.
	PlaceholderPrefix = "{{MISSING::"

	// Version is stamped into the signature.
	Version = "1.0.5"

	// Signature is appended to every finished document.
	Signature = "\n\n---\n*Drafted with [TSG Builder](https://github.com/jcentner/tsgbuilder) v" + Version + "*"

	// ResearchUnavailable stands in for research on follow-up runs that were
	// not given the earlier report.
	ResearchUnavailable = "(Prior research not available for this follow-up)"
)

// RequiredHeadings lists every section heading in template order.
var RequiredHeadings = []string{
	"# **Title**",
	"# **Issue Description / Symptoms**",
	"# **When does the TSG not Apply**",
	"# **Diagnosis**",
	"# **Questions to Ask the Customer**",
	"# **Cause**",
	"# **Mitigation or Resolution**",
	"# **Root Cause to be shared with Customer**",
	"# **Related Information**",
	"# **Tags or Prompts**",
}

// Template is the markdown skeleton the writer fills in.
const Template = `[[_TOC_]]

# **Title**
_Include, ideally, Error Message/ Error code or Scenario with keywords._
_For example_ **'message': 'ScriptExecutionException was caused by StreamAccessException.\n StreamAccessException was caused by AuthenticationException.** OR
**Datareference to ADLSGen2 Datastore fails.**

# **Issue Description / Symptoms**
_Describe what the Customer/CSS Engineer would see as an issue. This would include the error message and the stack trace (if available)_
- **What** is the issue?
- **Who** does this affect?
- **Where** does the issue occur? Where does it not occur?
- **When** does it occur?

# **When does the TSG not Apply**
_For example the TSG might not apply to Private Endpoint workspace etc._

# **Diagnosis**
_How can I debug further and mitigate this issue? Add more details on how to diagnose this issue._
- [ ] _Put quick steps to check before doing any deep dives._
- [ ] _This section can include Kusto queries, Acis commands or ASC actions (preferable) for getting more diagnostic information_
- [ ] _If is a common query link to a separate How-To Page containing the entire Kusto query, Acis Command or ASC action._

Don't Remove This Text: Results of the Diagnosis should be attached in the Case notes/ICM.

# **Questions to Ask the Customer**
_If there is no diagnostic information available or to further drill into the issue, list down any questions you can ask the customer._

# **Cause**
_**Why** does the issue occur? Include both internal and external details about the cause, if possible._

# **Mitigation or Resolution**
_How can I fix this issue? Add more details on how to fix this issue once it has been identified._
- _This should be a short step by step guide._
- _This section can include Acis commands or scripts/ adhoc steps to perform resolution operations_
- _Create a script file if possible and place a link to the script file (parameterize the script to take in user specific inputs.)_
- _For inline scripts, please give entire script and don't give instructions_
- _Put a link to a How-To Page that contains the above for common steps_

# **Root Cause to be shared with Customer**
_**Why** does the issue occur? If applicable, list a short root cause that can be shared with customer. Include both internal and external details about the cause, if possible_

# **Related Information**
_Where can I find more information about this issue? Add links to related content here._
_This could be links to other TSGs, ICMs, AVA threads, Bugs, Known Issues._
_If there is a Public Documentation about this issue, link that here too and make sure you also update the public doc._

# **Tags or Prompts**
_Add common tags or prompts statements that can improve the searchability and copilot recommendation of this TSG._
(E.g.: This TSG helps answer _<prompt>_)
`
