package services

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

// Sentinels emitted by the generator when there is nothing to report.
const (
	noConflictsSentinel = "NO_CONFLICTS"
	noDriftSentinel     = "NO_DRIFT"
)

// Line tags of the structured output formats.
const (
	conflictTag = "CONFLICT"
	driftTag    = "DRIFT"
	storyTag    = "STORY"
)

func sectionOutline() string {
	var b strings.Builder
	for i, s := range domain.RequiredSections {
		fmt.Fprintf(&b, "%d. %s\n", i, domain.SectionTitle(s))
	}
	return b.String()
}

func distillSystemPrompt() string {
	return `You maintain a product requirements document (PRD) for a software repository.
Evolve the document from repository signals while keeping it:
- Simple: short sentences, at most 800 lines
- Non-repetitive: link to external docs instead of duplicating them
- Focused: must-have scope only, defer the rest to OOS

Keep this section structure, in order, with these markers as headings:
` + sectionOutline() + `
Output the complete updated PRD in Markdown.`
}

func distillUserPrompt(state *domain.DocumentState, rc repoContext, trigger domain.TriggerType) string {
	return fmt.Sprintf(`Current PRD (v%s):
%s

---

Repository Context:
%s

---

Trigger: %s

Evolve this PRD based on the repository context. Update outdated sections,
add newly discovered information and keep every section current.
Output the complete evolved PRD.`, state.Version, state.Content(), rc, trigger)
}

func generateSystemPrompt() string {
	return `You generate product requirements documents (PRDs) from repository analysis.
Write a complete PRD with these sections, in order, using the markers as headings:
` + sectionOutline() + `
Guidance:
- MVP: 3-7 user stories written as "As [user], I [action] so [benefit]"
- API: a table of Method | Request | Response | Errors
- ROAD: a table of Milestone | Objective | Date
- RISK: a table of Risk | Impact | Mitigation
- DONE: checklists for machine and human verification

Keep it under 800 lines. Output the complete PRD in Markdown.`
}

func generateUserPrompt(projectName, repo string, rc repoContext) string {
	return fmt.Sprintf(`Project: %s
Repository: %s

Repository Contents:
%s

Generate a complete PRD for this project from the repository analysis.
Include all %d sections with content derived from the codebase.`,
		projectName, repo, rc, len(domain.RequiredSections))
}

const changeSummarySystemPrompt = "Summarize the key changes between two PRD versions in 1-2 sentences."

func changeSummaryUserPrompt(oldContent, newContent string) string {
	return fmt.Sprintf(`Old PRD:
%s...

New PRD:
%s...

Summarize the changes.`, truncate(oldContent, summaryBodyLimit), truncate(newContent, summaryBodyLimit))
}

func conflictSystemPrompt(format string) string {
	return `You check a PRD against the current repository state and report inconsistencies.

For each conflict, output one line in exactly this format:
` + format + `

Types: stale_reference, missing_feature, orphaned_requirement, missed_deadline, version_mismatch, metric_drift, dependency_change, other
Severity: low, medium, high, critical
Section: ` + strings.Join(domain.RequiredSections, ", ") + `

Only output conflicts, one per line. If there are none, output: ` + noConflictsSentinel
}

func conflictUserPrompt(content string, rc repoContext) string {
	return fmt.Sprintf(`PRD Content:
%s

---

Repository Context:
%s

Analyze and identify all conflicts.`, content, rc)
}

// derivedDocument is one fetched derived body used for drift detection.
type derivedDocument struct {
	docType domain.DocumentType
	path    string
	content string
}

func driftSystemPrompt(labels []string, format string) string {
	return `You compare project documents and report inconsistencies between them.

For each inconsistency, output one line in exactly this format:
` + format + `

Source/Target: ` + strings.Join(labels, ", ") + `
Severity: low, medium, high, critical
Section: Features, API, Version, Structure, Other

Only output drift issues, one per line. If the documents are consistent, output: ` + noDriftSentinel
}

func driftUserPrompt(canonicalPath, canonical string, derived []derivedDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n%s\n", canonicalPath, truncate(canonical, driftBodyLimit))
	for _, d := range derived {
		fmt.Fprintf(&b, "\n---\n\n%s:\n%s\n", d.path, truncate(d.content, driftBodyLimit))
	}
	b.WriteString("\nAnalyze for inconsistencies between documents.")
	return b.String()
}

func summarySyncSystemPrompt() string {
	return `You keep a README aligned with the project's PRD.
Update the README so it agrees with the PRD while preserving its structure and tone.

Rules:
1. Keep the existing README format and tone
2. Update the features section to reflect the MVP user stories
3. Update the API section if it differs from the PRD API
4. Leave installation, quick start and every other section unchanged
5. Output the complete updated README

Do NOT change the project name or title, installation instructions,
the quick start guide, or development sections.`
}

func planSyncSystemPrompt() string {
	return `You keep an implementation plan aligned with the project's PRD.
Update the plan so deliverable status matches the PRD ROAD milestones.

Rules:
1. Keep the plan's table structure (# | Deliverable | Owner | Deadline | Dep | Risk | Status)
2. Update the Status column to match the PRD ROAD completion status
3. Add deliverables from the PRD ROAD that are missing from the plan
4. Mark completed items as DONE
5. Leave automation rules and other sections unchanged
6. Output the complete updated plan`
}

func derivedSyncUserPrompt(docType domain.DocumentType, path, current, canonical string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current %s:\n%s\n\n---\n\n", path, current)
	for _, name := range domain.SectionsFor(docType) {
		fmt.Fprintf(&b, "PRD %s section (source of truth):\n%s\n\n", name, domain.ExtractSection(canonical, name))
	}
	fmt.Fprintf(&b, "Update the document to align with the PRD. Output the complete updated %s.", path)
	return b.String()
}

func storySystemPrompt(format string) string {
	return `Extract user stories from the MVP section as structured items.
Output each item as: ` + format + `
Priority: P0, P1, P2, P3
Only output stories, one per line.`
}

func storyUserPrompt(mvp string) string {
	return fmt.Sprintf(`MVP Section:
%s

Extract all user stories as structured items.`, mvp)
}

const changelogSystemPrompt = `Generate a concise changelog entry comparing two PRD versions.
Format as Markdown with categories: Added, Changed, Removed, Fixed.
Keep entries brief and actionable.`

func changelogUserPrompt(previous, current *domain.DocumentVersion) string {
	return fmt.Sprintf(`Previous PRD (v%s):
%s...

Current PRD (v%s):
%s...

Generate changelog entry.`,
		previous.Version, truncate(previous.Content, changelogBodyLimit),
		current.Version, truncate(current.Content, changelogBodyLimit))
}
