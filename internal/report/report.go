// Package report renders a thinking session as Markdown for humans.
package report

import (
	"fmt"
	"strings"

	"github.com/kokistudios/ultrathink/internal/thinking"
)

// Markdown renders the full session: thoughts in order, the branch index,
// the assumption ledger and any cross-session findings.
func Markdown(id string, s *thinking.Session) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Session %s\n\n", id))
	b.WriteString(fmt.Sprintf("%d thought(s), %d branch(es), %d assumption(s)\n\n",
		s.Log.Count(), len(s.Log.BranchIDs()), s.Assumptions.Len()))

	b.WriteString("## Thoughts\n\n")
	if s.Log.Count() == 0 {
		b.WriteString("_No thoughts recorded._\n\n")
	}
	for _, t := range s.Log.Thoughts() {
		writeThought(&b, t)
	}

	if ids := s.Log.BranchIDs(); len(ids) > 0 {
		b.WriteString("## Branches\n\n")
		for _, bid := range ids {
			var nums []int
			for _, t := range s.Log.Branch(bid) {
				nums = append(nums, t.ThoughtNumber)
			}
			b.WriteString(fmt.Sprintf("- **%s**: thoughts %s\n", bid, joinInts(nums)))
		}
		b.WriteString("\n")
	}

	if s.Assumptions.Len() > 0 {
		b.WriteString("## Assumptions\n\n")
		b.WriteString("| ID | Assumption | Confidence | Critical | Status |\n")
		b.WriteString("|----|------------|------------|----------|--------|\n")
		for _, a := range s.Assumptions.All() {
			b.WriteString(fmt.Sprintf("| %s | %s | %.2f | %s | %s |\n",
				a.ID, escapeCell(a.Text), a.Confidence, yesNo(a.Critical), statusLabel(a)))
		}
		b.WriteString("\n")
		if risky := s.Assumptions.RiskyIDs(); len(risky) > 0 {
			b.WriteString(fmt.Sprintf("**Risky:** %s\n\n", strings.Join(risky, ", ")))
		}
		if falsified := s.Assumptions.FalsifiedIDs(); len(falsified) > 0 {
			b.WriteString(fmt.Sprintf("**Falsified:** %s\n\n", strings.Join(falsified, ", ")))
		}
	}

	if refs := s.UnresolvedRefs(); len(refs) > 0 {
		b.WriteString("## Unresolved references\n\n")
		for _, r := range refs {
			b.WriteString(fmt.Sprintf("- `%s`\n", r))
		}
		b.WriteString("\n")
	}
	if warns := s.Warnings(); len(warns) > 0 {
		b.WriteString("## Cross-session warnings\n\n")
		for _, w := range warns {
			b.WriteString(fmt.Sprintf("- %s\n", w))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeThought(b *strings.Builder, t thinking.Thought) {
	b.WriteString(fmt.Sprintf("### Thought %d/%d", t.ThoughtNumber, t.TotalThoughts))
	if t.RevisesThought != nil {
		b.WriteString(fmt.Sprintf(" (revises %d)", *t.RevisesThought))
	}
	if t.IsBranch() {
		b.WriteString(fmt.Sprintf(" (branch %s from %d)", *t.BranchID, *t.BranchFromThought))
	}
	if t.IsFinal() {
		b.WriteString(" (final)")
	}
	b.WriteString("\n\n")
	b.WriteString(t.Thought)
	b.WriteString("\n\n")

	if t.Confidence != nil {
		b.WriteString(fmt.Sprintf("- **Confidence:** %.2f\n", *t.Confidence))
	}
	if t.UncertaintyNotes != nil {
		b.WriteString(fmt.Sprintf("- **Uncertainty:** %s\n", *t.UncertaintyNotes))
	}
	if t.Outcome != nil {
		b.WriteString(fmt.Sprintf("- **Outcome:** %s\n", *t.Outcome))
	}
	if len(t.Assumptions) > 0 {
		ids := make([]string, 0, len(t.Assumptions))
		for _, a := range t.Assumptions {
			ids = append(ids, a.ID)
		}
		b.WriteString(fmt.Sprintf("- **Declares:** %s\n", strings.Join(ids, ", ")))
	}
	if len(t.DependsOnAssumptions) > 0 {
		b.WriteString(fmt.Sprintf("- **Depends on:** %s\n", strings.Join(t.DependsOnAssumptions, ", ")))
	}
	if len(t.InvalidatesAssumptions) > 0 {
		b.WriteString(fmt.Sprintf("- **Invalidates:** %s\n", strings.Join(t.InvalidatesAssumptions, ", ")))
	}
	b.WriteString("\n")
}

func statusLabel(a thinking.Assumption) string {
	switch {
	case a.IsFalsified():
		return "falsified"
	case a.IsVerified():
		return "verified"
	case a.IsRisky():
		return "risky"
	case a.VerificationStatus != nil:
		return string(*a.VerificationStatus)
	default:
		return "-"
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
