package bot

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"provisioner/internal/provision"
	"provisioner/internal/storage"
	"provisioner/internal/tarefa"
)

func formatResult(verb, title string, res *provision.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "task #%s %s in %s: %s\n", res.TaskID, verb, res.Period, strings.TrimSpace(title))
	writeSlots(&sb, res.Records)
	if len(res.Removed) > 0 {
		moved := make([]string, 0, len(res.Removed))
		for _, p := range res.Removed {
			moved = append(moved, p.String())
		}
		fmt.Fprintf(&sb, "moved out of %s\n", strings.Join(moved, ", "))
	}
	if res.Attempts > 1 {
		fmt.Fprintf(&sb, "(saved after %d attempts)\n", res.Attempts)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatPlan(title string, res *provision.Result) string {
	var sb strings.Builder
	sb.WriteString("plan")
	if t := strings.TrimSpace(title); t != "" {
		sb.WriteString(" for " + t)
	}
	fmt.Fprintf(&sb, " (deadline %s, %s), not saved\n", tarefa.FormatDate(res.Plan.Deadline), res.Period)
	writeSlots(&sb, res.Records)
	return strings.TrimRight(sb.String(), "\n")
}

func writeSlots(sb *strings.Builder, recs []tarefa.Record) {
	for _, r := range recs {
		fmt.Fprintf(sb, "  %-7s %s\n", r.Kind.Label(), tarefa.FormatDate(r.DeliveryDate))
	}
}

func formatTask(t *provision.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "task #%s: %s\n", t.ID, t.Title)
	if t.Description != "" {
		fmt.Fprintf(&sb, "%s\n", t.Description)
	}
	fmt.Fprintf(&sb, "registered %s, deadline %s\n", tarefa.FormatDate(t.RegisteredOn), tarefa.FormatDate(t.Deadline))
	for _, r := range t.Records {
		fmt.Fprintf(&sb, "  %-7s %s %s\n", r.Kind.Label(), tarefa.FormatDate(r.DeliveryDate), statusOf(r))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func statusOf(r tarefa.Record) string {
	if r.Status == "" {
		return string(tarefa.StatusPending)
	}
	return string(r.Status)
}

func formatRecords(p tarefa.Period, recs []tarefa.Record) string {
	if len(recs) == 0 {
		return "no records in " + p.String()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d subtasks\n", p, len(recs))
	for _, r := range recs {
		fmt.Fprintf(&sb, "%s #%s %-7s %s\n", tarefa.FormatDate(r.DeliveryDate), r.TaskID, r.Kind.Label(), r.TaskTitle)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatAudit(entries []storage.AuditEntry) string {
	if len(entries) == 0 {
		return "log is empty"
	}
	var sb strings.Builder
	for _, e := range entries {
		mark := "ok"
		if !e.OK {
			mark = "FAILED"
		}
		fmt.Fprintf(&sb, "%s %s %s", humanize.Time(e.At), e.Action, mark)
		if e.TaskID != "" {
			fmt.Fprintf(&sb, " #%s", e.TaskID)
		}
		if e.Actor != "" {
			fmt.Fprintf(&sb, " by %s", e.Actor)
		}
		if e.Detail != "" {
			fmt.Fprintf(&sb, "\n  %s", e.Detail)
		}
		if e.Error != "" {
			fmt.Fprintf(&sb, "\n  %s", e.Error)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
