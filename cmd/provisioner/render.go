package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"provisioner/internal/calendar"
	"provisioner/internal/provision"
	"provisioner/internal/storage"
	"provisioner/internal/tarefa"
)

var nowIn = func(loc *time.Location) time.Time { return time.Now().In(loc) }

func kindColor(k tarefa.Kind) func(string, ...any) string {
	switch k {
	case tarefa.KindText:
		return color.CyanString
	case tarefa.KindLayout:
		return color.MagentaString
	default:
		return color.YellowString
	}
}

func writeSlots(w io.Writer, recs []tarefa.Record) {
	for _, r := range recs {
		fmt.Fprintf(w, "  %s %s\n", kindColor(r.Kind)("%-7s", r.Kind.Label()), tarefa.FormatDate(r.DeliveryDate))
	}
}

func printResult(w io.Writer, verb, title string, res *provision.Result) {
	fmt.Fprintf(w, "%s task #%s %s in %s: %s\n", color.GreenString("✓"), res.TaskID, verb, res.Period, strings.TrimSpace(title))
	writeSlots(w, res.Records)
	for _, p := range res.Removed {
		fmt.Fprintf(w, "  %s\n", color.HiBlackString("removed from %s", p))
	}
	if res.Attempts > 1 {
		fmt.Fprintf(w, "  %s\n", color.HiBlackString("saved after %d attempts", res.Attempts))
	}
}

func printPlan(w io.Writer, title string, res *provision.Result) {
	head := "plan"
	if t := strings.TrimSpace(title); t != "" {
		head += " for " + t
	}
	fmt.Fprintf(w, "%s (deadline %s, %s) %s\n", head, tarefa.FormatDate(res.Plan.Deadline), res.Period, color.HiBlackString("not saved"))
	writeSlots(w, res.Records)
}

func printTask(w io.Writer, t *provision.Task) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.Bold).Sprintf("#%s", t.ID), t.Title)
	if t.Description != "" {
		fmt.Fprintln(w, t.Description)
	}
	fmt.Fprintf(w, "registered %s, deadline %s\n", tarefa.FormatDate(t.RegisteredOn), tarefa.FormatDate(t.Deadline))
	for _, r := range t.Records {
		status := string(r.Status)
		if status == "" {
			status = string(tarefa.StatusPending)
		}
		fmt.Fprintf(w, "  %s %s %s\n", kindColor(r.Kind)("%-7s", r.Kind.Label()), tarefa.FormatDate(r.DeliveryDate), status)
	}
}

func printRecords(w io.Writer, p tarefa.Period, recs []tarefa.Record) {
	if len(recs) == 0 {
		fmt.Fprintf(w, "no records in %s\n", p)
		return
	}
	fmt.Fprintf(w, "%s: %d subtasks\n", color.New(color.Bold).Sprint(p.String()), len(recs))
	for _, r := range recs {
		fmt.Fprintf(w, "%s %-5s %s %s\n",
			tarefa.FormatDate(r.DeliveryDate),
			"#"+string(r.TaskID),
			kindColor(r.Kind)("%-7s", r.Kind.Label()),
			r.TaskTitle,
		)
	}
}

func printHolidays(w io.Writer, hs []calendar.Holiday) {
	for _, h := range hs {
		fmt.Fprintf(w, "%s %s %s\n", tarefa.FormatDate(h.Date), color.HiBlackString("%-3s", h.Date.Weekday().String()[:3]), h.Name)
	}
}

func printAudit(w io.Writer, entries []storage.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "log is empty")
		return
	}
	for _, e := range entries {
		mark := color.GreenString("✓")
		if !e.OK {
			mark = color.RedString("✗")
		}
		fmt.Fprintf(w, "%s %s %s", mark, color.HiBlackString(e.At.Format("2006-01-02 15:04")), e.Action)
		if e.TaskID != "" {
			fmt.Fprintf(w, " #%s", e.TaskID)
		}
		if e.Actor != "" {
			fmt.Fprintf(w, " by %s", e.Actor)
		}
		fmt.Fprintf(w, " %s\n", color.HiBlackString("(%s)", humanize.Time(e.At)))
		if e.Detail != "" {
			fmt.Fprintf(w, "    %s\n", e.Detail)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "    %s\n", color.RedString(e.Error))
		}
	}
}
