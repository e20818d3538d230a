// Package ics renders a single visit as an iCalendar (RFC 5545) object.
package ics

import (
	"bytes"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/evcraddock/visit-scheduler/internal/visit"
)

// ContentType is the MIME type of Export output.
const ContentType = "text/calendar; charset=utf-8"

const (
	prodID      = "-//evcraddock//vsched//EN"
	uidDomain   = "vsched"
	stampLayout = "20060102T150405Z"
	maxLine     = 75
)

// Event is a visit plus the display fields the calendar entry needs.
type Event struct {
	Visit           *visit.Visit
	AgentName       string
	PropertyCode    string
	PropertyAddress string
}

// Filename is the download name for a visit's calendar file.
func Filename(visitID string) string {
	return "visit-" + visitID + ".ics"
}

// Export renders e. The output depends only on e.
func Export(e Event) []byte {
	var buf bytes.Buffer
	_ = Write(&buf, e)
	return buf.Bytes()
}

// Write renders e to w with CRLF line endings and folded long lines.
func Write(w io.Writer, e Event) error {
	v := e.Visit
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + prodID,
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:" + escape(v.ID+"@"+uidDomain),
		"DTSTAMP:" + stamp(v.UpdatedAt),
		"DTSTART:" + stamp(v.StartAt),
		"DTEND:" + stamp(v.EndAt()),
		"SUMMARY:" + escape(summary(e)),
		"DESCRIPTION:" + escape(description(e)),
	}
	if e.PropertyAddress != "" {
		lines = append(lines, "LOCATION:"+escape(e.PropertyAddress))
	}
	lines = append(lines,
		"STATUS:"+status(v.Status),
		"END:VEVENT",
		"END:VCALENDAR",
	)

	for _, l := range lines {
		if _, err := io.WriteString(w, fold(l)); err != nil {
			return err
		}
	}
	return nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(stampLayout)
}

func summary(e Event) string {
	where := e.PropertyAddress
	if where == "" {
		where = e.PropertyCode
	}
	if where == "" {
		return "Property visit with " + e.Visit.ClientName
	}
	return "Property visit: " + where
}

func description(e Event) string {
	v := e.Visit
	var b strings.Builder
	b.WriteString("Client: " + v.ClientName)
	if v.ClientPhone != "" {
		b.WriteString("\nPhone: " + v.ClientPhone)
	}
	if v.ClientEmail != "" {
		b.WriteString("\nEmail: " + v.ClientEmail)
	}
	if e.AgentName != "" {
		b.WriteString("\nAgent: " + e.AgentName)
	}
	if e.PropertyCode != "" {
		b.WriteString("\nProperty: " + e.PropertyCode)
	}
	b.WriteString("\nStatus: " + v.Status.Label())
	if v.Notes != "" {
		b.WriteString("\nNotes: " + v.Notes)
	}
	if v.CancellationReason != "" {
		b.WriteString("\nCancellation reason: " + v.CancellationReason)
	}
	return b.String()
}

func status(s visit.Status) string {
	switch s {
	case visit.Confirmed, visit.Done:
		return "CONFIRMED"
	case visit.Cancelled:
		return "CANCELLED"
	default:
		return "TENTATIVE"
	}
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
)

// escape quotes a TEXT value.
func escape(s string) string {
	return escaper.Replace(s)
}

// fold splits a content line into chunks of at most 75 octets, continuing
// each with CRLF and a space. Multi-byte characters are never split.
func fold(line string) string {
	var b strings.Builder
	limit := maxLine
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLine - 1 // the leading space counts
	}
	b.WriteString(line)
	b.WriteString("\r\n")
	return b.String()
}
