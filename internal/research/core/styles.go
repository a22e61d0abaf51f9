package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// styleRegistry maps style names to their strategy objects. The six styles
// share most of their structure; each strategy only encodes its own name
// inversion, joining and punctuation rules.
var styleRegistry = map[string]citationStyle{
	"apa":     apaStyle{},
	"mla":     mlaStyle{},
	"chicago": chicagoStyle{},
	"harvard": harvardStyle{},
	"ieee":    ieeeStyle{},
	"nature":  natureStyle{},
}

// SupportedStyles lists the citation styles accepted by NewCitationFormatter.
func SupportedStyles() []string {
	return []string{"apa", "mla", "chicago", "harvard", "ieee", "nature"}
}

type personName struct {
	given   []string
	surname string
}

func parseName(raw string) personName {
	parts := strings.Fields(strings.TrimSpace(raw))
	switch len(parts) {
	case 0:
		return personName{}
	case 1:
		return personName{surname: parts[0]}
	}
	// accept pre-inverted "Doe, Jane A." input
	if strings.HasSuffix(parts[0], ",") {
		return personName{surname: strings.TrimSuffix(parts[0], ","), given: parts[1:]}
	}
	return personName{given: parts[:len(parts)-1], surname: parts[len(parts)-1]}
}

func surnameOf(raw string) string {
	return parseName(raw).surname
}

func initialsOf(name personName) []string {
	out := make([]string, 0, len(name.given))
	for _, g := range name.given {
		runes := []rune(g)
		if len(runes) == 0 {
			continue
		}
		out = append(out, string(unicode.ToUpper(runes[0]))+".")
	}
	return out
}

// invertedInitials renders "Jane A. Doe" as "Doe, J. A.". The separator
// joins the initials ("" for Harvard's "J.A.").
func invertedInitials(raw, sep string) string {
	name := parseName(raw)
	initials := initialsOf(name)
	if len(initials) == 0 {
		return name.surname
	}
	return name.surname + ", " + strings.Join(initials, sep)
}

// invertedFull renders "Jane A. Doe" as "Doe, Jane A.".
func invertedFull(raw string) string {
	name := parseName(raw)
	if len(name.given) == 0 {
		return name.surname
	}
	return name.surname + ", " + strings.Join(name.given, " ")
}

// naturalInitials renders "Jane A. Doe" as "J. A. Doe".
func naturalInitials(raw string) string {
	name := parseName(raw)
	initials := initialsOf(name)
	if len(initials) == 0 {
		return name.surname
	}
	return strings.Join(initials, " ") + " " + name.surname
}

func yearOf(rec CitationRecord) string {
	if rec.PublishedAt != nil && !rec.PublishedAt.IsZero() {
		return strconv.Itoa(rec.PublishedAt.Year())
	}
	return "n.d."
}

// inlineLabel names a record in author-based inline forms: first author's
// surname, two surnames joined, or "et al." beyond that. Authorless records
// fall back to a shortened quoted title.
func inlineLabel(rec CitationRecord, pairJoin string) string {
	switch len(rec.Authors) {
	case 0:
		title := rec.Title
		if len(title) > 30 {
			title = strings.TrimSpace(title[:30]) + "..."
		}
		return `"` + title + `"`
	case 1:
		return surnameOf(rec.Authors[0])
	case 2:
		return surnameOf(rec.Authors[0]) + pairJoin + surnameOf(rec.Authors[1])
	default:
		return surnameOf(rec.Authors[0]) + " et al."
	}
}

// joinSegments assembles the non-empty pieces of a bibliography entry.
func joinSegments(segments ...string) string {
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg) != "" {
			out = append(out, seg)
		}
	}
	return strings.Join(out, " ")
}

var superscripts = map[rune]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴',
	'5': '⁵', '6': '⁶', '7': '⁷', '8': '⁸', '9': '⁹',
}

func superscript(n int) string {
	var sb strings.Builder
	for _, digit := range strconv.Itoa(n) {
		sb.WriteRune(superscripts[digit])
	}
	return sb.String()
}

// ---- APA ----

type apaStyle struct{}

func (apaStyle) name() string { return "apa" }

func (apaStyle) inline(refs []inlineRef, page string, _ func() int) string {
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, inlineLabel(ref.record, " & ")+", "+yearOf(ref.record))
	}
	out := strings.Join(parts, "; ")
	if page != "" {
		out += ", p. " + page
	}
	return "(" + out + ")"
}

func (apaStyle) entry(rec CitationRecord, _ int) string {
	authors := apaAuthors(rec.Authors)
	title := rec.Title
	if rec.Type == CitationBook {
		title = "*" + title + "*"
	}

	var container string
	switch {
	case rec.Journal != "":
		container = "*" + rec.Journal + "*"
		if rec.Volume != "" {
			container += ", " + rec.Volume
			if rec.Issue != "" {
				container += "(" + rec.Issue + ")"
			}
		}
		if rec.Pages != "" {
			container += ", " + rec.Pages
		}
		container += "."
	case rec.Publisher != "":
		container = rec.Publisher + "."
	}

	var access string
	if rec.URL != "" {
		if rec.AccessedAt != nil {
			access = fmt.Sprintf("Retrieved %s, from %s", rec.AccessedAt.Format("January 2, 2006"), rec.URL)
		} else {
			access = "Retrieved from " + rec.URL
		}
	}

	head := fmt.Sprintf("(%s). %s.", yearOf(rec), title)
	if authors != "" {
		head = authors + " " + head
	}
	return joinSegments(head, container, access)
}

// apaAuthors inverts every author to "Surname, I. I.", joining the final
// author with an ampersand. Lists longer than seven are truncated with an
// ellipsis before the last author.
func apaAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return invertedInitials(authors[0], " ")
	}
	inverted := make([]string, len(authors))
	for i, a := range authors {
		inverted[i] = invertedInitials(a, " ")
	}
	if len(inverted) > 7 {
		return strings.Join(inverted[:6], ", ") + ", ... " + inverted[len(inverted)-1]
	}
	return strings.Join(inverted[:len(inverted)-1], ", ") + ", & " + inverted[len(inverted)-1]
}

// ---- MLA ----

type mlaStyle struct{}

func (mlaStyle) name() string { return "mla" }

func (mlaStyle) inline(refs []inlineRef, page string, _ func() int) string {
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		label := inlineLabel(ref.record, " and ")
		if page != "" {
			label += " " + page
		}
		parts = append(parts, label)
	}
	return "(" + strings.Join(parts, "; ") + ")"
}

func (mlaStyle) entry(rec CitationRecord, _ int) string {
	authors := mlaAuthors(rec.Authors)

	title := `"` + rec.Title + `."`
	if rec.Type == CitationBook {
		title = "*" + rec.Title + "*."
	}

	var container []string
	if rec.Journal != "" {
		container = append(container, "*"+rec.Journal+"*")
	} else if rec.Publisher != "" {
		container = append(container, rec.Publisher)
	}
	if rec.Volume != "" {
		container = append(container, "vol. "+rec.Volume)
	}
	if rec.Issue != "" {
		container = append(container, "no. "+rec.Issue)
	}
	if rec.PublishedAt != nil {
		container = append(container, strconv.Itoa(rec.PublishedAt.Year()))
	}
	if rec.Pages != "" {
		container = append(container, "pp. "+rec.Pages)
	}
	if rec.URL != "" {
		container = append(container, rec.URL)
	}

	var tail string
	if rec.AccessedAt != nil {
		tail = "Accessed " + rec.AccessedAt.Format("2 Jan. 2006") + "."
	}

	head := title
	if authors != "" {
		head = authors + " " + title
	}
	body := ""
	if len(container) > 0 {
		body = strings.Join(container, ", ") + "."
	}
	return joinSegments(head, body, tail)
}

// mlaAuthors inverts only the first author and switches to "et al." from
// three authors up.
func mlaAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return invertedFull(authors[0]) + "."
	case 2:
		return invertedFull(authors[0]) + ", and " + strings.TrimSpace(authors[1]) + "."
	default:
		return invertedFull(authors[0]) + ", et al."
	}
}

// ---- Chicago ----

type chicagoStyle struct{}

func (chicagoStyle) name() string { return "chicago" }

// Chicago marks the text with an incrementing footnote superscript; one
// footnote is consumed per citation call regardless of how many records it
// covers.
func (chicagoStyle) inline(_ []inlineRef, _ string, nextFootnote func() int) string {
	return superscript(nextFootnote())
}

func (chicagoStyle) entry(rec CitationRecord, _ int) string {
	authors := chicagoAuthors(rec.Authors)

	title := `"` + rec.Title + `."`
	if rec.Type == CitationBook {
		title = "*" + rec.Title + "*."
	}

	var container string
	if rec.Journal != "" {
		container = "*" + rec.Journal + "*"
		if rec.Volume != "" {
			container += " " + rec.Volume
		}
		if rec.Issue != "" {
			container += ", no. " + rec.Issue
		}
		container += " (" + yearOf(rec) + ")"
		if rec.Pages != "" {
			container += ": " + rec.Pages
		}
		container += "."
	} else {
		var parts []string
		if rec.Publisher != "" {
			parts = append(parts, rec.Publisher)
		}
		parts = append(parts, yearOf(rec))
		container = strings.Join(parts, ", ") + "."
	}

	var access string
	if rec.URL != "" {
		access = rec.URL + "."
	}

	head := title
	if authors != "" {
		head = authors + " " + title
	}
	return joinSegments(head, container, access)
}

func chicagoAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return invertedFull(authors[0]) + "."
	case 2:
		return invertedFull(authors[0]) + ", and " + strings.TrimSpace(authors[1]) + "."
	case 3:
		return invertedFull(authors[0]) + ", " + strings.TrimSpace(authors[1]) + ", and " + strings.TrimSpace(authors[2]) + "."
	default:
		return invertedFull(authors[0]) + " et al."
	}
}

// ---- Harvard ----

type harvardStyle struct{}

func (harvardStyle) name() string { return "harvard" }

func (harvardStyle) inline(refs []inlineRef, page string, _ func() int) string {
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, inlineLabel(ref.record, " and ")+" "+yearOf(ref.record))
	}
	out := strings.Join(parts, "; ")
	if page != "" {
		out += ", p. " + page
	}
	return "(" + out + ")"
}

func (harvardStyle) entry(rec CitationRecord, _ int) string {
	authors := harvardAuthors(rec.Authors)

	title := rec.Title + "."
	if rec.Type == CitationBook {
		title = "*" + rec.Title + "*."
	}

	var container string
	switch {
	case rec.Journal != "":
		container = "*" + rec.Journal + "*"
		if rec.Volume != "" {
			container += ", " + rec.Volume
			if rec.Issue != "" {
				container += "(" + rec.Issue + ")"
			}
		}
		if rec.Pages != "" {
			container += ", pp. " + rec.Pages
		}
		container += "."
	case rec.Publisher != "":
		container = rec.Publisher + "."
	}

	var access string
	if rec.URL != "" {
		access = "Available at: " + rec.URL
		if rec.AccessedAt != nil {
			access += " (Accessed: " + rec.AccessedAt.Format("2 January 2006") + ")"
		}
		access += "."
	}

	head := fmt.Sprintf("(%s) %s", yearOf(rec), title)
	if authors != "" {
		head = authors + " " + head
	}
	return joinSegments(head, container, access)
}

// harvardAuthors packs initials without spaces and uses "et al." from four
// authors up.
func harvardAuthors(authors []string) string {
	inverted := make([]string, 0, len(authors))
	for _, a := range authors {
		inverted = append(inverted, invertedInitials(a, ""))
	}
	switch len(inverted) {
	case 0:
		return ""
	case 1:
		return inverted[0]
	case 2:
		return inverted[0] + " and " + inverted[1]
	case 3:
		return inverted[0] + ", " + inverted[1] + " and " + inverted[2]
	default:
		return inverted[0] + " et al."
	}
}

// ---- IEEE ----

type ieeeStyle struct{}

func (ieeeStyle) name() string { return "ieee" }

func (ieeeStyle) inline(refs []inlineRef, _ string, _ func() int) string {
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, "["+strconv.Itoa(ref.index)+"]")
	}
	return strings.Join(parts, ", ")
}

func (ieeeStyle) entry(rec CitationRecord, index int) string {
	authors := ieeeAuthors(rec.Authors)

	title := `"` + rec.Title + `,"`
	var body []string
	if rec.Journal != "" {
		body = append(body, "*"+rec.Journal+"*")
	} else if rec.Publisher != "" {
		body = append(body, rec.Publisher)
	}
	if rec.Volume != "" {
		body = append(body, "vol. "+rec.Volume)
	}
	if rec.Issue != "" {
		body = append(body, "no. "+rec.Issue)
	}
	if rec.Pages != "" {
		body = append(body, "pp. "+rec.Pages)
	}
	body = append(body, yearOf(rec))

	var access string
	if rec.URL != "" {
		access = "[Online]. Available: " + rec.URL
	}

	head := title
	if authors != "" {
		head = authors + ", " + title
	}
	return joinSegments(
		fmt.Sprintf("[%d]", index),
		head,
		strings.Join(body, ", ")+".",
		access,
	)
}

// ieeeAuthors keeps natural initial-first order and truncates long lists.
func ieeeAuthors(authors []string) string {
	natural := make([]string, 0, len(authors))
	for _, a := range authors {
		natural = append(natural, naturalInitials(a))
	}
	switch {
	case len(natural) == 0:
		return ""
	case len(natural) == 1:
		return natural[0]
	case len(natural) > 6:
		return natural[0] + " et al."
	default:
		return strings.Join(natural[:len(natural)-1], ", ") + " and " + natural[len(natural)-1]
	}
}

// ---- Nature ----

type natureStyle struct{}

func (natureStyle) name() string { return "nature" }

func (natureStyle) inline(refs []inlineRef, _ string, _ func() int) string {
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, strconv.Itoa(ref.index))
	}
	return strings.Join(parts, ",")
}

func (natureStyle) entry(rec CitationRecord, index int) string {
	authors := natureAuthors(rec.Authors)

	var container string
	if rec.Journal != "" {
		container = "*" + rec.Journal + "*"
		if rec.Volume != "" {
			container += " " + rec.Volume
		}
		if rec.Pages != "" {
			container += ", " + rec.Pages
		}
	} else if rec.Publisher != "" {
		container = rec.Publisher
	}
	if container != "" {
		container += " (" + yearOf(rec) + ")."
	} else {
		container = "(" + yearOf(rec) + ")."
	}

	var access string
	if rec.URL != "" {
		access = rec.URL
	}

	head := rec.Title + "."
	if authors != "" {
		head = authors + " " + head
	}
	return joinSegments(strconv.Itoa(index)+".", head, container, access)
}

func natureAuthors(authors []string) string {
	inverted := make([]string, 0, len(authors))
	for _, a := range authors {
		inverted = append(inverted, invertedInitials(a, " "))
	}
	switch {
	case len(inverted) == 0:
		return ""
	case len(inverted) == 1:
		return inverted[0]
	case len(inverted) > 5:
		return inverted[0] + " et al."
	default:
		return strings.Join(inverted[:len(inverted)-1], ", ") + " & " + inverted[len(inverted)-1]
	}
}
