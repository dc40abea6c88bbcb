package status

import "strings"

const (
	clientListTag = "CLIENT_LIST"
	tableHeader   = "Common Name,Real Address"
)

// sectionPrefixes start a new named section in the tabular dialect.
var sectionPrefixes = []string{"ROUTING TABLE", "GLOBAL STATS", "END", "OpenVPN CLIENT LIST", "HEADER,"}

// clientListStrategy reads "CLIENT_LIST,<cn>,<addr:port>,<rx>,<tx>,...,<since>" lines.
type clientListStrategy struct{}

func (clientListStrategy) Name() string { return "client-list" }

func (clientListStrategy) Parse(snapshot Snapshot) Match {
	var m Match
	for i, line := range snapshot.complete() {
		if !strings.HasPrefix(line, clientListTag+",") {
			continue
		}
		m.Found = true
		fields := strings.Split(line, ",")
		if len(fields) < 5 {
			m.Skipped = append(m.Skipped, i+1)
			continue
		}
		// Connected-since sits in the 8th column; some server versions shift it one to the right.
		since := field(fields, 7)
		if since == "" {
			since = field(fields, 8)
		}
		record, err := newRecord(fields[1], fields[2], fields[3], fields[4], since)
		if err != nil {
			m.Skipped = append(m.Skipped, i+1)
			continue
		}
		m.Records = append(m.Records, record)
	}
	return m
}

// tableStrategy reads the client table that follows the "Common Name,Real Address,..." header.
// A line cut off by a concurrent write ends the table rather than being read as a row.
type tableStrategy struct{}

func (tableStrategy) Name() string { return "table" }

func (tableStrategy) Parse(snapshot Snapshot) Match {
	lines := snapshot.complete()
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(line, tableHeader) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return Match{}
	}
	m := Match{Found: true}
	for i := start; i < len(lines); i++ {
		line := lines[i]
		if endsTable(line) {
			break
		}
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			m.Skipped = append(m.Skipped, i+1)
			continue
		}
		record, err := newRecord(fields[0], fields[1], fields[2], fields[3], field(fields, 4))
		if err != nil {
			m.Skipped = append(m.Skipped, i+1)
			continue
		}
		m.Records = append(m.Records, record)
	}
	return m
}

func endsTable(line string) bool {
	if strings.TrimSpace(line) == "" || !strings.Contains(line, ",") {
		return true
	}
	for _, prefix := range sectionPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func field(fields []string, idx int) string {
	if idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}
