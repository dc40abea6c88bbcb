// Package status parses the OpenVPN server status file into connected-client records.
//
// Two report dialects are understood: the event-tagged form, where every client is a
// CLIENT_LIST line, and the older tabular form, where clients follow a
// "Common Name,Real Address,..." header. Dialects are tried in a fixed order; the
// tabular form is only consulted when no CLIENT_LIST line is present.
package status

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const bytesPerMiB = 1024 * 1024

// Record describes one connected client.
type Record struct {
	CommonName     string `json:"commonName"`
	RealAddress    string `json:"realAddress"`
	Address        string `json:"address"`
	BytesReceived  int64  `json:"bytesReceived"`
	BytesSent      int64  `json:"bytesSent"`
	ConnectedSince string `json:"connectedSince"`
}

// ReceivedMiB returns BytesReceived in mebibytes.
func (r Record) ReceivedMiB() float64 {
	return float64(r.BytesReceived) / bytesPerMiB
}

// SentMiB returns BytesSent in mebibytes.
func (r Record) SentMiB() float64 {
	return float64(r.BytesSent) / bytesPerMiB
}

// FormatMiB renders a byte count as mebibytes with two decimals, e.g. "1.00 MiB".
func FormatMiB(n int64) string {
	return fmt.Sprintf("%.2f MiB", float64(n)/bytesPerMiB)
}

// Match is what a Strategy found in the input.
type Match struct {
	// Found is true when the input is in the strategy's dialect, even if no line could be read.
	Found   bool
	Records []Record
	// Skipped holds 1-based line numbers of unparseable record lines.
	Skipped []int
}

// Snapshot is one read of the status file split into lines.
type Snapshot struct {
	Lines []string
	// Truncated is set when the read stopped mid-line: the last line has no terminating newline.
	Truncated bool
}

// complete returns the lines that were fully written.
func (s Snapshot) complete() []string {
	if s.Truncated && len(s.Lines) > 0 {
		return s.Lines[:len(s.Lines)-1]
	}
	return s.Lines
}

// Strategy extracts records for one dialect.
type Strategy interface {
	Name() string
	Parse(snapshot Snapshot) Match
}

// Strategies are applied in this order; the event-tagged dialect must come first.
var Strategies = []Strategy{clientListStrategy{}, tableStrategy{}}

// Result is the outcome of a parse, including lines that looked like records but could not be read.
type Result struct {
	Dialect string
	Records []Record
	Skipped []int
}

// Parse returns the connected clients described by text. Unknown or empty input yields an empty slice.
func Parse(text string) []Record {
	return ParseWithSkips(text).Records
}

// ParseWithSkips is Parse that also reports which dialect matched and which lines were skipped.
// The first strategy that recognises its dialect decides the result; later ones are not consulted.
func ParseWithSkips(text string) Result {
	snapshot := newSnapshot(text)
	for _, strategy := range Strategies {
		match := strategy.Parse(snapshot)
		if !match.Found {
			continue
		}
		records := match.Records
		if records == nil {
			records = []Record{}
		}
		return Result{Dialect: strategy.Name(), Records: records, Skipped: match.Skipped}
	}
	return Result{Records: []Record{}}
}

// ReadFile parses a snapshot of the status file at path. A missing file yields no records.
func ReadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Record{}, nil
		}
		return nil, err
	}
	return Parse(string(data)), nil
}

// Summary aggregates a set of records.
type Summary struct {
	Clients       int   `json:"clients"`
	BytesReceived int64 `json:"bytesReceived"`
	BytesSent     int64 `json:"bytesSent"`
}

// Summarize totals records.
func Summarize(records []Record) Summary {
	summary := Summary{Clients: len(records)}
	for _, record := range records {
		summary.BytesReceived += record.BytesReceived
		summary.BytesSent += record.BytesSent
	}
	return summary
}

func newSnapshot(text string) Snapshot {
	if text == "" {
		return Snapshot{}
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return Snapshot{Lines: lines, Truncated: !strings.HasSuffix(text, "\n")}
}

// newRecord builds a record from raw fields, failing if a byte count is not an integer.
func newRecord(commonName, realAddress, received, sent, since string) (Record, error) {
	rx, err := strconv.ParseInt(strings.TrimSpace(received), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("bytes received: %w", err)
	}
	tx, err := strconv.ParseInt(strings.TrimSpace(sent), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("bytes sent: %w", err)
	}
	if rx < 0 || tx < 0 {
		return Record{}, fmt.Errorf("negative byte count")
	}
	realAddress = strings.TrimSpace(realAddress)
	return Record{
		CommonName:     strings.TrimSpace(commonName),
		RealAddress:    realAddress,
		Address:        bareAddress(realAddress),
		BytesReceived:  rx,
		BytesSent:      tx,
		ConnectedSince: strings.TrimSpace(since),
	}, nil
}

// bareAddress drops the port by splitting on the last colon.
func bareAddress(addrPort string) string {
	host := addrPort
	if idx := strings.LastIndex(addrPort, ":"); idx >= 0 {
		host = addrPort[:idx]
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
