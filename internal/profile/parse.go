package profile

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Document is a parsed profile: plain directives and inline blocks.
type Document struct {
	Directives   map[string][]string
	InlineBlocks map[string]string
}

// Remote returns the host and port of the first remote directive.
func (d *Document) Remote() (string, int, bool) {
	entries := d.Directives["remote"]
	if len(entries) == 0 {
		return "", 0, false
	}
	fields := strings.Fields(entries[0])
	if len(fields) == 0 {
		return "", 0, false
	}
	port := DefaultPort
	if len(fields) > 1 {
		parsed, err := strconv.Atoi(fields[1])
		if err != nil {
			return fields[0], 0, false
		}
		port = parsed
	}
	return fields[0], port, true
}

// Parse reads a profile document. Block contents are the exact lines between the tags joined by '\n'.
func Parse(raw []byte) (*Document, error) {
	directives := make(map[string][]string)
	inlineBlocks := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	scanner.Buffer(make([]byte, 1024), 1024*1024)

	lineNum := 0
	activeBlock := ""
	blockLines := make([]string, 0)

	for scanner.Scan() {
		lineNum++
		rawLine := scanner.Text()
		line := strings.TrimSpace(rawLine)

		if activeBlock != "" {
			if strings.EqualFold(line, "</"+activeBlock+">") {
				inlineBlocks[activeBlock] = strings.Join(blockLines, "\n")
				activeBlock = ""
				blockLines = blockLines[:0]
				continue
			}
			blockLines = append(blockLines, rawLine)
			continue
		}

		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "</") {
			return nil, fmt.Errorf("line %d: unexpected closing block", lineNum)
		}
		if strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">") {
			blockName := strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			if blockName == "" || strings.Contains(blockName, " ") {
				return nil, fmt.Errorf("line %d: invalid inline block name", lineNum)
			}
			activeBlock = blockName
			blockLines = blockLines[:0]
			continue
		}

		fields := strings.Fields(line)
		key := strings.ToLower(fields[0])
		value := ""
		if len(fields) > 1 {
			value = strings.TrimSpace(line[len(fields[0]):])
		}
		directives[key] = append(directives[key], value)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if activeBlock != "" {
		return nil, fmt.Errorf("unclosed inline block <%s>", activeBlock)
	}
	if _, ok := directives["client"]; !ok {
		return nil, fmt.Errorf("'client' directive is required")
	}
	return &Document{
		Directives:   directives,
		InlineBlocks: inlineBlocks,
	}, nil
}
