package lyrics

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type TimedLine struct {
	TimestampMs int64
	Text        string
}

// lrcLine matches "[MM:SS.CC]text"; header tags such as [ar:...] fall through.
var lrcLine = regexp.MustCompile(`^\s*\[(\d{2}):(\d{2})\.(\d{2})\](.*)$`)

const byteOrderMark = "\uFEFF"

// Parse turns an LRC document into lines ordered by timestamp. Lines that
// do not carry a timestamp are skipped. Empty text is kept because it marks
// an instrumental gap.
func Parse(document string) []TimedLine {
	if document == "" {
		return nil
	}

	raw := strings.Split(strings.TrimPrefix(document, byteOrderMark), "\n")
	result := make([]TimedLine, 0, len(raw))

	for _, line := range raw {
		match := lrcLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if match == nil {
			continue
		}

		minutes, _ := strconv.ParseInt(match[1], 10, 64)
		seconds, _ := strconv.ParseInt(match[2], 10, 64)
		centis, _ := strconv.ParseInt(match[3], 10, 64)

		result = append(result, TimedLine{
			TimestampMs: minutes*60_000 + seconds*1_000 + centis*10,
			Text:        strings.TrimSpace(match[4]),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result
}

// Locate returns the index of the last line that has started at positionMs.
func Locate(lines []TimedLine, positionMs int64) (int, bool) {
	idx := sort.Search(len(lines), func(i int) bool {
		return lines[i].TimestampMs > positionMs
	}) - 1

	if idx < 0 {
		return -1, false
	}
	return idx, true
}

// Window returns the text at index together with its neighbours. Missing
// neighbours are empty.
func Window(lines []TimedLine, index int) (current, previous, next string) {
	if index < 0 || index >= len(lines) {
		return "", "", ""
	}

	current = lines[index].Text
	if index > 0 {
		previous = lines[index-1].Text
	}
	if index < len(lines)-1 {
		next = lines[index+1].Text
	}
	return current, previous, next
}
