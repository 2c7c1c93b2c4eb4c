package procrun

import "bytes"

// SplitLines is a bufio.SplitFunc that treats both \n and \r as line
// terminators. Progress bars rewrite the current line with a bare \r, so
// newline-only splitting would hold those updates until process exit.
func SplitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		token = data[:i]
		advance = i + 1
		// Swallow the \n of a \r\n pair.
		if data[i] == '\r' && advance < len(data) && data[advance] == '\n' {
			advance++
		}
		return advance, token, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
