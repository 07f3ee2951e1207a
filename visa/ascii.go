package visa

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Separator is the delimiter between values in ASCII array replies
const Separator = ","

var errEmptyReply = errors.New("empty reply")

// ParseASCII parses a reply such as "+1.55E-06,0,3.2" into floats.
// Whitespace around every value is ignored, as is a trailing separator.
func ParseASCII(reply string) ([]float64, error) {
	body := strings.TrimSpace(reply)
	body = strings.TrimSuffix(body, Separator)
	if body == "" {
		return nil, &ParseError{Reply: reply, Err: errEmptyReply}
	}
	pieces := strings.Split(body, Separator)
	out := make([]float64, len(pieces))
	for i, p := range pieces {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, &ParseError{Reply: reply, Err: err}
		}
		out[i] = f
	}
	return out, nil
}

// ParseFloat parses a single-valued reply
func ParseFloat(reply string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, &ParseError{Reply: reply, Err: err}
	}
	return f, nil
}
