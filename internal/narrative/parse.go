package narrative

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// decodeStrictJSON parses v out of text, salvaging the outermost JSON object
// when the model wrapped it in prose or code fences. Anything that still
// fails to parse is an error; free-form text is never accepted as valid.
func decodeStrictJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return eris.New("narrative: empty response")
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return eris.New("narrative: no JSON object in response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return eris.Wrap(err, "narrative: parse response")
	}
	return nil
}
