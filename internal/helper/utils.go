package helper

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GenerateChunkID derives a stable id from a chunk's origin and text, so re-indexing the same
// file overwrites instead of duplicating
func GenerateChunkID(source string, splitID int, content string) string {
	name := source + "#" + strconv.Itoa(splitID) + "\x00" + content
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// pretty print
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Msg("Error pretty printing")
	}
	fmt.Println(string(b))
}

// CreateFolder creates path and its parents if missing
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}

// FormatValue renders a metadata value as text. Strings are returned verbatim, nested values
// are JSON encoded.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// StringifyMetadata flattens metadata to the string map vector stores accept
func StringifyMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = FormatValue(v)
	}
	return out
}
