// Manifest-merge item for the Pack Applier (spec §4.7 "Manifest merge
// (e.g., package.json): load (or start empty), add-only for dependencies,
// devDependencies, scripts entries that are absent; write back with
// stable key ordering and a trailing newline").
package apply

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"

	"github.com/seanchatmangpt/gitvan/internal/gverr"
)

var mergeSections = []string{"dependencies", "devDependencies", "scripts"}

// MergeManifest merges additions into the JSON object at path, adding
// only keys absent from each of mergeSections, and writes the result back
// with sorted keys and a trailing newline. If path does not exist, it
// starts from an empty object.
func MergeManifest(path string, additions map[string]map[string]string) error {
	doc := map[string]any{}
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return gverr.Wrap(gverr.KindTemplateRenderError, err, "parsing existing manifest %s", path)
		}
	} else if !os.IsNotExist(err) {
		return gverr.Wrap(gverr.KindFileSystemError, err, "reading existing manifest %s", path)
	}

	for _, section := range mergeSections {
		add, ok := additions[section]
		if !ok || len(add) == 0 {
			continue
		}
		existing, _ := doc[section].(map[string]any)
		if existing == nil {
			existing = map[string]any{}
		}
		for k, v := range add {
			if _, present := existing[k]; !present {
				existing[k] = v
			}
		}
		doc[section] = existing
	}

	out, err := marshalStableJSON(doc)
	if err != nil {
		return gverr.Wrap(gverr.KindTemplateRenderError, err, "marshaling merged manifest %s", path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return gverr.Wrap(gverr.KindFileSystemError, err, "writing merged manifest %s", path)
	}
	return os.Rename(tmp, path)
}

// marshalStableJSON encodes doc with sorted object keys at every nesting
// level and a single trailing newline, so repeated merges are
// byte-for-byte stable.
func marshalStableJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeStable(&buf, v, 0); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func encodeStable(buf *bytes.Buffer, v any, indent int) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeIndent(buf, indent+1)
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteString(": ")
			if err := encodeStable(buf, val[k], indent+1); err != nil {
				return err
			}
		}
		if len(keys) > 0 {
			writeIndent(buf, indent)
		}
		buf.WriteByte('}')
		return nil
	default:
		enc, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	}
}

func writeIndent(buf *bytes.Buffer, depth int) {
	buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
}
