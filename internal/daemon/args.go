package daemon

import "github.com/cccckit/cccc/internal/model"

// Small accessors over the request's loosely-typed args map. JSON decodes
// numbers as float64 and missing keys as absent entries, so every accessor
// tolerates both.

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func argBool(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func argInt(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func argStringSlice(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// argAttachments parses the wire shape a bridge process sends for
// already-stored blobs: [{sha256, filename, mime_type, size}, ...].
func argAttachments(args map[string]any, key string) []model.Attachment {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]model.Attachment, 0, len(raw))
	for _, item := range raw {
		mp, ok := item.(map[string]any)
		if !ok {
			continue
		}
		a := model.Attachment{
			SHA256:   argString(mp, "sha256"),
			Filename: argString(mp, "filename"),
			MIMEType: argString(mp, "mime_type"),
		}
		if a.SHA256 == "" || a.Filename == "" {
			continue
		}
		a.Size = int64(argInt(mp, "size", 0))
		out = append(out, a)
	}
	return out
}

func argStringMap(args map[string]any, key string) map[string]string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, item := range raw {
		if s, ok := item.(string); ok {
			out[k] = s
		}
	}
	return out
}
