package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NormalizeID turns any id representation the server or a store may
// produce into a plain comparable string. Unknown shapes give "".
func NormalizeID(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case primitive.ObjectID:
		if id.IsZero() {
			return ""
		}
		return id.Hex()
	case *primitive.ObjectID:
		if id == nil {
			return ""
		}
		return NormalizeID(*id)
	case json.RawMessage:
		var decoded interface{}
		if err := json.Unmarshal(id, &decoded); err != nil {
			return ""
		}
		return NormalizeID(decoded)
	case map[string]interface{}:
		for _, key := range []string{"$oid", "_id", "id"} {
			if inner, ok := id[key]; ok {
				if s := NormalizeID(inner); s != "" {
					return s
				}
			}
		}
		return ""
	case map[string]string:
		for _, key := range []string{"$oid", "_id", "id"} {
			if s := strings.TrimSpace(id[key]); s != "" {
				return s
			}
		}
		return ""
	case fmt.Stringer:
		return strings.TrimSpace(id.String())
	case float64:
		return fmt.Sprintf("%.0f", id)
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprint(id)
	}
	return ""
}
