package kafka

import (
	"encoding/json"
	"fmt"
)

// MustMarshal panics on marshal failure; event payloads are plain structs, so
// a failure here is a programming error.
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal %T: %v", v, err))
	}
	return b
}
