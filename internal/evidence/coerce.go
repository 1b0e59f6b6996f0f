package evidence

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/resolution-cli/internal/model"
)

// floatValue reads a JSON number or numeric string. ok is false for absent,
// null, non-finite or non-numeric values.
func floatValue(raw json.RawMessage) (float64, bool) {
	if !model.Present(raw) {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		n = json.Number(strings.TrimSpace(s))
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// intValue accepts integral numbers in any spelling: 2, 2.0 and "2".
func intValue(raw json.RawMessage) (int, bool) {
	f, ok := floatValue(raw)
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// boolValue reads a JSON boolean or a string strconv.ParseBool accepts.
func boolValue(raw json.RawMessage) (bool, bool) {
	if !model.Present(raw) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false
	}
	return b, true
}

func intJSON(n int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(n))
}

func floatJSON(f float64) json.RawMessage {
	return json.RawMessage(strconv.FormatFloat(f, 'g', -1, 64))
}

func boolJSON(b bool) json.RawMessage {
	return json.RawMessage(strconv.FormatBool(b))
}
