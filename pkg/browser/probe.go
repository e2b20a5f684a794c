package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

const probePrefix = "/*probe:"

// Probe wraps an expression body in a named, self-invoking async function.
// params is marshalled to JSON and bound to the name "params" inside body.
// The name lets logs and test fakes tell probes apart.
func Probe(name, body string, params any) string {
	p := []byte("null")
	if params != nil {
		if b, err := json.Marshal(params); err == nil {
			p = b
		}
	}
	return fmt.Sprintf("%s%s*/(async (params) => {\n%s\n})(%s)", probePrefix, name, body, p)
}

// ProbeName returns the name given to Probe, or "" for other expressions.
func ProbeName(expr string) string {
	if !strings.HasPrefix(expr, probePrefix) {
		return ""
	}
	rest := expr[len(probePrefix):]
	if i := strings.Index(rest, "*/"); i >= 0 {
		return rest[:i]
	}
	return ""
}

// ProbeParams extracts the JSON parameters bound by Probe.
func ProbeParams(expr string, out any) error {
	i := strings.LastIndex(expr, "})(")
	if i < 0 || !strings.HasSuffix(expr, ")") {
		return fmt.Errorf("expression has no probe parameters")
	}
	return json.Unmarshal([]byte(expr[i+3:len(expr)-1]), out)
}
