package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes {{.VAR_NAME}} placeholders in configuration bytes
// with environment values. The template syntax keeps literal $ intact, which
// matters for regex patterns and passwords embedded in YAML.
//
// Unset variables render as empty strings; required-field validation decides
// whether an empty value is acceptable. Malformed templates and execution
// failures leave the input untouched so the YAML decoder reports the problem
// on the original content.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("env").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, environMap(os.Environ())); err != nil {
		return data
	}
	return buf.Bytes()
}

// environMap converts KEY=VALUE pairs into a lookup table. Only the first =
// delimits; values may carry = themselves.
func environMap(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		if key, value, ok := strings.Cut(pair, "="); ok && key != "" {
			out[key] = value
		}
	}
	return out
}
