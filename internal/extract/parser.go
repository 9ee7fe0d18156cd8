package extract

import "strings"

// Parser turns a characteristics cell into name/value pairs. Parse reports
// false when the cell is not in the parser's format.
type Parser interface {
	Name() string
	Parse(lines []string, raw string) (map[string]string, bool)
}

// Chain tries parsers in order; the first success wins.
type Chain []Parser

// DefaultChain is the line-oriented format followed by the underscore format.
func DefaultChain() Chain {
	return Chain{lineParser{}, underscoreParser{}}
}

// Parse returns the first successful parse and the name of the parser that
// produced it. Exhaustion yields an empty map and an empty name.
func (c Chain) Parse(lines []string, raw string) (map[string]string, string) {
	for _, p := range c {
		if out, ok := p.Parse(lines, raw); ok {
			return out, p.Name()
		}
	}
	return map[string]string{}, ""
}

// lineParser reads one "key: value" pair per text line, e.g.
//
//	tissue: liver
//	age: 30
type lineParser struct{}

func (lineParser) Name() string { return "lines" }

func (lineParser) Parse(lines []string, _ string) (map[string]string, bool) {
	out := make(map[string]string, len(lines))
	for _, line := range lines {
		parts := strings.Split(line, ": ")
		if len(parts) != 2 {
			return nil, false
		}
		if _, dup := out[parts[0]]; !dup {
			out[parts[0]] = parts[1]
		}
	}
	return out, true
}

// underscoreParser reads "key:value" tokens joined by underscores, e.g.
// "age:30_sex:F".
type underscoreParser struct{}

func (underscoreParser) Name() string { return "underscore" }

func (underscoreParser) Parse(_ []string, raw string) (map[string]string, bool) {
	tokens := strings.Split(strings.TrimSpace(raw), "_")
	out := make(map[string]string, len(tokens))
	for _, token := range tokens {
		parts := strings.Split(token, ":")
		if len(parts) != 2 {
			return nil, false
		}
		key := strings.TrimSpace(parts[0])
		if _, dup := out[key]; !dup {
			out[key] = strings.TrimSpace(parts[1])
		}
	}
	return out, true
}
