package markers

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"whisperdesk/internal/domain"
)

//go:embed default.markers
var defaultMarkers string

// Python's logging.basicConfig format: "2024-01-01 10:00:00,123 [INFO] message".
var logPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:[,.]\d+)?\s+\[[A-Z]+\]\s+`)

type compiledRule interface {
	Match(line string) (domain.Marker, bool)
}

// RuleParser parses one line into a compiled rule.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (compiledRule, error)
}

// Engine classifies pipeline output lines into progress markers.
type Engine struct {
	rules []compiledRule
}

// NewEngine compiles the built-in markers plus an optional user file. User
// rules are checked first.
func NewEngine(path string) (*Engine, error) {
	return NewEngineWithParsers(path, defaultRuleParsers())
}

// NewEngineWithParsers allows parser extension without engine changes.
func NewEngineWithParsers(path string, parsers []RuleParser) (*Engine, error) {
	if len(parsers) == 0 {
		parsers = defaultRuleParsers()
	}

	builtin, err := parseRules(defaultMarkers, parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in markers: %w", err)
	}

	if strings.TrimSpace(path) == "" {
		return &Engine{rules: builtin}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Engine{rules: builtin}, nil
		}
		return nil, fmt.Errorf("failed to read markers file %q: %w", path, err)
	}

	custom, err := parseRules(string(contents), parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse markers file %q: %w", path, err)
	}

	return &Engine{rules: append(custom, builtin...)}, nil
}

// Match returns the first marker matching line.
func (e *Engine) Match(line string) (domain.Marker, bool) {
	message := strings.TrimSpace(logPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
	if message == "" {
		return domain.Marker{}, false
	}
	for _, rule := range e.rules {
		if marker, ok := rule.Match(message); ok {
			return marker, true
		}
	}
	return domain.Marker{}, false
}

func parseRules(contents string, parsers []RuleParser) ([]compiledRule, error) {
	lines := strings.Split(contents, "\n")
	rules := make([]compiledRule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			rule, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			rules = append(rules, rule)
			parsed = true
			break
		}

		if !parsed {
			return nil, fmt.Errorf("line %d: unsupported marker format", index+1)
		}
	}

	return rules, nil
}

func defaultRuleParsers() []RuleParser {
	return []RuleParser{regexRuleParser{}, literalRuleParser{}}
}

type literalRuleParser struct{}

func (literalRuleParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (literalRuleParser) Parse(line string) (compiledRule, error) {
	return parseLiteralRule(line)
}

type regexRuleParser struct{}

func (regexRuleParser) CanParse(line string) bool {
	return looksLikeRegexRule(line)
}

func (regexRuleParser) Parse(line string) (compiledRule, error) {
	return parseRegexRule(line)
}

type literalRule struct {
	needle string
	stage  domain.Stage
}

func parseLiteralRule(line string) (compiledRule, error) {
	parts := strings.SplitN(line, "=>", 2)
	if len(parts) != 2 {
		return nil, errors.New("invalid literal marker")
	}
	needle := strings.TrimSpace(parts[0])
	stage, err := parseStage(parts[1])
	if err != nil {
		return nil, err
	}
	if needle == "" {
		return nil, errors.New("literal marker text cannot be empty")
	}
	return literalRule{needle: strings.ToLower(needle), stage: stage}, nil
}

func (r literalRule) Match(line string) (domain.Marker, bool) {
	if !strings.Contains(strings.ToLower(line), r.needle) {
		return domain.Marker{}, false
	}
	return domain.Marker{Stage: r.stage}, true
}

type regexRule struct {
	re    *regexp.Regexp
	stage domain.Stage
}

func parseRegexRule(line string) (compiledRule, error) {
	if len(line) < 2 {
		return nil, errors.New("invalid regex marker")
	}
	delim := line[1]
	if isAlphaNumericOrSpace(delim) {
		return nil, errors.New("regex delimiter must be non-alphanumeric")
	}

	pattern, pos, err := parseDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	rawStage, pos, err := parseDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex stage: %w", err)
	}
	stage, err := parseStage(rawStage)
	if err != nil {
		return nil, err
	}

	prefixFlags := "i"
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i':
		case 's':
			prefixFlags += "s"
		case ' ':
			continue
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + prefixFlags + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, stage: stage}, nil
}

func (r regexRule) Match(line string) (domain.Marker, bool) {
	groups := r.re.FindStringSubmatch(line)
	if groups == nil {
		return domain.Marker{}, false
	}
	marker := domain.Marker{Stage: r.stage}
	if len(groups) > 1 {
		marker.Detail = strings.TrimSpace(groups[1])
	}
	return marker, true
}

func parseStage(raw string) (domain.Stage, error) {
	stage := strings.ToLower(strings.TrimSpace(raw))
	if stage == "" {
		return "", errors.New("marker stage cannot be empty")
	}
	for _, char := range stage {
		if !(char == '_' || char == '-' || (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9')) {
			return "", fmt.Errorf("invalid marker stage %q", raw)
		}
	}
	return domain.Stage(stage), nil
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		if escaped {
			if char != delim {
				builder.WriteByte('\\')
			}
			builder.WriteByte(char)
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == delim {
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isAlphaNumericOrSpace(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t'
}

func looksLikeRegexRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isAlphaNumericOrSpace(line[1])
}
