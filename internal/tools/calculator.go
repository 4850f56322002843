package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/haasonsaas/relay/pkg/models"
)

// calculatorPattern is the closed character set accepted before any parsing
// happens. Anything outside it is rejected without evaluation.
var calculatorPattern = regexp.MustCompile(`^[0-9+\-*/().\s]+$`)

// ErrDivisionByZero is returned for x/0 expressions.
var ErrDivisionByZero = errors.New("division by zero")

// CalculatorTool evaluates basic arithmetic expressions.
type CalculatorTool struct{}

func NewCalculatorTool() *CalculatorTool { return &CalculatorTool{} }

func (t *CalculatorTool) Name() string { return "calculator" }

func (t *CalculatorTool) Description() string {
	return "Evaluate an arithmetic expression using + - * / and parentheses."
}

type calculatorArgs struct {
	Expression string `json:"expression" jsonschema:"required,description=Arithmetic expression over digits + - * / ( ) and whitespace."`
}

func (t *CalculatorTool) Schema() json.RawMessage {
	return reflectSchema[calculatorArgs]()
}

func (t *CalculatorTool) Execute(ctx context.Context, args json.RawMessage, purpose models.Purpose) (any, error) {
	_ = ctx
	_ = purpose
	var input calculatorArgs
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	expr := strings.TrimSpace(input.Expression)
	if expr == "" {
		return nil, errors.New("expression is empty")
	}
	if !calculatorPattern.MatchString(expr) {
		return nil, fmt.Errorf("expression contains disallowed characters: %q", input.Expression)
	}

	value, err := evalExpression(expr)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"expression": input.Expression,
		"value":      value,
	}, nil
}

// evalExpression parses and evaluates with the usual precedence: factors bind
// tighter than terms, parentheses group, unary minus allowed.
func evalExpression(input string) (float64, error) {
	p := &exprParser{input: input}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

func (p *exprParser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			if right == 0 {
				return 0, ErrDivisionByZero
			}
			left /= right
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	c, ok := p.peek()
	if !ok {
		return 0, errors.New("unexpected end of expression")
	}
	switch {
	case c == '-':
		p.pos++
		value, err := p.parseFactor()
		return -value, err
	case c == '+':
		p.pos++
		return p.parseFactor()
	case c == '(':
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		closing, ok := p.peek()
		if !ok || closing != ')' {
			return 0, errors.New("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	default:
		return p.parseNumber()
	}
}

func (p *exprParser) parseNumber() (float64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected a number at position %d", start)
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return value, nil
}
