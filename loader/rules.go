package loader

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bjaus/microapi"
)

// Rule is a boolean expr expression. A rule that evaluates to false, or
// fails to evaluate, rejects the value with Status and Message.
//
// Request rules see path, query, body and header (lower-case names, first
// value). Response rules see status and body.
type Rule struct {
	Expr    string `yaml:"rule"`
	Status  int    `yaml:"status,omitempty"`
	Message string `yaml:"message,omitempty"`
}

type compiledRule struct {
	Rule
	program *vm.Program
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		prg, err := expr.Compile(r.Expr, expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Expr, err)
		}
		out = append(out, compiledRule{Rule: r, program: prg})
	}
	return out, nil
}

// eval runs the rules in order and returns the first that does not hold.
func eval(rules []compiledRule, env map[string]any) (*compiledRule, error) {
	for i := range rules {
		res, err := expr.Run(rules[i].program, env)
		if err != nil {
			return &rules[i], err
		}
		if ok, _ := res.(bool); !ok {
			return &rules[i], nil
		}
	}
	return nil, nil
}

func requestValidator(rules []Rule) (microapi.RequestValidator, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}

	return func(_ context.Context, req *microapi.Request) error {
		env := map[string]any{
			"path":   req.Params,
			"query":  req.Query,
			"body":   req.Body,
			"header": headerEnv(req.Header),
		}
		failed, err := eval(compiled, env)
		if failed == nil {
			return nil
		}
		return failed.problem(err, http.StatusBadRequest)
	}, nil
}

func responseValidator(rules []Rule) (microapi.ResponseValidator, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}

	return func(_ context.Context, resp *microapi.Response) error {
		env := map[string]any{
			"status": resp.Status,
			"body":   resp.Body,
		}
		failed, err := eval(compiled, env)
		if failed == nil {
			return nil
		}
		return failed.problem(err, http.StatusInternalServerError)
	}, nil
}

func (r *compiledRule) problem(cause error, fallback int) *microapi.ProblemDetail {
	status := r.Status
	if status == 0 {
		status = fallback
	}
	detail := r.Message
	if detail == "" {
		detail = "rule failed: " + r.Expr
	}
	if cause != nil {
		detail += " (" + cause.Error() + ")"
	}
	return &microapi.ProblemDetail{
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

func headerEnv(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for key, vals := range h {
		if len(vals) > 0 {
			out[strings.ToLower(key)] = vals[0]
		}
	}
	return out
}
