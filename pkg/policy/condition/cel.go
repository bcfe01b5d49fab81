package condition

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/cel-go/cel"

	"mercator-hq/luthien/pkg/transaction"
)

// Expression is a condition written in CEL. The expression sees four map
// variables:
//
//	request     {method, url, model, stream, headers, payload}
//	response    {status, streaming, headers, payload}
//	data        the transaction's data map
//	transaction {id, streaming}
//
// Header names are lower-cased. Example:
//
//	request.model.startsWith("gpt-4") && data.principal_id != "anonymous"
type Expression struct {
	source  string
	program cel.Program
}

var celEnv *cel.Env

func init() {
	var err error
	celEnv, err = cel.NewEnv(
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("response", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("transaction", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("condition: create CEL environment: %v", err))
	}
}

// NewExpression compiles a CEL expression. It fails if the expression does
// not type-check to a boolean.
func NewExpression(source string) (*Expression, error) {
	ast, iss := celEnv.Compile(source)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile expression %q: %w", source, iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression %q must return bool, returns %s", source, ast.OutputType())
	}

	program, err := celEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build program for %q: %w", source, err)
	}
	return &Expression{source: source, program: program}, nil
}

// Evaluate runs the expression against tx.
func (e *Expression) Evaluate(tx *transaction.Transaction) (bool, error) {
	vars, err := activation(tx)
	if err != nil {
		return false, err
	}

	out, _, err := e.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", e.source, out.Value())
	}
	return result, nil
}

func (e *Expression) String() string {
	return e.source
}

func activation(tx *transaction.Transaction) (map[string]any, error) {
	request := map[string]any{}
	if r := tx.Request; r != nil {
		request["method"] = r.Method
		request["url"] = r.URL
		request["model"] = r.Model()
		request["stream"] = r.Stream()
		request["headers"] = flattenHeader(r.Header)
		request["payload"] = orEmpty(r.Payload)
	}

	response := map[string]any{}
	if r := tx.Response; r != nil {
		response["status"] = r.StatusCode
		response["streaming"] = tx.IsStreaming()
		response["headers"] = flattenHeader(r.Header)
		if !tx.IsStreaming() {
			// a body that is not a JSON object exposes an empty payload
			payload, _ := r.Payload()
			response["payload"] = orEmpty(payload)
		}
	}

	return map[string]any{
		"request":  request,
		"response": response,
		"data":     orEmpty(tx.Data),
		"transaction": map[string]any{
			"id":        tx.ID,
			"streaming": tx.IsStreaming(),
		},
	}, nil
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
