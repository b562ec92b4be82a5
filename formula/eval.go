package formula

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayCircular and DisplayError are the sentinel strings shown in place of
// a cell value when evaluation fails.
const (
	DisplayCircular = "#CIRCULAR!"
	DisplayError    = "#ERROR!"
)

// maxDepth bounds reference chains so deeply nested formulas cannot exhaust
// the stack even without a reference cycle.
const maxDepth = 64

// Kind classifies an evaluation outcome.
type Kind int

const (
	KindValue Kind = iota
	KindCircularReference
	KindUnknownFunction
	KindParseError
)

// Result is the typed outcome of evaluating one formula.
type Result struct {
	Kind Kind
	Text string
	Err  error
}

// Display renders the result the way a grid cell shows it.
func (r Result) Display() string {
	switch r.Kind {
	case KindCircularReference:
		return DisplayCircular
	case KindValue:
		return r.Text
	default:
		return DisplayError
	}
}

// Resolver supplies raw cell content to the evaluator. Positions are 0-based;
// unwritten cells return two empty strings.
type Resolver func(row, column int) (value string, formula string)

// Evaluator computes formula results against a cell resolver. It is pure and
// never writes cells.
type Evaluator struct {
	resolve Resolver
}

func NewEvaluator(resolve Resolver) *Evaluator {
	return &Evaluator{resolve: resolve}
}

var errCircular = errors.New("circular reference")

type unknownFuncError struct {
	name string
}

func (e unknownFuncError) Error() string {
	return fmt.Sprintf("unknown function %s", e.name)
}

type evalState struct {
	visited map[[2]int]bool
	depth   int
}

// Evaluate computes one formula. The leading "=" is optional.
func (e *Evaluator) Evaluate(input string) Result {
	return e.evaluateFrom(input, &evalState{visited: map[[2]int]bool{}})
}

// EvaluateCell computes the formula stored at a position, guarding against
// the cell referencing itself.
func (e *Evaluator) EvaluateCell(row, column int, input string) Result {
	state := &evalState{visited: map[[2]int]bool{{row, column}: true}}
	return e.evaluateFrom(input, state)
}

func (e *Evaluator) evaluateFrom(input string, state *evalState) Result {
	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "="))
	if body == "" {
		return Result{Kind: KindValue, Text: ""}
	}

	ast, err := parse(body)
	if err != nil {
		return Result{Kind: KindParseError, Err: err}
	}

	val, err := e.eval(ast, state)
	if err != nil {
		return resultFromError(err)
	}
	return Result{Kind: KindValue, Text: val.display()}
}

func resultFromError(err error) Result {
	if errors.Is(err, errCircular) {
		return Result{Kind: KindCircularReference, Err: err}
	}
	var unknown unknownFuncError
	if errors.As(err, &unknown) {
		return Result{Kind: KindUnknownFunction, Err: err}
	}
	return Result{Kind: KindParseError, Err: err}
}

// value is one evaluated operand. Boolean results come from comparisons and
// IF conditions only.
type value struct {
	num  decimal.Decimal
	str  string
	b    bool
	kind byte // 'n' number, 's' string, 'b' boolean
}

func numValue(d decimal.Decimal) value { return value{num: d, kind: 'n'} }
func strValue(s string) value          { return value{str: s, kind: 's'} }
func boolValue(b bool) value           { return value{b: b, kind: 'b'} }

// asNumber applies the lenient coercion rule: anything non-numeric counts
// as zero.
func (v value) asNumber() decimal.Decimal {
	switch v.kind {
	case 'n':
		return v.num
	case 'b':
		if v.b {
			return decimal.NewFromInt(1)
		}
		return decimal.Decimal{}
	default:
		d, err := decimal.NewFromString(strings.TrimSpace(v.str))
		if err != nil {
			return decimal.Decimal{}
		}
		return d
	}
}

func (v value) isNumeric() bool {
	if v.kind == 'n' {
		return true
	}
	if v.kind == 's' {
		_, err := decimal.NewFromString(strings.TrimSpace(v.str))
		return err == nil
	}
	return false
}

func (v value) truthy() bool {
	switch v.kind {
	case 'b':
		return v.b
	case 'n':
		return !v.num.IsZero()
	default:
		return v.str != ""
	}
}

func (v value) display() string {
	switch v.kind {
	case 'n':
		return v.num.String()
	case 'b':
		if v.b {
			return "TRUE"
		}
		return "FALSE"
	default:
		return v.str
	}
}

func (e *Evaluator) eval(n node, state *evalState) (value, error) {
	switch n := n.(type) {

	case numberNode:
		return numValue(n.val), nil

	case stringNode:
		return strValue(n.val), nil

	case cellNode:
		return e.evalCell(n.row, n.col, state)

	case rangeNode:
		return value{}, fmt.Errorf("range used outside a function argument")

	case unaryNode:
		operand, err := e.eval(n.operand, state)
		if err != nil {
			return value{}, err
		}
		if n.op == "-" {
			return numValue(operand.asNumber().Neg()), nil
		}
		return numValue(operand.asNumber()), nil

	case binaryNode:
		return e.evalBinary(n, state)

	case callNode:
		return e.evalCall(n, state)
	}
	return value{}, fmt.Errorf("unhandled expression node %T", n)
}

func (e *Evaluator) evalCell(row, col int, state *evalState) (value, error) {
	pos := [2]int{row, col}
	if state.visited[pos] {
		return value{}, errCircular
	}
	if state.depth >= maxDepth {
		return value{}, errCircular
	}

	rawValue, rawFormula := e.resolve(row, col)

	if strings.HasPrefix(strings.TrimSpace(rawFormula), "=") {
		state.visited[pos] = true
		state.depth++
		defer func() {
			delete(state.visited, pos)
			state.depth--
		}()

		body := strings.TrimPrefix(strings.TrimSpace(rawFormula), "=")
		ast, err := parse(body)
		if err != nil {
			return value{}, err
		}
		return e.eval(ast, state)
	}

	if d, err := decimal.NewFromString(strings.TrimSpace(rawValue)); err == nil {
		return numValue(d), nil
	}
	return strValue(rawValue), nil
}

func (e *Evaluator) evalBinary(n binaryNode, state *evalState) (value, error) {
	left, err := e.eval(n.left, state)
	if err != nil {
		return value{}, err
	}
	right, err := e.eval(n.right, state)
	if err != nil {
		return value{}, err
	}

	switch n.op {
	case "+":
		return numValue(left.asNumber().Add(right.asNumber())), nil
	case "-":
		return numValue(left.asNumber().Sub(right.asNumber())), nil
	case "*":
		return numValue(left.asNumber().Mul(right.asNumber())), nil
	case "/":
		divisor := right.asNumber()
		if divisor.IsZero() {
			return numValue(decimal.Decimal{}), nil
		}
		return numValue(left.asNumber().DivRound(divisor, 10)), nil
	}

	// comparison
	var cmp int
	if left.isNumeric() && right.isNumeric() {
		cmp = left.asNumber().Cmp(right.asNumber())
	} else {
		cmp = strings.Compare(left.display(), right.display())
	}
	switch n.op {
	case "=":
		return boolValue(cmp == 0), nil
	case "<>":
		return boolValue(cmp != 0), nil
	case "<":
		return boolValue(cmp < 0), nil
	case "<=":
		return boolValue(cmp <= 0), nil
	case ">":
		return boolValue(cmp > 0), nil
	case ">=":
		return boolValue(cmp >= 0), nil
	}
	return value{}, fmt.Errorf("unhandled operator %q", n.op)
}

func (e *Evaluator) evalCall(n callNode, state *evalState) (value, error) {
	switch n.name {
	case "SUM", "AVERAGE", "MIN", "MAX", "COUNT":
		flat, err := e.flattenArgs(n.args, state)
		if err != nil {
			return value{}, err
		}
		return aggregate(n.name, flat), nil

	case "IF":
		if len(n.args) != 3 {
			return value{}, fmt.Errorf("IF takes 3 arguments, got %d", len(n.args))
		}
		cond, err := e.eval(n.args[0], state)
		if err != nil {
			return value{}, err
		}
		if cond.truthy() {
			return e.eval(n.args[1], state)
		}
		return e.eval(n.args[2], state)

	case "ROUND":
		if len(n.args) < 1 || len(n.args) > 2 {
			return value{}, fmt.Errorf("ROUND takes 1 or 2 arguments, got %d", len(n.args))
		}
		num, err := e.eval(n.args[0], state)
		if err != nil {
			return value{}, err
		}
		digits := int32(0)
		if len(n.args) == 2 {
			d, err := e.eval(n.args[1], state)
			if err != nil {
				return value{}, err
			}
			digits = int32(d.asNumber().IntPart())
		}
		return numValue(num.asNumber().Round(digits)), nil

	case "ABS":
		if len(n.args) != 1 {
			return value{}, fmt.Errorf("ABS takes 1 argument, got %d", len(n.args))
		}
		num, err := e.eval(n.args[0], state)
		if err != nil {
			return value{}, err
		}
		return numValue(num.asNumber().Abs()), nil

	case "SQRT":
		if len(n.args) != 1 {
			return value{}, fmt.Errorf("SQRT takes 1 argument, got %d", len(n.args))
		}
		num, err := e.eval(n.args[0], state)
		if err != nil {
			return value{}, err
		}
		f, _ := num.asNumber().Float64()
		if f < 0 {
			return numValue(decimal.Decimal{}), nil
		}
		return numValue(decimal.NewFromFloat(math.Sqrt(f))), nil

	case "POWER":
		if len(n.args) != 2 {
			return value{}, fmt.Errorf("POWER takes 2 arguments, got %d", len(n.args))
		}
		base, err := e.eval(n.args[0], state)
		if err != nil {
			return value{}, err
		}
		exp, err := e.eval(n.args[1], state)
		if err != nil {
			return value{}, err
		}
		b, _ := base.asNumber().Float64()
		x, _ := exp.asNumber().Float64()
		return numValue(decimal.NewFromFloat(math.Pow(b, x))), nil
	}

	return value{}, unknownFuncError{name: n.name}
}

// flattenArgs resolves every argument, expanding ranges into their cell
// values in row-major order.
func (e *Evaluator) flattenArgs(args []node, state *evalState) ([]value, error) {
	var flat []value
	for _, arg := range args {
		if r, ok := arg.(rangeNode); ok {
			for row := r.startRow; row <= r.endRow; row++ {
				for col := r.startCol; col <= r.endCol; col++ {
					v, err := e.evalCell(row, col, state)
					if err != nil {
						return nil, err
					}
					flat = append(flat, v)
				}
			}
			continue
		}
		v, err := e.eval(arg, state)
		if err != nil {
			return nil, err
		}
		flat = append(flat, v)
	}
	return flat, nil
}

func aggregate(name string, vals []value) value {
	switch name {
	case "SUM":
		total := decimal.Decimal{}
		for _, v := range vals {
			total = total.Add(v.asNumber())
		}
		return numValue(total)

	case "COUNT":
		count := 0
		for _, v := range vals {
			if v.isNumeric() {
				count++
			}
		}
		return numValue(decimal.NewFromInt(int64(count)))

	case "AVERAGE":
		total := decimal.Decimal{}
		count := 0
		for _, v := range vals {
			if v.isNumeric() {
				total = total.Add(v.asNumber())
				count++
			}
		}
		if count == 0 {
			return numValue(decimal.Decimal{})
		}
		return numValue(total.DivRound(decimal.NewFromInt(int64(count)), 10))

	case "MIN", "MAX":
		var best decimal.Decimal
		found := false
		for _, v := range vals {
			if !v.isNumeric() {
				continue
			}
			n := v.asNumber()
			if !found {
				best = n
				found = true
				continue
			}
			if name == "MIN" && n.LessThan(best) || name == "MAX" && n.GreaterThan(best) {
				best = n
			}
		}
		if !found {
			return numValue(decimal.Decimal{})
		}
		return numValue(best)
	}
	return numValue(decimal.Decimal{})
}
