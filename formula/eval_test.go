package formula_test

import (
	"testing"

	"github.com/dmdcottage/sheets_backend/formula"
)

type gridCell struct {
	value   string
	formula string
}

func resolverFor(cells map[[2]int]gridCell) formula.Resolver {
	return func(row, column int) (string, string) {
		c := cells[[2]int{row, column}]
		return c.value, c.formula
	}
}

func TestSumOverRangeSkipsEmptyCells(t *testing.T) {
	eval := formula.NewEvaluator(resolverFor(map[[2]int]gridCell{
		{0, 0}: {value: "2"},
		{1, 0}: {value: "3"},
	}))

	res := eval.Evaluate("=SUM(A1:A3)")
	if res.Kind != formula.KindValue {
		t.Fatalf("kind = %v, err = %v", res.Kind, res.Err)
	}
	if res.Display() != "5" {
		t.Fatalf("SUM(A1:A3) = %q, want 5", res.Display())
	}
}

func TestArithmeticWithReferences(t *testing.T) {
	eval := formula.NewEvaluator(resolverFor(map[[2]int]gridCell{
		{0, 0}: {value: "10"},
		{0, 1}: {value: "4"},
	}))

	cases := map[string]string{
		"=A1+B1":          "14",
		"=A1-B1*2":        "2",
		"=(A1-B1)*2":      "12",
		"=A1/B1":          "2.5",
		"=-B1":            "-4",
		"=A1+C1":          "10", // unwritten cell coerces to 0
		"=POWER(2,3)":     "8",
		"=ABS(0-7)":       "7",
		"=ROUND(A1/3, 2)": "3.33",
	}
	for input, want := range cases {
		res := eval.Evaluate(input)
		if res.Kind != formula.KindValue || res.Display() != want {
			t.Errorf("%s = %q (kind %v, err %v), want %q", input, res.Display(), res.Kind, res.Err, want)
		}
	}
}

func TestReferencedFormulaIsEvaluated(t *testing.T) {
	eval := formula.NewEvaluator(resolverFor(map[[2]int]gridCell{
		{0, 0}: {value: "2"},
		{0, 1}: {formula: "=A1*10"},
	}))

	res := eval.Evaluate("=B1+1")
	if res.Display() != "21" {
		t.Fatalf("B1+1 = %q, want 21", res.Display())
	}
}

func TestSelfReferenceReportsCircular(t *testing.T) {
	eval := formula.NewEvaluator(resolverFor(map[[2]int]gridCell{
		{0, 0}: {formula: "=A1+1"},
	}))

	res := eval.EvaluateCell(0, 0, "=A1+1")
	if res.Kind != formula.KindCircularReference {
		t.Fatalf("kind = %v, want circular", res.Kind)
	}
	if res.Display() != formula.DisplayCircular {
		t.Fatalf("display = %q, want %q", res.Display(), formula.DisplayCircular)
	}
}

func TestMutualReferenceReportsCircular(t *testing.T) {
	eval := formula.NewEvaluator(resolverFor(map[[2]int]gridCell{
		{0, 0}: {formula: "=B1"},
		{0, 1}: {formula: "=A1"},
	}))

	res := eval.EvaluateCell(0, 0, "=B1")
	if res.Kind != formula.KindCircularReference {
		t.Fatalf("kind = %v, want circular", res.Kind)
	}
}

func TestDiamondReferenceIsNotCircular(t *testing.T) {
	// B1 and C1 both read A1; D1 reads both.
	eval := formula.NewEvaluator(resolverFor(map[[2]int]gridCell{
		{0, 0}: {value: "5"},
		{0, 1}: {formula: "=A1*2"},
		{0, 2}: {formula: "=A1+1"},
	}))

	res := eval.EvaluateCell(0, 3, "=B1+C1")
	if res.Kind != formula.KindValue || res.Display() != "16" {
		t.Fatalf("B1+C1 = %q (kind %v, err %v), want 16", res.Display(), res.Kind, res.Err)
	}
}

func TestUnknownFunction(t *testing.T) {
	eval := formula.NewEvaluator(resolverFor(nil))

	res := eval.Evaluate("=VLOOKUP(A1, B1:B5, 2)")
	if res.Kind != formula.KindUnknownFunction {
		t.Fatalf("kind = %v, want unknown function", res.Kind)
	}
	if res.Display() != formula.DisplayError {
		t.Fatalf("display = %q, want %q", res.Display(), formula.DisplayError)
	}
}

func TestParseErrors(t *testing.T) {
	eval := formula.NewEvaluator(resolverFor(nil))

	for _, input := range []string{"=SUM(A1", "=1+", "=A1:B2+1", "=IF(1,2)", `="unterminated`} {
		res := eval.Evaluate(input)
		if res.Kind != formula.KindParseError {
			t.Errorf("%s: kind = %v, want parse error", input, res.Kind)
		}
		if res.Display() != formula.DisplayError {
			t.Errorf("%s: display = %q, want %q", input, res.Display(), formula.DisplayError)
		}
	}
}

func TestAggregatesFilterNonNumeric(t *testing.T) {
	eval := formula.NewEvaluator(resolverFor(map[[2]int]gridCell{
		{0, 0}: {value: "4"},
		{1, 0}: {value: "Иванов И.И."},
		{2, 0}: {value: "8"},
	}))

	cases := map[string]string{
		"=SUM(A1:A3)":     "12",
		"=COUNT(A1:A3)":   "2",
		"=AVERAGE(A1:A3)": "6",
		"=MIN(A1:A3)":     "4",
		"=MAX(A1:A3)":     "8",
	}
	for input, want := range cases {
		res := eval.Evaluate(input)
		if res.Display() != want {
			t.Errorf("%s = %q, want %q", input, res.Display(), want)
		}
	}
}

func TestIfComparesValues(t *testing.T) {
	eval := formula.NewEvaluator(resolverFor(map[[2]int]gridCell{
		{0, 0}: {value: "5000"},
	}))

	res := eval.Evaluate(`=IF(A1>1000, "предоплата", "нет")`)
	if res.Display() != "предоплата" {
		t.Fatalf("IF = %q, want предоплата", res.Display())
	}

	res = eval.Evaluate(`=IF(A1<=1000, 1, 0)`)
	if res.Display() != "0" {
		t.Fatalf("IF = %q, want 0", res.Display())
	}
}

func TestDivisionByZeroIsZero(t *testing.T) {
	eval := formula.NewEvaluator(resolverFor(nil))

	res := eval.Evaluate("=10/A1")
	if res.Kind != formula.KindValue || res.Display() != "0" {
		t.Fatalf("10/0 = %q (kind %v), want 0", res.Display(), res.Kind)
	}
}
