package formula

import "github.com/shopspring/decimal"

type node interface{}

type numberNode struct {
	val decimal.Decimal
}

type stringNode struct {
	val string
}

// cellNode is a single reference like A1, already 0-based.
type cellNode struct {
	row, col int
}

// rangeNode is a rectangular reference like A1:B5, already 0-based and
// normalized so startRow <= endRow and startCol <= endCol.
type rangeNode struct {
	startRow, startCol int
	endRow, endCol     int
}

type callNode struct {
	name string
	args []node
}

type unaryNode struct {
	op      string
	operand node
}

type binaryNode struct {
	op    string
	left  node
	right node
}
