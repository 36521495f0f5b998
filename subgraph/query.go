package subgraph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// PageSize is the number of records requested per page in both passes.
const PageSize = 1000

type Shape int

const (
	// ShapeIDs requests identifiers only, it is used by the counting pass.
	ShapeIDs Shape = iota
	// ShapeFull requests every stored attribute and the nested events.
	ShapeFull
)

func (s Shape) String() string {
	if s == ShapeIDs {
		return "ids"
	}
	return "full"
}

// Query is one page request against a collection.
type Query struct {
	Collection string
	Shape      Shape
	Cursor     string
	Range      BlockRange
	Text       string
}

const tokenFields = `{
	id
	symbol
	name
}`

var pairFields = `{
	id
	token0 ` + tokenFields + `
	token1 ` + tokenFields + `
}`

var collectionFields = map[string]string{
	Pairs: `
	id
	token0 ` + tokenFields + `
	token1 ` + tokenFields + `
	reserve0
	reserve1
	totalSupply
	reserveETH
	reserveUSD
	trackedReserveETH
	token0Price
	token1Price
	volumeToken0
	volumeToken1
	volumeUSD
	untrackedVolumeUSD
	txCount
	createdAtTimestamp
	createdAtBlockNumber
	liquidityProviderCount`,

	Transactions: `
	id
	blockNumber
	timestamp
	mints {
		id
		timestamp
		pair ` + pairFields + `
		to
		liquidity
		sender
		amount0
		amount1
		logIndex
		amountUSD
		feeTo
		feeLiquidity
	}
	burns {
		id
		timestamp
		pair ` + pairFields + `
		liquidity
		to
		sender
		amount0
		amount1
		logIndex
		amountUSD
		feeTo
		feeLiquidity
		needsComplete
	}
	swaps {
		id
		timestamp
		pair ` + pairFields + `
		to
		sender
		amount0In
		amount1In
		amount0Out
		amount1Out
		logIndex
		amountUSD
	}`,
}

// BlockField is the attribute the block range of a collection applies to.
var BlockField = map[string]string{
	Pairs:        "createdAtBlockNumber",
	Transactions: "blockNumber",
}

// Builder turns a cursor and a block range into a subgraph query.
type Builder struct {
	PageSize int
}

func NewBuilder() *Builder {
	return &Builder{PageSize: PageSize}
}

func (b *Builder) Build(collection string, shape Shape, cursor string, blocks BlockRange) (Query, error) {
	blockField, ok := BlockField[collection]
	if !ok {
		return Query{}, errors.Errorf("unknown collection %q", collection)
	}

	fields := "\n\tid"
	if shape == ShapeFull {
		fields = collectionFields[collection]
	}

	// JSON string escaping is valid GraphQL string syntax
	quotedCursor, err := json.Marshal(cursor)
	if err != nil {
		return Query{}, errors.Wrap(err, "cursor")
	}

	pageSize := b.PageSize
	if pageSize <= 0 {
		pageSize = PageSize
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "{\n%s(\n", collection)
	fmt.Fprintf(&sb, "\tfirst: %d,\n\torderBy: id,\n\torderDirection: asc,\n", pageSize)
	fmt.Fprintf(&sb, "\twhere: {\n\t\tid_gt: %s,\n", quotedCursor)
	fmt.Fprintf(&sb, "\t\t%s_gte: %d,\n\t\t%s_lte: %d\n\t}\n", blockField, blocks.From, blockField, blocks.To)
	fmt.Fprintf(&sb, ") {%s\n}\n}\n", fields)

	text := sb.String()
	if _, err := ParseQuery(text); err != nil {
		return Query{}, errors.Wrapf(err, "building %s query", collection)
	}

	return Query{
		Collection: collection,
		Shape:      shape,
		Cursor:     cursor,
		Range:      blocks,
		Text:       text,
	}, nil
}

// ParseQuery parses a query document and returns its single top level field.
func ParseQuery(text string) (*ast.Field, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "query", Input: text})
	if err != nil {
		return nil, errors.Wrap(err, "invalid query")
	}
	if len(doc.Operations) != 1 || len(doc.Operations[0].SelectionSet) != 1 {
		return nil, errors.New("query must select exactly one collection")
	}

	field, ok := doc.Operations[0].SelectionSet[0].(*ast.Field)
	if !ok {
		return nil, errors.New("query must select a field")
	}
	return field, nil
}
