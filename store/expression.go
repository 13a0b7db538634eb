package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names of a directory row.
const (
	attrOwner     = "owner"
	attrID        = "id"
	attrParent    = "parent"
	attrItems     = "items"
	attrItemIDs   = "itemIds"
	attrAccess    = "access"
	attrVersion   = "version"
	attrUpdatedAt = "updatedAt"
)

// maxItemsPerUpdate bounds the item keys addressed by one AddItems call so
// that its condition expression stays under DynamoDB's 4 KB limit.
const maxItemsPerUpdate = 100

// updateExpr accumulates a hand-written update expression. Item writes
// address map keys and list positions that come from data, which the
// expression builder cannot place behind placeholders, so they are built
// here with generated names.
type updateExpr struct {
	sets    []string
	removes []string
	conds   []string
	names   map[string]string
	values  map[string]types.AttributeValue
}

func newUpdateExpr() *updateExpr {
	return &updateExpr{
		names: map[string]string{
			"#id": attrID,
			"#i":  attrItems,
			"#n":  attrItemIDs,
			"#u":  attrUpdatedAt,
			"#v":  attrVersion,
		},
		values: map[string]types.AttributeValue{},
	}
}

// name registers an attribute name or map key and returns its placeholder.
func (e *updateExpr) name(prefix string, i int, value string) string {
	ph := "#" + prefix + strconv.Itoa(i)
	e.names[ph] = value
	return ph
}

// value registers an attribute value and returns its placeholder.
func (e *updateExpr) value(ph string, av types.AttributeValue) string {
	e.values[ph] = av
	return ph
}

func (e *updateExpr) set(format string, args ...any) {
	e.sets = append(e.sets, fmt.Sprintf(format, args...))
}

func (e *updateExpr) remove(format string, args ...any) {
	e.removes = append(e.removes, fmt.Sprintf(format, args...))
}

func (e *updateExpr) cond(format string, args ...any) {
	e.conds = append(e.conds, fmt.Sprintf(format, args...))
}

// touch stamps updatedAt and, when bump is set, increments the version.
// Rows written before versioning start counting from zero.
func (e *updateExpr) touch(now string, bump bool) {
	e.set("#u = %s", e.value(":u", stringValue(now)))
	if bump {
		e.value(":zero", numberValue(0))
		e.value(":one", numberValue(1))
		e.set("#v = if_not_exists(#v, :zero) + :one")
	}
}

// exists requires the row to exist.
func (e *updateExpr) exists() {
	e.cond("attribute_exists(#id)")
}

// expectVersion requires the row to be at version. Zero requires a row
// written before versioning.
func (e *updateExpr) expectVersion(version int64) {
	if version == 0 {
		e.cond("attribute_not_exists(#v)")
		return
	}
	e.cond("#v = %s", e.value(":ver", numberValue(version)))
}

func (e *updateExpr) update() string {
	var parts []string
	if len(e.sets) > 0 {
		parts = append(parts, "SET "+strings.Join(e.sets, ", "))
	}
	if len(e.removes) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(e.removes, ", "))
	}
	return strings.Join(parts, " ")
}

func (e *updateExpr) condition() string {
	return strings.Join(e.conds, " AND ")
}

// usedNames drops placeholders that do not occur in the built expressions;
// DynamoDB rejects unused names and values.
func (e *updateExpr) usedNames() map[string]string {
	text := e.update() + " " + e.condition()
	out := make(map[string]string, len(e.names))
	for ph, name := range e.names {
		if containsPlaceholder(text, ph) {
			out[ph] = name
		}
	}
	return out
}

func (e *updateExpr) usedValues() map[string]types.AttributeValue {
	text := e.update() + " " + e.condition()
	out := make(map[string]types.AttributeValue, len(e.values))
	for ph, v := range e.values {
		if containsPlaceholder(text, ph) {
			out[ph] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// containsPlaceholder reports whether ph occurs in text as a whole token,
// so that "#k1" does not match inside "#k10".
func containsPlaceholder(text, ph string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], ph)
		if j < 0 {
			return false
		}
		end := i + j + len(ph)
		if end == len(text) || !isPlaceholderChar(text[end]) {
			return true
		}
		i = end
	}
}

func isPlaceholderChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func stringValue(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func numberValue(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func stringList(ss []string) types.AttributeValue {
	list := make([]types.AttributeValue, len(ss))
	for i, s := range ss {
		list[i] = stringValue(s)
	}
	return &types.AttributeValueMemberL{Value: list}
}
