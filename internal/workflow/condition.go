// Package workflow implements the recruiting automation core: condition
// evaluation, template interpolation, action dispatch and the execution
// orchestrator, plus workflow management on top of the Record Store.
package workflow

import (
	"strconv"
	"strings"

	"github.com/pitabwire/recruitflow/model"
)

// EvaluateConditions reports whether every condition holds against payload.
// An empty condition set always holds. Evaluation is pure: malformed
// conditions evaluate to false instead of failing.
func EvaluateConditions(conditions []model.Condition, payload model.Payload) bool {
	for _, c := range conditions {
		if !EvaluateCondition(c, payload) {
			return false
		}
	}
	return true
}

// EvaluateCondition evaluates a single condition. A field that is absent from
// the payload fails every operator, not_equals included.
func EvaluateCondition(c model.Condition, payload model.Payload) bool {
	field := payload.Lookup(c.Field)
	if field.IsAbsent() {
		return false
	}

	switch c.Operator {
	case model.OpEquals:
		return field.Equal(c.Value)
	case model.OpNotEquals:
		return !field.Equal(c.Value)
	case model.OpGreaterThan:
		lhs, rhs, ok := numericPair(field, c.Value)
		return ok && lhs > rhs
	case model.OpLessThan:
		lhs, rhs, ok := numericPair(field, c.Value)
		return ok && lhs < rhs
	case model.OpContains:
		return contains(field, c.Value)
	default:
		return false
	}
}

// numericPair requires the field to be a number. The operand may be a number
// or a string holding one, since builder UIs often submit numbers as text.
func numericPair(field, operand model.Value) (float64, float64, bool) {
	lhs, ok := field.AsNumber()
	if !ok {
		return 0, 0, false
	}
	if rhs, ok := operand.AsNumber(); ok {
		return lhs, rhs, true
	}
	if s, ok := operand.AsString(); ok {
		rhs, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil {
			return lhs, rhs, true
		}
	}
	return 0, 0, false
}

// contains is substring containment for string fields and membership for
// list fields.
func contains(field, operand model.Value) bool {
	switch field.Kind() {
	case model.KindString:
		s, _ := field.AsString()
		sub, ok := operand.AsString()
		return ok && strings.Contains(s, sub)
	case model.KindList:
		items, _ := field.AsList()
		for _, item := range items {
			if item.Equal(operand) {
				return true
			}
		}
	}
	return false
}
