package dao

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParameter_Matches(t *testing.T) {
	testCases := []struct {
		description string
		parameter   *Parameter
		value       string
		expect      bool
	}{
		{description: "single value match", parameter: NewParameter("State", "ready"), value: "ready", expect: true},
		{description: "single value mismatch", parameter: NewParameter("State", "ready"), value: "blocked"},
		{description: "any of", parameter: NewParameter("State", "ready", "blocked"), value: "blocked", expect: true},
		{description: "none of", parameter: NewParameter("State", "ready", "blocked"), value: "running"},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, testCase.parameter.Matches(testCase.value), testCase.description)
	}
	params := []*Parameter{NewParameter("Name", "a"), NewParameter("State", "ready")}
	assert.Equal(t, "State", Lookup("State", params).Name)
	assert.Nil(t, Lookup("Missing", params))
}
