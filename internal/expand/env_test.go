package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnv(t *testing.T) {
	vars := map[string]string{"PAGES": "64", "CONSOLE": "memory", "EMPTY": ""}
	lookup := func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
	testCases := []struct {
		description string
		input       string
		expect      string
	}{
		{description: "no reference", input: "arena_pages: 8", expect: "arena_pages: 8"},
		{description: "single", input: "arena_pages: ${env.PAGES}", expect: "arena_pages: 64"},
		{description: "several", input: "${env.PAGES}/${env.CONSOLE}", expect: "64/memory"},
		{description: "unset is kept", input: "x${env.MISSING}y", expect: "x${env.MISSING}y"},
		{description: "set but empty", input: "x${env.EMPTY}y", expect: "xy"},
		{description: "empty key", input: "${env.} ${env.PAGES}", expect: "${env.} 64"},
		{description: "unterminated", input: "a ${env.PAGES", expect: "a ${env.PAGES"},
		{description: "invalid key keeps prefix", input: "${env.A-B} ${env.PAGES}", expect: "${env.A-B} 64"},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, env(testCase.input, lookup), testCase.description)
	}
}

func TestEnv_Process(t *testing.T) {
	t.Setenv("KERNSIM_TEST_PAGES", "12")
	assert.Equal(t, "12", Env("${env.KERNSIM_TEST_PAGES}"))
}
