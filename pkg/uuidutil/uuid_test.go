package uuidutil_test

import (
	"regexp"
	"testing"

	"github.com/snapguard-project/snapguard/pkg/uuidutil"
	"github.com/stretchr/testify/assert"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestNewV4_Format(t *testing.T) {
	id := uuidutil.NewV4()
	assert.Regexp(t, uuidRe, id)
}

func TestNewV4_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := uuidutil.NewV4()
		assert.False(t, seen[id], "duplicate uuid %s", id)
		seen[id] = true
	}
}
