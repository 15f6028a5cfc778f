package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistory(t *testing.T) {
	h := NewHistory("")
	assert.Equal(t, "/", h.Location())

	var seen []Entry
	h.OnNavigate(func(e Entry) { seen = append(seen, e) })

	h.Navigate("/learner/dashboard", "")
	h.Navigate("/login", "/learner/courses/c1/learn")

	assert.Equal(t, "/login", h.Location())
	assert.Equal(t, "/learner/courses/c1/learn", h.From())
	assert.Len(t, seen, 2)
	assert.Len(t, h.Entries(), 3)

	assert.Equal(t, "/learner/dashboard", h.Back().Path)
	h.Back()
	assert.Equal(t, "/", h.Back().Path)
}
