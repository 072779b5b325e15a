package schedctx

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/heteroprio"
)

func TestNewContextHasUniqueID(t *testing.T) {
	c1 := New("ctx1", heteroprio.Config{}, nil)
	c2 := New("ctx2", heteroprio.Config{}, nil)
	assert.NotEqual(t, c1.ID, c2.ID, "expected distinct context ids")
	assert.NotNil(t, c1.Scheduler())
}

func TestContextParentLink(t *testing.T) {
	parent := New("parent", heteroprio.Config{}, nil)
	child := New("child", heteroprio.Config{}, nil)
	child.SetParent(parent)
	assert.Equal(t, parent, child.Parent())
}

func TestContextAddRemoveWorker(t *testing.T) {
	c := New("ctx", heteroprio.Config{}, nil)
	id := c.AddWorker(arch.CPU)
	c.RemoveWorker(id)
}
