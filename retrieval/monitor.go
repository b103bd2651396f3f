package retrieval

import (
	"github.com/poiesic/bifrost/core"
)

// Monitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results of Answer.
type Monitor interface {
	Start(question string)
	AfterEmbedding(vector []float32)
	AfterQuery(results []*core.QueryResult)
	Finish(response *Response)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                   {}
func (n *noopMonitor) AfterEmbedding(_ []float32)       {}
func (n *noopMonitor) AfterQuery(_ []*core.QueryResult) {}
func (n *noopMonitor) Finish(_ *Response)               {}
