package idgen

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Initialize sets up the Snowflake node used for user and group ids.
// Calling it again with a different node id replaces the node.
func Initialize(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// GenerateID generates a new Snowflake ID as a string
func GenerateID() string {
	mu.Lock()
	if node == nil {
		// Node 1 is the single-instance default.
		node, _ = snowflake.NewNode(1)
	}
	n := node
	mu.Unlock()
	return n.Generate().String()
}
