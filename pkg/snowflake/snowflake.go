package snowflake

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// Epoch is 2024-01-01T00:00:00Z in milliseconds
	Epoch int64 = 1704067200000

	// NodeBits holds the number of bits to use for Node
	NodeBits uint8 = 10

	// StepBits holds the number of bits to use for Step
	StepBits uint8 = 12

	nodeMask  = -1 ^ (-1 << NodeBits)
	stepMask  = -1 ^ (-1 << StepBits)
	timeShift = NodeBits + StepBits
	nodeShift = StepBits
)

var (
	// ErrInvalidNodeID node ID out of range
	ErrInvalidNodeID = errors.New("invalid node ID")
	// ErrInvalidNumber string is not a number produced by FormatNumber
	ErrInvalidNumber = errors.New("invalid number")
)

// IDGenerator produces time ordered unique IDs for one node
type IDGenerator struct {
	mu        sync.Mutex
	timestamp int64
	nodeID    int64
	step      int64
	now       func() int64
}

// NewIDGenerator creates a new ID generator
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	if nodeID < 0 || nodeID > nodeMask {
		return nil, ErrInvalidNodeID
	}

	return &IDGenerator{
		nodeID: nodeID,
		now:    func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NextID generates a new ID. If the wall clock moves backwards the
// generator keeps using its last timestamp so IDs never decrease.
func (g *IDGenerator) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now < g.timestamp {
		now = g.timestamp
	}

	if now == g.timestamp {
		g.step = (g.step + 1) & stepMask
		if g.step == 0 {
			// sequence exhausted, wait for next millisecond
			for now <= g.timestamp {
				now = g.now()
			}
		}
	} else {
		g.step = 0
	}

	g.timestamp = now

	return ((now - Epoch) << timeShift) |
		(g.nodeID << nodeShift) |
		g.step
}

// NextNumber returns a new ID rendered with FormatNumber
func (g *IDGenerator) NextNumber(prefix string) string {
	return FormatNumber(prefix, g.NextID())
}

// FormatNumber renders id as a human facing reference such as MK1234567890
func FormatNumber(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

// ParseNumber reverses FormatNumber
func ParseNumber(prefix, number string) (int64, error) {
	if !strings.HasPrefix(number, prefix) {
		return 0, fmt.Errorf("%w: missing prefix %q", ErrInvalidNumber, prefix)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(number, prefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidNumber
	}
	return id, nil
}
