// Package record holds the unit of work that flows from sources through
// transformer stages into sinks.
package record

import (
	"fmt"
	"time"
)

// Checkpoint identifies where a frame came from so the source can commit it
// once every sink is done with it. Line-based sources use Topic for the input
// name and Offset for the line number.
type Checkpoint struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("%s[%d]@%d", c.Topic, c.Partition, c.Offset)
}

// Frame is one record.
type Frame struct {
	Key        []byte
	Value      []byte
	Headers    map[string][]byte
	Attributes map[string]string
	Ts         time.Time
	Checkpoint Checkpoint
}

// Ack tells a source that a checkpoint has been fully processed.
type Ack struct {
	Checkpoint Checkpoint
}
