package elasticbulk

import (
	"fmt"
	"sync"
	"time"
)

type payloadIDGenerator struct {
	sync.Mutex
	epochNano int64
	sequence  int32
}

func newPayloadIDGenerator() *payloadIDGenerator {
	return &payloadIDGenerator{
		Mutex:     sync.Mutex{},
		epochNano: 0,
		sequence:  0,
	}
}

// Generate returns the next payload ID, which consists of a nanosecond timestamp and a sequence number
// The sequence number is incremented by one every time until the time is changed
//
// IDs sort in creation order and are safe as filenames
func (generator *payloadIDGenerator) Generate() string {
	generator.Lock()
	nextTimestamp := time.Now().UnixNano()
	if nextTimestamp > generator.epochNano {
		generator.epochNano = nextTimestamp
		generator.sequence = 0
	} else {
		generator.sequence++
	}
	nextTimestamp = generator.epochNano
	nextSequence := generator.sequence
	generator.Unlock()
	return fmt.Sprintf("%019d-%08d", nextTimestamp, nextSequence)
}
