package pacing

import (
	"fmt"
	"time"
)

// Stats is a snapshot of a Source. Fields are read one by one and may be
// slightly out of step with each other.
type Stats struct {
	Name               string
	Started            bool
	Synchronized       bool
	MediaTime          time.Duration
	SequenceNumber     int64
	PacketsTransmitted int64
	BytesTransmitted   int64
	// SyncLosses counts quanta that ended with the generator out of data.
	SyncLosses int64
}

func (s Stats) String() string {
	return fmt.Sprintf("%s: started=%v synchronized=%v media_time=%v seq=%d packets=%d bytes=%d sync_losses=%d",
		s.Name, s.Started, s.Synchronized, s.MediaTime, s.SequenceNumber,
		s.PacketsTransmitted, s.BytesTransmitted, s.SyncLosses)
}
