package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMulti_FansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, b}

	m.Broadcast(context.Background(), AnomalyDetected, "x")
	m.SendToTourist(context.Background(), "TID-1", PersonalAnomalyAlert, "y")

	for _, r := range []*Recorder{a, b} {
		got := r.Events()
		assert.Equal(t, []Published{
			{Event: AnomalyDetected, Payload: "x"},
			{TouristID: "TID-1", Event: PersonalAnomalyAlert, Payload: "y"},
		}, got)
	}
	assert.Len(t, a.Named(AnomalyDetected), 1)
}
