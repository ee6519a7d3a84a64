package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLedgerReportUsesBusiestLane(t *testing.T) {
	l := newLedger([]int{7, 9}, []int{2, 3}, 100)
	l.recordBatch(0, []uint64{100, 300})
	l.recordBatch(0, []uint64{200})
	l.recordBatch(1, []uint64{50, 50, 400})
	l.addCopyTime(3 * time.Millisecond)
	l.addCopyTime(2 * time.Millisecond)

	r := l.Report()
	assert.Equal(t, uint64(6), r.Requests)
	assert.Equal(t, 5*time.Millisecond, r.CopyTime)

	assert.Equal(t, 7, r.Clusters[0].ID)
	assert.Equal(t, uint64(2), r.Clusters[0].Batches)
	assert.Equal(t, uint64(3), r.Clusters[0].Requests)
	// lane 0: 100+200, lane 1: 300
	assert.Equal(t, uint64(300), r.Clusters[0].MaxLaneCycles)
	assert.InDelta(t, 3.0, r.Clusters[0].MaxLaneSeconds, 1e-9)

	assert.Equal(t, 9, r.Clusters[1].ID)
	assert.Equal(t, uint64(400), r.Clusters[1].MaxLaneCycles)
	assert.InDelta(t, 7.0, r.DeviceSeconds, 1e-9)
}
