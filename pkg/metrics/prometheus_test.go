package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"ictbot/internal/domain/models"
	"ictbot/internal/domain/repository"
)

var (
	_ repository.Metrics = (*Recorder)(nil)
	_ repository.Metrics = Nop{}
)

func TestRecorderStatistics(t *testing.T) {
	r := New()
	assert.Same(t, r, New())

	st := models.NewStatistics()
	st.Rejections[models.RejectNoFVG] = 7
	st.Entries = 2
	r.RecordStatistics("TESTSYM", st)

	assert.Equal(t, 7.0, testutil.ToFloat64(r.rejections.WithLabelValues("TESTSYM", string(models.RejectNoFVG))))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.rejections.WithLabelValues("TESTSYM", string(models.RejectML))))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.entries.WithLabelValues("TESTSYM")))

	r.RecordEquity("TESTSYM", 10250)
	assert.Equal(t, 10250.0, testutil.ToFloat64(r.equity.WithLabelValues("TESTSYM")))
}
