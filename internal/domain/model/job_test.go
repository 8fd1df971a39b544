package model_test

import (
	"testing"

	"github.com/okian/pitwall/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestJobStatus(t *testing.T) {
	Convey("Given the job statuses", t, func() {
		Convey("Then only succeeded and failed are terminal", func() {
			So(model.JobQueued.Terminal(), ShouldBeFalse)
			So(model.JobRunning.Terminal(), ShouldBeFalse)
			So(model.JobSucceeded.Terminal(), ShouldBeTrue)
			So(model.JobFailed.Terminal(), ShouldBeTrue)
		})
	})
}
