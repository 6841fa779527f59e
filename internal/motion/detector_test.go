package motion_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/motion-compare/internal/logging"
	"github.com/tendant/motion-compare/internal/motion"
	"github.com/tendant/motion-compare/internal/testsupport"
)

const landmarks = 33

func newDetector(videos *testsupport.Videos, poses *testsupport.PoseTable) *motion.Detector {
	return motion.NewDetector(videos, poses, motion.DefaultStaticThreshold, logging.Discard())
}

func TestNoPersonInAnyFrame(t *testing.T) {
	frames := testsupport.Frames(5)
	videos := testsupport.NewVideos().Add("empty.mp4", frames)
	poses := testsupport.NewPoseTable()

	verdict, err := newDetector(videos, poses).DetectMovement(context.Background(), "empty.mp4")
	require.NoError(t, err)

	assert.False(t, verdict.PersonPresent)
	assert.False(t, verdict.IsMoving)
	assert.Equal(t, motion.StatusFailed, verdict.Status)
	assert.Equal(t, 5, poses.Calls())
	assert.Zero(t, videos.OpenHandles())
}

func TestZeroFrameVideo(t *testing.T) {
	videos := testsupport.NewVideos().Add("blank.mp4", nil)

	verdict, err := newDetector(videos, testsupport.NewPoseTable()).DetectMovement(context.Background(), "blank.mp4")
	require.NoError(t, err)
	assert.False(t, verdict.PersonPresent)
	assert.Equal(t, motion.StatusFailed, verdict.Status)
}

func TestIdenticalPosesAreNotMoving(t *testing.T) {
	for _, n := range []int{2, 3, 10, 50} {
		frames := testsupport.Frames(n)
		poses := testsupport.NewPoseTable()
		for _, f := range frames {
			poses.Set(f, testsupport.Pose(landmarks, 0, 0))
		}
		videos := testsupport.NewVideos().Add("still.mp4", frames)

		verdict, err := newDetector(videos, poses).DetectMovement(context.Background(), "still.mp4")
		require.NoError(t, err)
		assert.True(t, verdict.PersonPresent, "n=%d", n)
		assert.False(t, verdict.IsMoving, "n=%d", n)
		assert.Equal(t, motion.StatusSuccess, verdict.Status)
		assert.Zero(t, verdict.Score)
	}
}

func TestTwoFrameDisplacement(t *testing.T) {
	tests := []struct {
		name   string
		d      float64
		moving bool
	}{
		{"below threshold", 0.001, false},
		{"at threshold", motion.DefaultStaticThreshold, true},
		{"above threshold", 0.01, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// a single landmark keeps the mean exact at the threshold
			frames := testsupport.Frames(2)
			poses := testsupport.NewPoseTable().
				Set(frames[0], motion.Observation{{X: 0, Y: 0.5}}).
				Set(frames[1], motion.Observation{{X: tt.d, Y: 0.5}})
			videos := testsupport.NewVideos().Add("pair.mp4", frames)

			verdict, err := newDetector(videos, poses).DetectMovement(context.Background(), "pair.mp4")
			require.NoError(t, err)
			assert.InDelta(t, tt.d, verdict.Score, 1e-12)
			assert.Equal(t, tt.moving, verdict.IsMoving)
		})
	}
}

func TestSinglePersonFrameIsNotMoving(t *testing.T) {
	frames := testsupport.Frames(4)
	poses := testsupport.NewPoseTable().Set(frames[2], testsupport.Pose(landmarks, 0, 0))
	videos := testsupport.NewVideos().Add("one.mp4", frames)

	verdict, err := newDetector(videos, poses).DetectMovement(context.Background(), "one.mp4")
	require.NoError(t, err)
	assert.True(t, verdict.PersonPresent)
	assert.False(t, verdict.IsMoving)
	assert.Equal(t, motion.StatusSuccess, verdict.Status)
}

func TestGapFramesKeepPreviousPose(t *testing.T) {
	frames := testsupport.Frames(3)
	poses := testsupport.NewPoseTable().
		Set(frames[0], testsupport.Pose(landmarks, 0, 0)).
		Set(frames[2], testsupport.Pose(landmarks, 0, 0.02))
	videos := testsupport.NewVideos().Add("gap.mp4", frames)

	verdict, err := newDetector(videos, poses).DetectMovement(context.Background(), "gap.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 0.02, verdict.Score, 1e-12)
	assert.True(t, verdict.IsMoving)
	assert.Equal(t, 2, verdict.Detections)
}

func TestDecodeErrorFailsAndReleasesHandle(t *testing.T) {
	frames := testsupport.Frames(4)
	poses := testsupport.NewPoseTable()
	for _, f := range frames {
		poses.Set(f, testsupport.Pose(landmarks, 0, 0))
	}
	videos := testsupport.NewVideos().Add("bad.mp4", frames)
	videos.FailAt["bad.mp4"] = 2

	verdict, err := newDetector(videos, poses).DetectMovement(context.Background(), "bad.mp4")
	require.Error(t, err)
	assert.Equal(t, motion.StatusFailed, verdict.Status)
	assert.Zero(t, videos.OpenHandles())
}

func TestModelErrorFails(t *testing.T) {
	videos := testsupport.NewVideos().Add("clip.mp4", testsupport.Frames(3))
	poses := testsupport.NewPoseTable()
	poses.Err = errors.New("session closed")

	_, err := newDetector(videos, poses).DetectMovement(context.Background(), "clip.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session closed")
	assert.Zero(t, videos.OpenHandles())
}

func TestOpenErrorFails(t *testing.T) {
	videos := testsupport.NewVideos().FailOpen("missing.mp4", errors.New("no such file"))
	verdict, err := newDetector(videos, testsupport.NewPoseTable()).DetectMovement(context.Background(), "missing.mp4")
	require.Error(t, err)
	assert.Equal(t, motion.StatusFailed, verdict.Status)
}

func TestDisplacement(t *testing.T) {
	a := motion.Observation{{X: 0, Y: 0}, {X: 1, Y: 1}}
	b := motion.Observation{{X: 3, Y: 4}, {X: 1, Y: 1}}
	d, err := motion.Displacement(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, d, 1e-12)

	_, err = motion.Displacement(a, b[:1])
	assert.Error(t, err)
}

var _ motion.PoseEstimator = (*testsupport.PoseTable)(nil)
