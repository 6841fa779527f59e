package workflows

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/motion-compare/internal/clips"
	"github.com/tendant/motion-compare/internal/embedding"
	"github.com/tendant/motion-compare/internal/logging"
	"github.com/tendant/motion-compare/internal/motion"
	"github.com/tendant/motion-compare/internal/results"
	"github.com/tendant/motion-compare/internal/storage"
	"github.com/tendant/motion-compare/internal/testsupport"
	"github.com/tendant/motion-compare/pkg/compare"
)

// fakeSource resolves "<owner>/<file>" keys to in-memory video paths
type fakeSource struct {
	mu       sync.Mutex
	paths    map[string]string
	fail     map[string]error
	fetched  []string
	released []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{paths: map[string]string{}, fail: map[string]error{}}
}

func (s *fakeSource) Fetch(_ context.Context, ref storage.VideoRef) (*storage.LocalVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ref.Key()
	s.fetched = append(s.fetched, key)
	if err, ok := s.fail[key]; ok {
		return nil, err
	}
	p, ok := s.paths[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return storage.NewLocalVideo(p, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.released = append(s.released, p)
		return nil
	}), nil
}

type recordingSink struct {
	mu     sync.Mutex
	writes map[int64][]float64
	err    error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{writes: map[int64][]float64{}}
}

func (s *recordingSink) SaveAccuracy(_ context.Context, id int64, accuracy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[id] = append(s.writes[id], accuracy)
	return s.err
}

type harness struct {
	source *fakeSource
	videos *testsupport.Videos
	poses  *testsupport.PoseTable
	model  *testsupport.StatsModel
	sink   *recordingSink
	wf     *ComparisonWorkflow
}

func newHarness() *harness {
	h := &harness{
		source: newFakeSource(),
		videos: testsupport.NewVideos(),
		poses:  testsupport.NewPoseTable(),
		model:  &testsupport.StatsModel{},
		sink:   newRecordingSink(),
	}
	logger := logging.Discard()
	detector := motion.NewDetector(h.videos, h.poses, motion.DefaultStaticThreshold, logger)
	engine := embedding.NewEngine(clips.NewExtractor(h.videos, 4, 4), h.model, embedding.DefaultNormalization, logger)
	h.wf = NewComparisonWorkflow(h.source, detector, engine, h.sink, nil, logger)
	return h
}

// addVideo stores frames for owner/file and returns the request URL
func (h *harness) addVideo(owner int64, file string, frames []image.Image) string {
	p := "/videos/" + file
	h.source.paths[storage.VideoRef{OwnerID: owner, URL: file}.Key()] = p
	h.videos.Add(p, frames)
	return "https://bucket.example.com/uploads/" + file
}

// moving gives every frame a pose that drifts well above the threshold
func (h *harness) moving(frames []image.Image) []image.Image {
	for i, f := range frames {
		h.poses.Set(f, testsupport.Pose(33, 0.01*float64(i), 0))
	}
	return frames
}

func (h *harness) still(frames []image.Image) []image.Image {
	for _, f := range frames {
		h.poses.Set(f, testsupport.Pose(33, 0, 0))
	}
	return frames
}

func (h *harness) run(t *testing.T, req compare.Request) *compare.Result {
	t.Helper()
	res, err := h.wf.Execute(&WorkflowContext{Ctx: context.Background(), Request: req, RunID: "test-run"})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func request(coachURL, userURL string) compare.Request {
	return compare.Request{
		CoachData: compare.CoachData{ExerciseID: 11, ExerciseURL: coachURL, CoachID: 1},
		UserData:  compare.UserData{CoachExerciseID: 11, ExerciseURL: userURL, UserExerciseID: 500, UserID: 2},
	}
}

func TestNoPersonInEmptyVideos(t *testing.T) {
	h := newHarness()
	coach := h.addVideo(1, "coach.mp4", nil)
	user := h.addVideo(2, "user.mp4", nil)

	res := h.run(t, request(coach, user))

	assert.Equal(t, compare.StatusFailed, res.Status)
	assert.Equal(t, MsgNoPerson, res.Message)
	require.NotNil(t, res.Accuracy)
	assert.Equal(t, 0.0, *res.Accuracy)
	assert.Equal(t, []float64{0}, h.sink.writes[500])
	assert.Zero(t, h.model.Calls())
}

func TestIdenticalMovingVideosScoreFullAccuracy(t *testing.T) {
	h := newHarness()
	frames := h.moving(testsupport.Frames(8))
	coach := h.addVideo(1, "coach.mp4", frames)
	user := h.addVideo(2, "user.mp4", frames)

	res := h.run(t, request(coach, user))

	assert.Equal(t, compare.StatusSuccess, res.Status)
	require.NotNil(t, res.Accuracy)
	assert.Equal(t, 100.0, *res.Accuracy)
	assert.Empty(t, res.Message)
	assert.Equal(t, []float64{100}, h.sink.writes[500])
}

func TestCancelledCallerStillScores(t *testing.T) {
	h := newHarness()
	frames := h.moving(testsupport.Frames(8))
	coach := h.addVideo(1, "coach.mp4", frames)
	user := h.addVideo(2, "user.mp4", frames)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := h.wf.Execute(&WorkflowContext{Ctx: ctx, Request: request(coach, user), RunID: "cancelled-run"})
	require.NoError(t, err)

	assert.Equal(t, compare.StatusSuccess, res.Status)
	require.NotNil(t, res.Accuracy)
	assert.Equal(t, 100.0, *res.Accuracy)
	assert.Equal(t, []float64{100}, h.sink.writes[500])
	assert.Zero(t, h.videos.OpenHandles())
}

type exerciseSet map[int64]bool

func (e exerciseSet) LookupExercise(_ context.Context, id int64) (results.Exercise, error) {
	if !e[id] {
		return results.Exercise{}, results.ErrExerciseNotFound
	}
	return results.Exercise{ID: id}, nil
}

func TestMissingUserExerciseAfterMotionGates(t *testing.T) {
	h := newHarness()
	h.wf.WithExercises(exerciseSet{})
	frames := h.moving(testsupport.Frames(8))
	coach := h.addVideo(1, "coach.mp4", frames)
	user := h.addVideo(2, "user.mp4", frames)

	res := h.run(t, request(coach, user))

	assert.Equal(t, compare.StatusFailed, res.Status)
	assert.Equal(t, MsgNoExercise, res.Message)
	require.NotNil(t, res.Accuracy)
	assert.Equal(t, 0.0, *res.Accuracy)
	assert.Equal(t, []float64{0}, h.sink.writes[500])
	assert.Zero(t, h.model.Calls())
}

func TestMotionGatesRunBeforeUserExerciseCheck(t *testing.T) {
	h := newHarness()
	h.wf.WithExercises(exerciseSet{})
	coach := h.addVideo(1, "coach.mp4", nil)
	user := h.addVideo(2, "user.mp4", nil)

	res := h.run(t, request(coach, user))

	assert.Equal(t, MsgNoPerson, res.Message)
}

func TestKnownUserExerciseScores(t *testing.T) {
	h := newHarness()
	h.wf.WithExercises(exerciseSet{11: true})
	frames := h.moving(testsupport.Frames(8))
	coach := h.addVideo(1, "coach.mp4", frames)
	user := h.addVideo(2, "user.mp4", frames)

	res := h.run(t, request(coach, user))

	assert.Equal(t, compare.StatusSuccess, res.Status)
	assert.Equal(t, []float64{100}, h.sink.writes[500])
}

func TestUserFetchFailureSkipsMotionDetection(t *testing.T) {
	h := newHarness()
	coach := h.addVideo(1, "coach.mp4", h.moving(testsupport.Frames(4)))

	res := h.run(t, request(coach, "https://bucket.example.com/missing.mp4"))

	assert.Equal(t, compare.StatusFailed, res.Status)
	assert.Equal(t, MsgUserNotFound, res.Message)
	assert.Nil(t, res.Accuracy)
	assert.Empty(t, h.videos.Opened())
	assert.Zero(t, h.poses.Calls())
	assert.Equal(t, []float64{0}, h.sink.writes[500])
	assert.Equal(t, []string{"/videos/coach.mp4"}, h.source.released)
}

func TestCoachFetchFailure(t *testing.T) {
	h := newHarness()
	user := h.addVideo(2, "user.mp4", testsupport.Frames(4))
	h.source.fail["1/coach.mp4"] = storage.ErrAccessDenied

	res := h.run(t, request("coach.mp4", user))

	assert.Equal(t, MsgCoachNotFound, res.Message)
	assert.Nil(t, res.Accuracy)
	assert.Equal(t, []string{"1/coach.mp4"}, h.source.fetched, "user video must not be fetched")
	assert.Equal(t, []float64{0}, h.sink.writes[500])
}

func TestProcessingFailures(t *testing.T) {
	tests := []struct {
		name    string
		failing string
		message string
	}{
		{name: "coach", failing: "/videos/coach.mp4", message: MsgCoachProcessing},
		{name: "user", failing: "/videos/user.mp4", message: MsgUserProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			coach := h.addVideo(1, "coach.mp4", h.moving(testsupport.Frames(4)))
			user := h.addVideo(2, "user.mp4", h.moving(testsupport.Frames(4)))
			h.videos.FailAt[tt.failing] = 2

			res := h.run(t, request(coach, user))

			assert.Equal(t, compare.StatusFailed, res.Status)
			assert.Equal(t, tt.message, res.Message)
			assert.Equal(t, []float64{0}, h.sink.writes[500])
			assert.Zero(t, h.videos.OpenHandles())
			assert.Len(t, h.source.released, 2)
		})
	}
}

func TestStillPersonIsNotMoving(t *testing.T) {
	h := newHarness()
	coach := h.addVideo(1, "coach.mp4", h.moving(testsupport.Frames(4)))
	user := h.addVideo(2, "user.mp4", h.still(testsupport.Frames(4)))

	res := h.run(t, request(coach, user))

	assert.Equal(t, MsgNotMoving, res.Message)
	require.NotNil(t, res.Accuracy)
	assert.Equal(t, 0.0, *res.Accuracy)
	assert.Zero(t, h.model.Calls())
}

func TestPersonInOnlyOneVideo(t *testing.T) {
	h := newHarness()
	coach := h.addVideo(1, "coach.mp4", h.moving(testsupport.Frames(4)))
	user := h.addVideo(2, "user.mp4", testsupport.Frames(4))

	res := h.run(t, request(coach, user))
	assert.Equal(t, MsgNoPerson, res.Message)
}

func TestEmbeddingFailureReportsInternalError(t *testing.T) {
	h := newHarness()
	frames := h.moving(testsupport.Frames(4))
	coach := h.addVideo(1, "coach.mp4", frames)
	user := h.addVideo(2, "user.mp4", frames)
	h.model.Err = errors.New("session crashed")

	res := h.run(t, request(coach, user))

	assert.Equal(t, compare.StatusFailed, res.Status)
	assert.True(t, strings.HasPrefix(res.Message, MsgInternalPrefix), res.Message)
	assert.Contains(t, res.Message, "session crashed")
	require.NotNil(t, res.Accuracy)
	assert.Equal(t, 0.0, *res.Accuracy)
	assert.Equal(t, []float64{0}, h.sink.writes[500])
}

func TestSinkFailureDoesNotChangeResult(t *testing.T) {
	h := newHarness()
	frames := h.moving(testsupport.Frames(8))
	coach := h.addVideo(1, "coach.mp4", frames)
	user := h.addVideo(2, "user.mp4", frames)
	h.sink.err = errors.New("connection refused")

	res := h.run(t, request(coach, user))

	assert.Equal(t, compare.StatusSuccess, res.Status)
	assert.Equal(t, 100.0, *res.Accuracy)
}

func TestRepeatedRunsAgree(t *testing.T) {
	h := newHarness()
	coachFrames := h.moving(testsupport.Frames(9))
	userFrames := h.moving(testsupport.Frames(12)[3:])
	coach := h.addVideo(1, "coach.mp4", coachFrames)
	user := h.addVideo(2, "user.mp4", userFrames)

	first := h.run(t, request(coach, user))
	second := h.run(t, request(coach, user))

	require.Equal(t, compare.StatusSuccess, first.Status)
	assert.Equal(t, *first.Accuracy, *second.Accuracy)
	assert.Equal(t, []float64{*first.Accuracy, *first.Accuracy}, h.sink.writes[500])
	assert.Zero(t, h.videos.OpenHandles())
}

func TestRunnerAssignsRunID(t *testing.T) {
	h := newHarness()
	runner := NewWorkflowRunner(h.wf, nil, logging.Discard())

	res, err := runner.Run(context.Background(), request("a.mp4", "b.mp4"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, MsgCoachNotFound, res.Message)

	_, err = runner.RunAsync(context.Background(), request("a.mp4", "b.mp4"))
	assert.ErrorIs(t, err, ErrQueueUnavailable)
	_, err = runner.RunAsync(context.Background(), compare.Request{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = runner.GetStatus(context.Background(), "x")
	assert.ErrorIs(t, err, ErrQueueUnavailable)

	_, err = NewWorkflowRunner(nil, nil, logging.Discard()).Run(context.Background(), compare.Request{})
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}
