package job

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediatools-api/internal/engine"
	"github.com/maauso/mediatools-api/internal/tools"
)

func TestRunner_Run(t *testing.T) {
	eng := newFakeEngine()
	r := NewRunner(eng)

	out, err := r.Run(context.Background(), Spec{
		InputBytes: []byte("movie"),
		InputExt:   "mov",
		Args:       []string{"-threads", "0", "-codec:a", "libmp3lame", "-b:a", "192k", "-vn"},
		OutputName: "output.mp3",
	})
	require.NoError(t, err)
	assert.Equal(t, "movie|[-threads 0 -codec:a libmp3lame -b:a 192k -vn]", string(out))

	calls, execs, _, files := eng.snapshot()
	assert.Equal(t, []string{
		"write input.mov",
		"exec",
		"read output.mp3",
		"delete input.mov",
		"delete output.mp3",
	}, calls)
	assert.Equal(t, []string{"-i", "input.mov", "-threads", "0", "-codec:a", "libmp3lame", "-b:a", "192k", "-vn", "output.mp3"}, execs[0])
	assert.Zero(t, files)
}

func TestRunner_AudioExtractArgvTail(t *testing.T) {
	sel, err := tools.NewSelection(tools.AudioExtract)
	require.NoError(t, err)
	require.NoError(t, sel.SetFormat("mp3"))
	require.NoError(t, sel.SetQuality("192k"))
	args, err := sel.Args()
	require.NoError(t, err)

	eng := newFakeEngine()
	ext, err := tools.InputExt("sample.mov")
	require.NoError(t, err)
	_, err = NewRunner(eng).Run(context.Background(), Spec{
		InputBytes: []byte("video"),
		InputExt:   ext,
		Args:       args,
		OutputName: sel.OutputName(),
	})
	require.NoError(t, err)

	_, execs, _, _ := eng.snapshot()
	require.Len(t, execs, 1)
	assert.True(t, strings.HasSuffix(strings.Join(execs[0], " "), "-codec:a libmp3lame -b:a 192k -vn output.mp3"))
}

func TestRunner_ZeroLengthInputIsExecutionError(t *testing.T) {
	eng := newFakeEngine()

	_, err := NewRunner(eng).Run(context.Background(), Spec{
		InputBytes: nil,
		InputExt:   "wav",
		Args:       []string{"-codec:a", "libmp3lame", "-b:a", "192k", "-threads", "0"},
		OutputName: "output.mp3",
	})

	var jobErr *Error
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, KindExecution, jobErr.Kind)
	var execErr *engine.ExecError
	assert.ErrorAs(t, err, &execErr)
	assert.Equal(t, "input.wav: Invalid data found when processing input", DisplayMessage(err))

	calls, _, _, files := eng.snapshot()
	assert.Equal(t, []string{"write input.wav", "exec", "delete output.mp3", "delete input.wav"}, calls)
	assert.Zero(t, files)
}

func TestRunner_OutputMayNotOverwriteInput(t *testing.T) {
	eng := newFakeEngine()
	_, err := NewRunner(eng).Run(context.Background(), Spec{
		InputBytes: []byte("x"),
		InputExt:   "mp4",
		OutputName: "input.mp4",
	})
	assert.Equal(t, KindUnsupportedInput, Classify(err))
	calls, _, _, _ := eng.snapshot()
	assert.Empty(t, calls)
}

func TestRunner_RunSegments(t *testing.T) {
	def, err := tools.Lookup(tools.VideoSplit)
	require.NoError(t, err)
	segs, err := tools.NormalizeSegments([]tools.Segment{
		{Start: "00:00:00", End: "00:00:05"},
		{Start: "00:00:05", End: "00:00:10"},
		{Start: "00:00:10", End: "00:00:15", Name: "ending"},
	})
	require.NoError(t, err)

	var specs []SegmentSpec
	for _, s := range segs {
		args, err := def.SegmentFragment(s)
		require.NoError(t, err)
		specs = append(specs, SegmentSpec{Name: s.Name, Args: args, OutputName: def.SegmentOutputName(s)})
	}

	eng := newFakeEngine()
	var delivered []string
	err = NewRunner(eng).RunSegments(context.Background(), []byte("clip"), "mp4", specs,
		func(_ context.Context, seg SegmentSpec, data []byte) error {
			delivered = append(delivered, seg.OutputName+"="+string(data))
			return nil
		})
	require.NoError(t, err)

	assert.Len(t, delivered, 3)
	assert.Equal(t, "segment_1.mp4=clip|[-ss 00:00:00 -to 00:00:05 -c copy -avoid_negative_ts make_zero]", delivered[0])
	assert.Equal(t, "ending.mp4=clip|[-ss 00:00:10 -to 00:00:15 -c copy -avoid_negative_ts make_zero]", delivered[2])

	calls, execs, deletes, files := eng.snapshot()
	assert.Equal(t, []string{"segment_1.mp4", "segment_2.mp4", "ending.mp4", "input.mp4"}, deletes)
	assert.Equal(t, "write input.mp4", calls[0])
	assert.Len(t, execs, 3)
	assert.Zero(t, files)
}

func TestRunner_VideoSplitArgv(t *testing.T) {
	def, err := tools.Lookup(tools.VideoSplit)
	require.NoError(t, err)
	segs, err := tools.NormalizeSegments([]tools.Segment{{Start: "00:00:05", End: "00:00:15"}})
	require.NoError(t, err)
	args, err := def.SegmentFragment(segs[0])
	require.NoError(t, err)

	eng := newFakeEngine()
	ext, err := tools.InputExt("clip.mp4")
	require.NoError(t, err)
	err = NewRunner(eng).RunSegments(context.Background(), []byte("clip"), ext,
		[]SegmentSpec{{Name: segs[0].Name, Args: args, OutputName: def.SegmentOutputName(segs[0])}},
		func(context.Context, SegmentSpec, []byte) error { return nil })
	require.NoError(t, err)

	_, execs, _, _ := eng.snapshot()
	assert.Equal(t,
		"-i input.mp4 -ss 00:00:05 -to 00:00:15 -c copy -avoid_negative_ts make_zero segment_1.mp4",
		strings.Join(execs[0], " "))
}

func TestRunner_RunSegmentsStopsAtDeliveryFailure(t *testing.T) {
	eng := newFakeEngine()
	specs := []SegmentSpec{
		{Name: "a", Args: []string{"-ss", "00:00:00", "-to", "00:00:01"}, OutputName: "a.mp3"},
		{Name: "b", Args: []string{"-ss", "00:00:01", "-to", "00:00:02"}, OutputName: "b.mp3"},
	}

	err := NewRunner(eng).RunSegments(context.Background(), []byte("audio"), "wav", specs,
		func(context.Context, SegmentSpec, []byte) error { return errors.New("store full") })
	assert.Equal(t, KindIO, Classify(err))
	assert.ErrorContains(t, err, "store full")

	_, execs, deletes, files := eng.snapshot()
	assert.Len(t, execs, 1)
	assert.Equal(t, []string{"a.mp3", "input.wav"}, deletes)
	assert.Zero(t, files)
}

func TestRunner_RunSegmentsExecFailure(t *testing.T) {
	eng := newFakeEngine()
	specs := []SegmentSpec{{Name: "a", OutputName: "a.mp3"}}

	err := NewRunner(eng).RunSegments(context.Background(), nil, "wav", specs,
		func(context.Context, SegmentSpec, []byte) error {
			t.Fatal("nothing should be delivered")
			return nil
		})
	assert.Equal(t, KindExecution, Classify(err))
	assert.ErrorContains(t, err, "segment 1 (a)")

	_, _, deletes, files := eng.snapshot()
	assert.Equal(t, []string{"a.mp3", "input.wav"}, deletes)
	assert.Zero(t, files)
}
