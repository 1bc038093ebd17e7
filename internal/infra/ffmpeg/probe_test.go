package ffmpeg

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleProbe = `{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "h264", "width": 640, "height": 360, "duration": "2.000000"}
  ],
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "2.023000"}
}`

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(sampleProbe))
	require.NoError(t, err)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 360, info.Height)
	assert.Equal(t, "h264", info.Codec)
	assert.InDelta(t, 2.023, info.Duration, 1e-9)
}

func TestParseProbeFallsBackToStreamDuration(t *testing.T) {
	info, err := parseProbe([]byte(`{"streams":[{"codec_type":"video","width":2,"height":2,"duration":"1.5"}],"format":{}}`))
	require.NoError(t, err)
	assert.Equal(t, 1.5, info.Duration)
}

func TestParseProbeWithoutVideo(t *testing.T) {
	_, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`))
	var me *entity.MediaError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, entity.MediaErrSrcNotSupported, me.Code)
}

func TestClassify(t *testing.T) {
	base := errors.New("exit status 1")
	tests := []struct {
		stderr string
		want   entity.MediaErrorCode
	}{
		{"http://x/v.mp4: Connection refused", entity.MediaErrNetwork},
		{"Server returned 404 Not Found", entity.MediaErrNetwork},
		{"v.txt: Invalid data found when processing input", entity.MediaErrSrcNotSupported},
		{"missing.mp4: No such file or directory", entity.MediaErrSrcNotSupported},
		{"Error while decoding stream #0:0", entity.MediaErrDecode},
	}
	for _, tt := range tests {
		err := classify(context.Background(), base, tt.stderr)
		var me *entity.MediaError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, tt.want, me.Code, tt.stderr)
		assert.ErrorIs(t, err, base)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var me *entity.MediaError
	require.ErrorAs(t, classify(ctx, base, ""), &me)
	assert.Equal(t, entity.MediaErrAborted, me.Code)
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not in PATH", bin)
		}
	}
}

// makeTestVideo renders a 2 second 320x240 test pattern.
func makeTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mp4")
	out, err := exec.Command("ffmpeg", "-f", "lavfi", "-i", "testsrc=duration=2:size=320x240:rate=10",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-y", path).CombinedOutput()
	if err != nil {
		t.Skipf("cannot render test video: %v: %s", err, out)
	}
	return path
}

func TestSourceSeekDecodesFrames(t *testing.T) {
	requireFFmpeg(t)
	path := makeTestVideo(t)
	ctx := context.Background()

	src, err := NewOpener("", "", zap.NewNop()).OpenSource(ctx, path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, port.HaveEnoughData, src.ReadyState())
	w, h := src.NativeSize()
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)
	assert.InDelta(t, 2.0, src.Duration(), 0.2)

	require.NoError(t, src.Seek(ctx, 1.0))
	assert.Equal(t, 1.0, src.CurrentTime())
	img, err := src.CurrentFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())

	require.NoError(t, src.Close())
	assert.Equal(t, port.HaveNothing, src.ReadyState())
	assert.Error(t, src.Seek(ctx, 0.5))
}

func TestOpenMissingFile(t *testing.T) {
	requireFFmpeg(t)
	_, err := NewOpener("", "", zap.NewNop()).Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	var me *entity.MediaError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, entity.MediaErrSrcNotSupported, me.Code)
}
