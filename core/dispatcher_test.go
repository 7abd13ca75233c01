package core

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"farshore.ai/comfy-serverless/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func artifactSet(files ...string) *model.ArtifactSet {
	return &model.ArtifactSet{
		Nodes: []model.NodeArtifacts{{NodeID: "131", Files: files}},
	}
}

func TestDispatchInline(t *testing.T) {
	dir := t.TempDir()
	out := writeTempFile(t, dir, "out.mp4", "mp4-bytes")

	d := NewOutputDispatcher(nil, "infinitetalk", "/volume")
	resp, err := d.Dispatch(context.Background(), artifactSet(out), &model.JobRequest{}, filepath.Join(dir, "task_1"))
	require.NoError(t, err)

	assert.Equal(t, "success", resp.Status)
	decoded, err := base64.StdEncoding.DecodeString(resp.Video)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(decoded))
	assert.Empty(t, resp.R2URL)
	assert.Empty(t, resp.VideoPath)
}

func TestDispatchVolume(t *testing.T) {
	dir := t.TempDir()
	out := writeTempFile(t, dir, "out.mp4", "mp4-bytes")
	volume := filepath.Join(dir, "volume")
	require.NoError(t, os.MkdirAll(volume, 0o755))

	d := NewOutputDispatcher(nil, "infinitetalk", volume)
	resp, err := d.Dispatch(context.Background(), artifactSet(out),
		&model.JobRequest{NetworkVolume: true}, filepath.Join(dir, "task_abc"))
	require.NoError(t, err)

	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, filepath.Join(volume, "infinitetalk_task_abc.mp4"), resp.VideoPath)
	assert.FileExists(t, resp.VideoPath)

	data, _ := os.ReadFile(resp.VideoPath)
	assert.Equal(t, "mp4-bytes", string(data))
}

// 同一产物、同一暂存目录，重复交付结果一致
func TestDispatchVolumeIdempotent(t *testing.T) {
	dir := t.TempDir()
	out := writeTempFile(t, dir, "out.mp4", "mp4-bytes")
	volume := filepath.Join(dir, "volume")
	require.NoError(t, os.MkdirAll(volume, 0o755))

	d := NewOutputDispatcher(nil, "infinitetalk", volume)
	req := &model.JobRequest{NetworkVolume: true}
	staging := filepath.Join(dir, "task_abc")

	first, err := d.Dispatch(context.Background(), artifactSet(out), req, staging)
	require.NoError(t, err)
	second, err := d.Dispatch(context.Background(), artifactSet(out), req, staging)
	require.NoError(t, err)
	assert.Equal(t, first.VideoPath, second.VideoPath)
}

func TestDispatchNoOutput(t *testing.T) {
	d := NewOutputDispatcher(nil, "infinitetalk", "/volume")

	_, err := d.Dispatch(context.Background(), &model.ArtifactSet{}, &model.JobRequest{}, "/tmp/task_1")
	assert.ErrorIs(t, err, ErrNoOutputFile)

	// 文件在 history 里但磁盘上不存在
	_, err = d.Dispatch(context.Background(), artifactSet("/nonexistent/out.mp4"), &model.JobRequest{}, "/tmp/task_1")
	assert.ErrorIs(t, err, ErrNoOutputFile)
}

// 只勾了上传但存储未配置：报错而不是静默换交付方式
func TestDispatchUploadNotConfigured(t *testing.T) {
	dir := t.TempDir()
	out := writeTempFile(t, dir, "out.mp4", "mp4-bytes")

	d := NewOutputDispatcher(nil, "infinitetalk", "/volume")
	_, err := d.Dispatch(context.Background(), artifactSet(out),
		&model.JobRequest{UseR2Storage: true}, filepath.Join(dir, "task_1"))
	assert.ErrorIs(t, err, ErrStorageNotConfigured)
}

// 上传和共享卷都勾了、存储未配置时降级到共享卷
func TestDispatchUploadDegradesToVolume(t *testing.T) {
	dir := t.TempDir()
	out := writeTempFile(t, dir, "out.mp4", "mp4-bytes")
	volume := filepath.Join(dir, "volume")
	require.NoError(t, os.MkdirAll(volume, 0o755))

	d := NewOutputDispatcher(nil, "infinitetalk", volume)
	resp, err := d.Dispatch(context.Background(), artifactSet(out),
		&model.JobRequest{UseR2Storage: true, NetworkVolume: true}, filepath.Join(dir, "task_1"))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.VideoPath)
}

// 多节点产物时取第一个非空节点的第一个文件
func TestDispatchPicksFirstFile(t *testing.T) {
	dir := t.TempDir()
	first := writeTempFile(t, dir, "first.mp4", "first")
	second := writeTempFile(t, dir, "second.mp4", "second")

	set := &model.ArtifactSet{
		Nodes: []model.NodeArtifacts{
			{NodeID: "120", Files: nil},
			{NodeID: "131", Files: []string{first, second}},
			{NodeID: "150", Files: []string{second}},
		},
	}

	d := NewOutputDispatcher(nil, "infinitetalk", "/volume")
	resp, err := d.Dispatch(context.Background(), set, &model.JobRequest{}, filepath.Join(dir, "task_1"))
	require.NoError(t, err)

	decoded, _ := base64.StdEncoding.DecodeString(resp.Video)
	assert.Equal(t, "first", string(decoded))
}
