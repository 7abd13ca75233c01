package core

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"farshore.ai/comfy-serverless/config"
)

// DurationProbe 探测一个音频文件的时长（秒）。默认实现走 ffprobe，测试中可替换。
type DurationProbe func(ctx context.Context, path string) (float64, error)

// ProbeAudioDuration 用 ffprobe 读取音频时长
func ProbeAudioDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(output)))
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe 输出无法解析: %w", err)
	}
	return duration, nil
}

// CalculateMaxFrames 按音频时长推导帧数：floor(最长音轨秒数 * fps) + 固定补帧。
// 两条音轨取较长者；全部探测失败时回退固定帧数。
func CalculateMaxFrames(ctx context.Context, probe DurationProbe, wavPath, wavPath2 string, fps int) int {
	if probe == nil {
		probe = ProbeAudioDuration
	}
	if fps <= 0 {
		fps = config.DefaultFPS
	}

	var durations []float64

	if d, err := probe(ctx, wavPath); err != nil {
		LogConfigurator("⚠️ 音频 1 时长探测失败: %v", err)
	} else {
		LogConfigurator("音频 1 时长: %.2fs", d)
		durations = append(durations, d)
	}

	if wavPath2 != "" && wavPath2 != wavPath {
		if d, err := probe(ctx, wavPath2); err != nil {
			LogConfigurator("⚠️ 音频 2 时长探测失败: %v", err)
		} else {
			LogConfigurator("音频 2 时长: %.2fs", d)
			durations = append(durations, d)
		}
	}

	if len(durations) == 0 {
		LogConfigurator("⚠️ 无法获取音频时长，使用默认帧数 %d", config.DefaultMaxFrames)
		return config.DefaultMaxFrames
	}

	maxDuration := durations[0]
	for _, d := range durations[1:] {
		if d > maxDuration {
			maxDuration = d
		}
	}

	maxFrames := int(maxDuration*float64(fps)) + config.FramePadding
	LogConfigurator("推导帧数: %d (时长 %.2fs, fps %d)", maxFrames, maxDuration, fps)
	return maxFrames
}
