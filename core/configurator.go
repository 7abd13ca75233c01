package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"farshore.ai/comfy-serverless/model"
	"github.com/google/uuid"
)

// ResolvedMedia 一个任务全部媒体槽位的解析结果
type ResolvedMedia struct {
	Media model.MediaReference // 主媒体：图片或视频，由 input_type 决定
	Wav   model.MediaReference // 主音轨
	Wav2  model.MediaReference // 副音轨，仅 multi 任务使用，可为零值
}

// WorkflowConfigurator 按模型划分的配置策略：
// 选择模板、解析该模型需要的媒体槽位、把任务参数写进 workflow。
// 每个模型家族一个实现，进程启动时按配置选定。
type WorkflowConfigurator interface {
	SelectTemplate(req *model.JobRequest) string
	ResolveInputs(req *model.JobRequest, stagingDir string) (*ResolvedMedia, error)
	Patch(ctx context.Context, graph model.WorkflowGraph, req *model.JobRequest, media *ResolvedMedia) ([]string, error)
}

// =======================
// InfiniteTalk 模型
// =======================

// InfiniteTalk workflow 的槽位节点 ID，和模板 JSON 对齐
const (
	nodeImageLoader    = "284" // 图片加载
	nodeVideoLoader    = "228" // 视频加载
	nodeAudioLoader    = "125" // 主音轨加载
	nodePositivePrompt = "241" // 正向提示词
	nodeWidth          = "245" // 宽
	nodeHeight         = "246" // 高
	nodeMaxFrames      = "270" // 帧数
	nodeVideoCombine   = "131" // VHS_VideoCombine，save_output 决定是否落盘
	nodeSecondAudioI2V = "307" // I2V_multi 副音轨
	nodeSecondAudioV2V = "313" // V2V_multi 副音轨
)

// InfiniteTalkConfigurator 口型视频生成模型的配置策略
type InfiniteTalkConfigurator struct {
	InputDir    string        // 引擎 input 根目录
	ExamplesDir string        // 默认示例媒体目录
	FPS         int           // 帧数推导用帧率
	Probe       DurationProbe // 音频时长探测，nil 则走 ffprobe
}

// NewInfiniteTalkConfigurator 创建 InfiniteTalk 配置策略
func NewInfiniteTalkConfigurator(inputDir, examplesDir string, fps int) *InfiniteTalkConfigurator {
	return &InfiniteTalkConfigurator{
		InputDir:    inputDir,
		ExamplesDir: examplesDir,
		FPS:         fps,
	}
}

// SelectTemplate 按输入类型 × 人数选择模板。
// 纯函数；未识别的组合落到 I2V_single.json，绝不产出不存在的模板名。
func (c *InfiniteTalkConfigurator) SelectTemplate(req *model.JobRequest) string {
	inputType := req.InputType
	personCount := req.PersonCount

	var template string
	switch {
	case inputType == "video" && personCount == "multi":
		template = "V2V_multi.json"
	case inputType == "video":
		template = "V2V_single.json"
	case personCount == "multi":
		template = "I2V_multi.json"
	default:
		template = "I2V_single.json"
	}

	LogConfigurator("选择模板: %s (type=%s, count=%s)", template, inputType, personCount)
	return template
}

// ResolveInputs 解析主媒体、主音轨，multi 任务再解析副音轨。
// 副音轨解析失败时降级复用主音轨，不算任务失败。
func (c *InfiniteTalkConfigurator) ResolveInputs(req *model.JobRequest, stagingDir string) (*ResolvedMedia, error) {
	media := &ResolvedMedia{}

	// 主媒体：图片或视频
	var err error
	if req.InputType == "video" {
		media.Media, err = ResolveInput(
			req.VideoSource(), stagingDir, "input_video.mp4",
			filepath.Join(c.ExamplesDir, "video.mp4"))
	} else {
		media.Media, err = ResolveInput(
			req.ImageSource(), stagingDir, "input_image.jpg",
			filepath.Join(c.ExamplesDir, "image.jpg"))
	}
	if err != nil {
		return nil, err
	}

	// 主音轨
	media.Wav, err = ResolveInput(
		req.AudioSource(), stagingDir, "input_audio.wav",
		filepath.Join(c.ExamplesDir, "audio.mp3"))
	if err != nil {
		return nil, err
	}

	// 副音轨：调用方没有单独的第二音轨字段，落到独立文件名，缺省时复用主音轨
	if req.PersonCount == "multi" {
		wav2, err := ResolveInput(req.AudioSource(), stagingDir, "input_audio_2.wav", media.Wav.Path)
		if err != nil {
			LogConfigurator("副音轨解析失败，复用主音轨: %v", err)
			wav2 = media.Wav
		}
		media.Wav2 = wav2
	}

	return media, nil
}

// Patch 把任务参数写进 workflow 图。
// 媒体文件先拷到引擎 input 目录（引擎按相对 input 根的文件名读取），
// 再逐槽位条件写入；缺失的节点静默跳过并记一条 warning。
func (c *InfiniteTalkConfigurator) Patch(ctx context.Context, graph model.WorkflowGraph, req *model.JobRequest, media *ResolvedMedia) ([]string, error) {
	prompt := req.Prompt
	if prompt == "" {
		prompt = "A person talking naturally"
	}
	width := req.Width
	if width == 0 {
		width = 512
	}
	height := req.Height
	if height == 0 {
		height = 512
	}

	maxFrame := req.MaxFrame
	if maxFrame == 0 {
		maxFrame = CalculateMaxFrames(ctx, c.Probe, media.Wav.Path, media.Wav2.Path, c.FPS)
	}

	LogConfigurator("workflow 参数: prompt='%s', size=%dx%d, frames=%d", prompt, width, height, maxFrame)

	// 媒体文件落到引擎 input 目录
	mediaFilename := filepath.Base(media.Media.Path)
	if err := CopyFile(media.Media.Path, filepath.Join(c.InputDir, mediaFilename)); err != nil {
		return nil, fmt.Errorf("copy media to comfyui input: %w", err)
	}
	wavFilename := filepath.Base(media.Wav.Path)
	if err := CopyFile(media.Wav.Path, filepath.Join(c.InputDir, wavFilename)); err != nil {
		return nil, fmt.Errorf("copy audio to comfyui input: %w", err)
	}

	var warnings []string
	set := func(nodeID, key string, value interface{}, slot string) {
		if !graph.SetInput(nodeID, key, value) {
			warnings = append(warnings, fmt.Sprintf("节点 %s 不在模板中，跳过槽位 %s", nodeID, slot))
		}
	}

	// 主媒体
	if req.InputType == "video" {
		set(nodeVideoLoader, "video", mediaFilename, "video")
	} else {
		set(nodeImageLoader, "image", mediaFilename, "image")
	}

	// 主音轨 / 提示词 / 尺寸 / 帧数
	set(nodeAudioLoader, "audio", wavFilename, "audio")
	set(nodePositivePrompt, "positive_prompt", prompt, "prompt")
	set(nodeWidth, "value", width, "width")
	set(nodeHeight, "value", height, "height")
	set(nodeMaxFrames, "value", maxFrame, "max_frames")

	// 打开输出落盘，否则引擎不产出文件
	set(nodeVideoCombine, "save_output", true, "save_output")

	// 副音轨
	if req.PersonCount == "multi" && media.Wav2.Path != "" {
		wav2Filename := filepath.Base(media.Wav2.Path)
		if err := CopyFile(media.Wav2.Path, filepath.Join(c.InputDir, wav2Filename)); err != nil {
			return nil, fmt.Errorf("copy second audio to comfyui input: %w", err)
		}
		if req.InputType == "video" {
			set(nodeSecondAudioV2V, "audio", wav2Filename, "audio2")
		} else {
			set(nodeSecondAudioI2V, "audio", wav2Filename, "audio2")
		}
	}

	// 输出文件名加唯一后缀，防止并发任务在引擎侧互相覆盖
	applyUniqueFilenamePrefix(graph)

	return warnings, nil
}

// applyUniqueFilenamePrefix 给所有 filename_prefix 输入追加 hex uuid 后缀
func applyUniqueFilenamePrefix(graph model.WorkflowGraph) {
	for id, node := range graph {
		for key, val := range node.Inputs {
			if !strings.Contains(strings.ToLower(key), "filename_prefix") {
				continue
			}
			if s, ok := val.(string); ok {
				uniqueID := strings.ReplaceAll(uuid.NewString(), "-", "")
				node.Inputs[key] = fmt.Sprintf("%s_%s", s, uniqueID)
				graph[id] = node
			}
		}
	}
}
