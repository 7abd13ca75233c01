package model

// JobRequest 一次生成任务的全部入参，与 RunPod 调用方的 input 字段一一对应
type JobRequest struct {
	InputType   string `json:"input_type"`   // "image" 或 "video"
	PersonCount string `json:"person_count"` // "single" 或 "multi"

	Prompt   string `json:"prompt"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MaxFrame int    `json:"max_frame,omitempty"` // 0 表示未指定，按音频时长推导

	// 图片输入，三选一：本地路径 > URL > Base64
	ImagePath   string `json:"image_path,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`

	// 视频输入
	VideoPath   string `json:"video_path,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
	VideoBase64 string `json:"video_base64,omitempty"`

	// 音频输入
	WavPath   string `json:"wav_path,omitempty"`
	WavURL    string `json:"wav_url,omitempty"`
	WavBase64 string `json:"wav_base64,omitempty"`

	// 输出交付方式
	UseR2Storage  bool `json:"use_r2_storage,omitempty"` // 上传对象存储并返回 URL
	NetworkVolume bool `json:"network_volume,omitempty"` // 拷贝到共享卷并返回路径
}

// MediaSource 某一种媒体的三种来源声明
type MediaSource struct {
	Path   string
	URL    string
	Base64 string
}

// ImageSource / VideoSource / AudioSource 按媒体类型取出来源声明
func (r *JobRequest) ImageSource() MediaSource {
	return MediaSource{Path: r.ImagePath, URL: r.ImageURL, Base64: r.ImageBase64}
}

func (r *JobRequest) VideoSource() MediaSource {
	return MediaSource{Path: r.VideoPath, URL: r.VideoURL, Base64: r.VideoBase64}
}

func (r *JobRequest) AudioSource() MediaSource {
	return MediaSource{Path: r.WavPath, URL: r.WavURL, Base64: r.WavBase64}
}

// 媒体来源标记
const (
	SourcePath    = "path"    // 调用方给定本地路径
	SourceURL     = "url"     // 远程下载
	SourceBase64  = "base64"  // Base64 解码
	SourceDefault = "default" // 未提供输入，回退默认示例文件
)

// MediaReference 输入解析结果：本地绝对路径 + 来源标记。
// 交给 configurator 之前必须保证文件存在且非空。
type MediaReference struct {
	Path   string
	Source string
}

// JobResponse 任务响应。成功时按交付方式填充一种结果字段，失败时只有 Error。
type JobResponse struct {
	Status string `json:"status,omitempty"` // "success"

	// 上传交付
	R2URL    string `json:"r2_url,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	Filename string `json:"filename,omitempty"`

	// 共享卷交付
	VideoPath string `json:"video_path,omitempty"`

	// Base64 交付
	Video string `json:"video,omitempty"`

	Error string `json:"error,omitempty"`
}

// NodeArtifacts 一个产出节点对应的输出文件列表（绝对路径，有序）
type NodeArtifacts struct {
	NodeID string
	Files  []string
}

// ArtifactSet 执行产物集合。节点按 ID 排序，保证首文件选取的确定性
// （history 的 outputs 是 JSON object，Go map 不保序）。
type ArtifactSet struct {
	Nodes []NodeArtifacts
}

// Empty 判断是否没有任何产物
func (a *ArtifactSet) Empty() bool {
	for _, n := range a.Nodes {
		if len(n.Files) > 0 {
			return false
		}
	}
	return true
}

// FirstFile 取第一个非空节点的第一个文件，没有则返回空串
func (a *ArtifactSet) FirstFile() string {
	for _, n := range a.Nodes {
		if len(n.Files) > 0 {
			return n.Files[0]
		}
	}
	return ""
}
