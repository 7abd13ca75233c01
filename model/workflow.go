package model

// PromptNode 表示 ComfyUI workflow 中的一个节点
type PromptNode struct {
	Inputs    map[string]interface{} `json:"inputs"`          // 节点输入参数
	ClassType string                 `json:"class_type"`      // 节点类型
	Meta      *NodeMeta              `json:"_meta,omitempty"` // 节点元信息（模板中可能缺省）
}

// NodeMeta 是节点的元数据
type NodeMeta struct {
	Title string `json:"title"` // 节点标题
}

// WorkflowGraph 是完整的 workflow 文档：节点 ID -> 节点定义
type WorkflowGraph map[string]PromptNode

// SetInput 有条件地覆盖指定节点的某个输入参数。
// 节点不存在时静默跳过并返回 false，容忍模板结构漂移（调用方自行收集 warning）。
func (g WorkflowGraph) SetInput(nodeID, key string, value interface{}) bool {
	node, ok := g[nodeID]
	if !ok {
		return false
	}
	if node.Inputs == nil {
		node.Inputs = make(map[string]interface{})
	}
	node.Inputs[key] = value
	g[nodeID] = node
	return true
}

// HasNode 判断节点是否存在
func (g WorkflowGraph) HasNode(nodeID string) bool {
	_, ok := g[nodeID]
	return ok
}
