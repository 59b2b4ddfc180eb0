package lumen

// --- Conversation types ---

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant", "tool"
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// --- Agent types ---

// AgentStep is one completed Thought/Action/Observation cycle of a run.
type AgentStep struct {
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action"`
	ActionInput string `json:"action_input"`
	Observation string `json:"observation"`
}

// --- Retrieval types ---

type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a contiguous slice of a document. Text carries an OverlapLen-byte
// prefix copied from the previous chunk; Text[OverlapLen:] is the chunk's own
// span, which starts at byte StartOffset of the document content.
type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	OverlapLen  int    `json:"overlap_len"`
	Index       int    `json:"index"`
	Overflow    bool   `json:"overflow,omitempty"` // hard cut inside an unbreakable run
}

// Core returns the chunk text without its overlap prefix.
func (c Chunk) Core() string {
	return c.Text[c.OverlapLen:]
}

type IndexEntry struct {
	ChunkID   string            `json:"chunk_id"`
	Embedding []float32         `json:"-"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type ScoredEntry struct {
	IndexEntry
	Score float32 `json:"score"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: text}
}

func ToolMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: text}
}
