package knowledge

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// 向量化提供方
const (
	EmbeddingProviderOpenAI  = "openai"
	EmbeddingProviderHashing = "hashing"
	EmbeddingProviderNoop    = "noop"
)

// Embedder 定义文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder 使用OpenAI Embedding API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	// text-embedding-3系列支持指定输出维度
	requestDimensions bool
	limiter           sync.Mutex
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器，dimensions<=0时使用模型默认维度
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	dims, ok := embeddingDimensions[model]
	if !ok {
		dims = 1536
	}
	requestDims := false
	if dimensions > 0 && dimensions != dims && strings.HasPrefix(model, "text-embedding-3") {
		dims = dimensions
		requestDims = true
	}

	return &OpenAIEmbedder{
		client:            openai.NewClientWithConfig(cfg),
		model:             model,
		dimensions:        dims,
		requestDimensions: requestDims,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}
	if e.client == nil {
		return nil, errors.New("openai client not initialized")
	}

	e.limiter.Lock()
	defer e.limiter.Unlock()

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	}
	if e.requestDimensions {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response empty")
	}

	embedding := resp.Data[0].Embedding
	result := make([]float32, len(embedding))
	copy(result, embedding)
	return result, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashingEmbedder 基于特征哈希的本地词袋向量，结果确定且无需外部服务
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder 创建哈希向量生成器
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &HashingEmbedder{dimensions: dimensions}
}

func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text is empty")
	}
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		// 纯符号文本（如"---"）整体作为一个特征
		tokens = []string{text}
	}

	vec := make([]float64, e.dimensions)
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()

		idx := int(sum % uint64(e.dimensions))
		// 用高位决定符号，减少哈希冲突带来的偏差
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	// L2 归一化
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	result := make([]float32, e.dimensions)
	if norm == 0 {
		return result, nil
	}
	for i, v := range vec {
		result[i] = float32(v / norm)
	}
	return result, nil
}

func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}
