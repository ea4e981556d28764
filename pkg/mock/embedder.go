// Package mock provides deterministic in-process fakes of the external
// services used by agents and the memory store.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultEmbeddingDim is the vector size produced by Embedder
const DefaultEmbeddingDim = 256

// Embedder is a bag-of-words hashing embedder. Identical text yields identical
// vectors, and texts without shared words are (nearly) orthogonal.
type Embedder struct {
	Dim int
	// Vectors overrides the embedding of an exact input text
	Vectors map[string][]float32
	// Err is returned by every call when set
	Err error

	mu    sync.Mutex
	calls []*interfaces.EmbedInput
}

var _ interfaces.Embedder = (*Embedder)(nil)

func NewEmbedder() *Embedder {
	return &Embedder{Dim: DefaultEmbeddingDim}
}

func (e *Embedder) Embed(ctx context.Context, input *interfaces.EmbedInput) ([]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, input)
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	if input == nil || (input.Text == "" && len(input.Image) == 0) {
		return nil, goerr.New("embedding input is empty")
	}
	if v, ok := e.Vectors[input.Text]; ok {
		return append([]float32(nil), v...), nil
	}

	dim := e.Dim
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	vec := make([]float32, dim)
	for _, token := range Tokenize(input.Text) {
		vec[bucket(token, dim)] += 1
	}
	if len(input.Image) > 0 {
		vec[bucket(string(input.Image), dim)] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Calls returns the inputs received so far
func (e *Embedder) Calls() []*interfaces.EmbedInput {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*interfaces.EmbedInput(nil), e.calls...)
}

// Tokenize lowercases text and splits it on anything that is not a letter or digit
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func bucket(token string, dim int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(dim))
}
