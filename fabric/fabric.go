// Package fabric stores content fragments as packets and retrieves them
// by similarity under a role-scoped governance filter. Embeddings are
// computed once at ingestion and never mutated; retrieval ranking is
// deterministic for identical inputs.
package fabric

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// summaryLimit is the maximum summary length before truncation.
const summaryLimit = 157

// Packet is one stored content fragment.
type Packet struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Content   string            `json:"content"`
	Summary   string            `json:"summary"`
	Embedding []float64         `json:"embedding"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Match is one retrieval hit with its ranking rationale.
type Match struct {
	Packet    Packet
	Score     float64
	Rationale string
}

// Fabric is the in-memory packet store.
type Fabric struct {
	mu         sync.RWMutex
	packets    []Packet
	embedder   Embedder
	governance *Governance
	logger     *slog.Logger
}

// New creates a fabric with the given governance filter. A nil embedder
// falls back to the positional fingerprint; a nil governance installs
// only the default policy.
func New(embedder Embedder, governance *Governance, logger *slog.Logger) *Fabric {
	if embedder == nil {
		embedder = FingerprintEmbedder{}
	}
	if governance == nil {
		governance = NewGovernance()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fabric{
		embedder:   embedder,
		governance: governance,
		logger:     logger.With("component", "fabric"),
	}
}

// Ingest stores a content fragment and returns the assigned packet.
// The id, summary, and embedding are fixed at this point.
func (f *Fabric) Ingest(source, content string, meta map[string]string) Packet {
	pkt := Packet{
		ID:        uuid.NewString(),
		Source:    source,
		Content:   content,
		Summary:   summarize(content),
		Embedding: f.embedder.Embed(content),
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}
	f.mu.Lock()
	f.packets = append(f.packets, pkt)
	f.mu.Unlock()
	f.logger.Debug("packet ingested", "id", pkt.ID, "source", source)
	return pkt
}

// Get returns the packet with the given id.
func (f *Fabric) Get(id string) (Packet, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, pkt := range f.packets {
		if pkt.ID == id {
			return pkt, true
		}
	}
	return Packet{}, false
}

// Len returns the number of stored packets.
func (f *Fabric) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.packets)
}

// Retrieve ranks stored packets by cosine similarity against the query,
// drops non-positive scores and packets the role may not see, and
// returns at most limit matches in descending score order. An empty
// store yields no matches and no error.
func (f *Fabric) Retrieve(role, query string, limit int) []Match {
	queryVec := f.embedder.Embed(query)

	f.mu.RLock()
	candidates := make([]Packet, len(f.packets))
	copy(candidates, f.packets)
	f.mu.RUnlock()

	matches := make([]Match, 0, len(candidates))
	for _, pkt := range candidates {
		if !f.governance.Visible(role, pkt) {
			continue
		}
		score := cosine(queryVec, pkt.Embedding)
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{
			Packet:    pkt,
			Score:     score,
			Rationale: fmt.Sprintf("cosine similarity %.4f against source %q", score, pkt.Source),
		})
	}

	// Id tie-break keeps ranking reproducible when scores collide.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Packet.ID < matches[j].Packet.ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// summarize truncates on characters, not bytes, so multi-byte content
// never yields a torn rune.
func summarize(content string) string {
	runes := []rune(content)
	if len(runes) <= summaryLimit {
		return content
	}
	return string(runes[:summaryLimit]) + "..."
}
