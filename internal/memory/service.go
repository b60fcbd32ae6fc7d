package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

// SaveMemoryToolName is the tool whose presence in a session means the agent
// already recorded the exchange itself.
const SaveMemoryToolName = "save_memory"

// minResponseLen is the shortest agent reply worth recording from a session.
const minResponseLen = 20

// Screener flags and redacts harmful text. *harm.Screen satisfies it.
type Screener interface {
	DetectTerm(text string) (string, bool)
	Rewrite(text string) string
}

// Service exposes a Store to ADK agents as a memory.Service.
type Service struct {
	store       Store
	embedder    Embedder // optional; enables similarity search
	screener    Screener // optional; redacts recorded queries
	dropHarmful bool
	importance  float64
	tier        Tier
	logger      *slog.Logger
}

// ServiceConfig configures a Service. Unset values fall back to the
// harness defaults (importance 0.5, tier warm).
type ServiceConfig struct {
	Embedder Embedder
	// Screener rewrites a harmful query before it is recorded or embedded.
	Screener Screener
	// DropHarmful skips sessions whose query is harmful instead of
	// recording the rewrite. It requires a Screener.
	DropHarmful bool
	Importance  *float64
	Tier        Tier
	Logger      *slog.Logger
}

// NewService creates a new memory service over store.
func NewService(store Store, cfg ServiceConfig) *Service {
	s := &Service{
		store:       store,
		embedder:    cfg.Embedder,
		screener:    cfg.Screener,
		dropHarmful: cfg.DropHarmful,
		importance:  0.5,
		tier:        cfg.Tier,
		logger:      cfg.Logger,
	}
	if cfg.Importance != nil {
		s.importance = *cfg.Importance
	}
	if s.tier == "" {
		s.tier = TierWarm
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// AddSession implements memory.Service interface.
// It records the last user query and agent reply of the session as an
// experience, unless the agent already saved it through the save tool.
// With a Screener the recorded and embedded query is the rewritten one.
func (s *Service) AddSession(ctx context.Context, sess session.Session) error {
	var userQuery string
	var agentResponse string
	hasExplicitSave := false

	for event := range sess.Events().All() {
		if event.Content == nil {
			continue
		}

		textParts := extractTextFromContent([]*genai.Content{event.Content})
		if len(textParts) > 0 {
			if event.Author == "user" {
				userQuery = strings.Join(textParts, " ")
			} else {
				agentResponse = strings.Join(textParts, " ")
			}
		}

		for _, part := range event.Content.Parts {
			if part != nil && part.FunctionCall != nil && part.FunctionCall.Name == SaveMemoryToolName {
				hasExplicitSave = true
				break
			}
		}
	}

	// If the exchange was explicitly saved via tool, skip to avoid duplicates
	if hasExplicitSave {
		return nil
	}

	if userQuery == "" || len(agentResponse) <= minResponseLen {
		return nil
	}

	if s.screener != nil {
		if term, harmful := s.screener.DetectTerm(userQuery); harmful {
			if s.dropHarmful {
				s.logger.InfoContext(ctx, "session not recorded", "session", sess.ID(), "term", term)
				return nil
			}
			userQuery = s.screener.Rewrite(userQuery)
		}
	}

	record := NewRecord(KindExperience, Exchange{
		TaskID:   sess.ID(),
		Prompt:   userQuery,
		Response: agentResponse,
	}, s.importance, s.tier)

	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, userQuery)
		if err != nil {
			return fmt.Errorf("failed to generate embedding for session: %w", err)
		}
		record.Embedding = vec
	}

	if err := s.store.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save session to memory: %w", err)
	}
	s.logger.InfoContext(ctx, "session recorded", "session", sess.ID(), "record", record.ID)
	return nil
}

// Search implements memory.Service interface.
// With an embedder and a store that supports it, experiences are ranked by
// similarity to the query. Otherwise experiences are taken in importance
// order and filtered by a case-insensitive substring match on the query.
func (s *Service) Search(ctx context.Context, req *adkmemory.SearchRequest) (*adkmemory.SearchResponse, error) {
	records, err := s.search(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	memories := make([]adkmemory.Entry, 0, len(records))
	for _, r := range records {
		content := RenderContent(r.Content)
		if content == "" {
			continue
		}

		// genai.Text returns []*Content, we need the first one
		contentParts := genai.Text(content)
		if len(contentParts) == 0 {
			continue
		}

		memories = append(memories, adkmemory.Entry{
			Content:   contentParts[0],
			Author:    "system",
			Timestamp: r.CreatedAt,
		})
	}

	return &adkmemory.SearchResponse{Memories: memories}, nil
}

func (s *Service) search(ctx context.Context, query string) ([]Record, error) {
	if searcher, ok := s.store.(SimilaritySearcher); ok && s.embedder != nil && query != "" {
		vec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to generate query embedding: %w", err)
		}
		scored, err := searcher.SearchSimilar(ctx, KindExperience, vec, DefaultRetrieveLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to search similar records: %w", err)
		}
		records := make([]Record, len(scored))
		for i, sr := range scored {
			records[i] = sr.Record
		}
		return records, nil
	}

	all, err := s.store.Retrieve(ctx, KindExperience, math.MaxInt32)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve experiences: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	records := make([]Record, 0, DefaultRetrieveLimit)
	for _, r := range all {
		if needle != "" && !strings.Contains(strings.ToLower(RenderContent(r.Content)), needle) {
			continue
		}
		records = append(records, r)
		if len(records) == DefaultRetrieveLimit {
			break
		}
	}
	return records, nil
}

// RenderContent turns record content into prompt-ready text. Exchanges, and
// their decoded-JSON form from SQL stores, render as prompt/response pairs.
func RenderContent(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	case Exchange:
		return renderExchange(c.Prompt, c.Response)
	case *Exchange:
		if c == nil {
			return ""
		}
		return renderExchange(c.Prompt, c.Response)
	case map[string]any:
		prompt, _ := c["prompt"].(string)
		response, _ := c["response"].(string)
		if prompt != "" || response != "" {
			return renderExchange(prompt, response)
		}
	}

	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Sprint(content)
	}
	return string(data)
}

func renderExchange(prompt, response string) string {
	var parts []string
	if prompt != "" {
		parts = append(parts, "Prompt: "+prompt)
	}
	if response != "" {
		parts = append(parts, "Response: "+response)
	}
	return strings.Join(parts, "\n")
}

// extractTextFromContent extracts text from genai.Content parts
func extractTextFromContent(content []*genai.Content) []string {
	var texts []string
	for _, c := range content {
		for _, part := range c.Parts {
			if part == nil {
				continue
			}
			if text := part.Text; text != "" {
				texts = append(texts, text)
			}
		}
	}
	return texts
}

var _ adkmemory.Service = (*Service)(nil)
