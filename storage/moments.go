package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/pgvector/pgvector-go"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"coherence/config"
	"coherence/core"
	"coherence/timeline"
)

// MomentIndex lets users search a talk's transcript for a moment ("where did
// I mention the budget?") and jump playback there. Segments are indexed when
// a job completes.
type MomentIndex interface {
	Name() string
	Index(videoID string, segments []core.TranscriptSegment) int
	Search(videoID string, query string, topK int) []core.Hit
}

// NewMomentIndex selects the configured backend. Embedding-backed backends
// need a usable API key; anything that cannot be wired falls back to the
// in-memory term index so search always works.
func NewMomentIndex(cfg *config.Config, logger *logrus.Logger) MomentIndex {
	switch cfg.MomentIndex {
	case "milvus":
		if !cfg.HasValidAPI() {
			logger.Warn("Milvus index requires an embedding API key, falling back to memory index")
			break
		}
		s, err := newMilvusMomentIndex(cfg)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Milvus index, falling back to memory index")
			break
		}
		logger.Info("Moment index initialized: milvus")
		return s
	case "pgvector":
		if !cfg.HasValidAPI() {
			logger.Warn("pgvector index requires an embedding API key, falling back to memory index")
			break
		}
		s, err := newPgVectorMomentIndex(cfg)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize pgvector index, falling back to memory index")
			break
		}
		logger.Info("Moment index initialized: pgvector")
		return s
	}
	logger.Info("Moment index initialized: memory")
	return NewMemoryMomentIndex()
}

// ---------------- Memory implementation (kept for fallback) ----------------

type MemoryMomentIndex struct {
	mu   sync.RWMutex
	docs map[string][]memoryDoc // videoID -> docs
}

type memoryDoc struct {
	start, end float64
	text       string
	embed      map[string]float64 // term -> weight
}

func NewMemoryMomentIndex() *MemoryMomentIndex {
	return &MemoryMomentIndex{docs: make(map[string][]memoryDoc)}
}

func (s *MemoryMomentIndex) Name() string { return "memory" }

func (s *MemoryMomentIndex) Index(videoID string, segments []core.TranscriptSegment) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]memoryDoc, 0, len(segments))
	for _, seg := range segments {
		docs = append(docs, memoryDoc{
			start: seg.Start,
			end:   seg.End,
			text:  seg.Text,
			embed: embedTerms(seg.Text),
		})
	}
	s.docs[videoID] = docs
	return len(docs)
}

func (s *MemoryMomentIndex) Search(videoID string, query string, topK int) []core.Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.docs[videoID]
	qv := embedTerms(query)
	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(docs))
	for i, d := range docs {
		scores = append(scores, scored{i, cosine(qv, d.embed)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK <= 0 || topK > len(scores) {
		topK = min(len(scores), 5)
	}
	hits := make([]core.Hit, 0, topK)
	for _, sc := range scores[:topK] {
		d := docs[sc.i]
		hits = append(hits, core.Hit{Score: sc.score, Start: d.start, End: d.end, Text: d.text})
	}
	return hits
}

func embedTerms(text string) map[string]float64 {
	m := map[string]float64{}
	for _, t := range strings.Fields(strings.ToLower(text)) {
		m[t]++
	}
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

func cosine(a, b map[string]float64) float64 {
	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot
}

// ---------------- pgvector implementation ----------------

type PgVectorMomentIndex struct {
	conn *pgx.Conn
	oa   *openai.Client
	cfg  *config.Config
}

func newPgVectorMomentIndex(cfg *config.Config) (*PgVectorMomentIndex, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not configured")
	}
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PgVectorMomentIndex{conn: conn, oa: openaiClient(cfg), cfg: cfg}
	if err := s.ensureTable(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PgVectorMomentIndex) Name() string { return "pgvector" }

func (s *PgVectorMomentIndex) ensureTable(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	query := `
		CREATE TABLE IF NOT EXISTS transcript_moments (
			id SERIAL PRIMARY KEY,
			video_id VARCHAR(255) NOT NULL,
			segment_id VARCHAR(255) NOT NULL,
			start_time FLOAT NOT NULL,
			end_time FLOAT NOT NULL,
			text TEXT NOT NULL,
			embedding vector(1536),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(video_id, segment_id)
		);
	`
	if _, err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create transcript_moments table: %w", err)
	}
	if _, err := s.conn.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_transcript_moments_video_id ON transcript_moments(video_id);"); err != nil {
		return fmt.Errorf("create video_id index: %w", err)
	}
	return nil
}

func (s *PgVectorMomentIndex) Index(videoID string, segments []core.TranscriptSegment) int {
	ctx := context.Background()
	count := 0
	for _, seg := range segments {
		embedding, err := embed(s.oa, s.cfg, seg.Text)
		if err != nil {
			continue // skip segments that fail to embed
		}
		vec := pgvector.NewVector(embedding)
		_, err = s.conn.Exec(ctx, `
			INSERT INTO transcript_moments (video_id, segment_id, start_time, end_time, text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (video_id, segment_id)
			DO UPDATE SET start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding
		`, videoID, fmt.Sprintf("%s_%.2f", videoID, seg.Start), seg.Start, seg.End, seg.Text, vec)
		if err != nil {
			continue
		}
		count++
	}
	return count
}

func (s *PgVectorMomentIndex) Search(videoID string, query string, topK int) []core.Hit {
	if topK <= 0 {
		topK = 5
	}
	embedding, err := embed(s.oa, s.cfg, query)
	if err != nil {
		return nil
	}
	vec := pgvector.NewVector(embedding)
	ctx := context.Background()
	rows, err := s.conn.Query(ctx, `
		SELECT start_time, end_time, text, 1 - (embedding <=> $1) AS similarity
		FROM transcript_moments
		WHERE video_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vec, videoID, topK)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var hits []core.Hit
	for rows.Next() {
		var h core.Hit
		if err := rows.Scan(&h.Start, &h.End, &h.Text, &h.Score); err != nil {
			continue
		}
		hits = append(hits, h)
	}
	return hits
}

// ---------------- Milvus implementation ----------------

type MilvusMomentIndex struct {
	mc   client.Client
	coll string
	dim  int
	oa   *openai.Client
	cfg  *config.Config
}

func newMilvusMomentIndex(cfg *config.Config) (*MilvusMomentIndex, error) {
	mc, err := client.NewClient(context.Background(), client.Config{
		Address:  cfg.MilvusAddr,
		Username: cfg.MilvusUsername,
		Password: cfg.MilvusPassword,
		APIKey:   cfg.MilvusAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	s := &MilvusMomentIndex{mc: mc, coll: cfg.MilvusCollection, dim: 1536, oa: openaiClient(cfg), cfg: cfg}
	if err := s.ensureSchemaAndIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusMomentIndex) Name() string { return "milvus" }

func (s *MilvusMomentIndex) ensureSchemaAndIndex() error {
	ctx := context.Background()
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema()
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("video_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("start").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("end").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusMomentIndex) Index(videoID string, segments []core.TranscriptSegment) int {
	if len(segments) == 0 {
		return 0
	}
	videoIDs := make([]string, 0, len(segments))
	starts := make([]float64, 0, len(segments))
	ends := make([]float64, 0, len(segments))
	texts := make([]string, 0, len(segments))
	vectors := make([][]float32, 0, len(segments))

	for _, seg := range segments {
		v, err := embed(s.oa, s.cfg, seg.Text)
		if err != nil {
			continue
		}
		videoIDs = append(videoIDs, videoID)
		starts = append(starts, seg.Start)
		ends = append(ends, seg.End)
		texts = append(texts, seg.Text)
		vectors = append(vectors, v)
	}
	if len(vectors) == 0 {
		return 0
	}

	ctx := context.Background()
	_, err := s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnVarChar("video_id", videoIDs),
		entity.NewColumnDouble("start", starts),
		entity.NewColumnDouble("end", ends),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		return 0
	}
	return len(vectors)
}

func (s *MilvusMomentIndex) Search(videoID string, query string, topK int) []core.Hit {
	v, err := embed(s.oa, s.cfg, query)
	if err != nil {
		return nil
	}
	if topK <= 0 {
		topK = 5
	}
	ctx := context.Background()
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	filter := fmt.Sprintf("video_id == \"%s\"", strings.ReplaceAll(videoID, "\"", "\\\""))
	res, err := s.mc.Search(ctx, s.coll, []string{}, filter, []string{"start", "end", "text"}, []entity.Vector{entity.FloatVector(v)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil
	}
	var hits []core.Hit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var h core.Hit
			if c, ok := cols["start"].(*entity.ColumnDouble); ok {
				if data := c.Data(); i < len(data) {
					h.Start = data[i]
				}
			}
			if c, ok := cols["end"].(*entity.ColumnDouble); ok {
				if data := c.Data(); i < len(data) {
					h.End = data[i]
				}
			}
			if c, ok := cols["text"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					h.Text = data[i]
				}
			}
			h.Score = float64(r.Scores[i])
			hits = append(hits, h)
		}
	}
	return hits
}

// ---------------- embeddings and answer synthesis ----------------

func openaiClient(cfg *config.Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

func embed(cli *openai.Client, cfg *config.Config, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(cfg.EmbeddingModel),
		Input: []string{strings.ToLower(text)},
	}
	resp, err := cli.CreateEmbeddings(context.Background(), req)
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

// SynthesizeAnswer turns search hits into a short answer with timestamps.
// Uses the chat model when configured, otherwise plain concatenation.
func SynthesizeAnswer(cfg *config.Config, question string, hits []core.Hit) string {
	if len(hits) == 0 {
		return "No matching moments found."
	}
	if !cfg.HasValidAPI() {
		return synthesizeAnswerSimple(hits)
	}

	contextParts := make([]string, 0, len(hits))
	for i, hit := range hits {
		contextParts = append(contextParts, fmt.Sprintf("Moment %d [%s]: %s", i+1, timeline.FormatTimestamp(hit.Start), hit.Text))
	}
	prompt := fmt.Sprintf(`You are a presentation coaching assistant. Based on the retrieved transcript moments below, answer the speaker's question. Cite the relevant timestamps.

Retrieved moments:
%s

Question: %s`, strings.Join(contextParts, "\n\n"), question)

	cli := openaiClient(cfg)
	resp, err := cli.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	})
	if err != nil || len(resp.Choices) == 0 {
		return synthesizeAnswerSimple(hits)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

func synthesizeAnswerSimple(hits []core.Hit) string {
	times := make([]string, 0, len(hits))
	for _, h := range hits {
		times = append(times, timeline.FormatTimestamp(h.Start))
	}
	return "Relevant moments at: " + strings.Join(times, ", ")
}
