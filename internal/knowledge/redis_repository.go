package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/guarded-reply/pkg/logging"
)

const docsKeyPrefix = "kb:docs:"

const (
	// MinScore drops weak lexical matches so they do not count as sources.
	MinScore = 0.25
	// titleBoost is added when the title alone matches well.
	titleBoost = 0.2
)

// RedisRepository stores tenant documents in a Redis hash keyed by source id
// and answers searches with lexical overlap scoring.
type RedisRepository struct {
	client redis.Cmdable
	logger *logging.Logger
}

// NewRedisRepository creates a Redis-backed knowledge repository.
func NewRedisRepository(client redis.Cmdable, logger *logging.Logger) *RedisRepository {
	if client == nil {
		panic("knowledge: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisRepository{client: client, logger: logger}
}

// Put upserts documents for a tenant.
func (r *RedisRepository) Put(ctx context.Context, tenantID string, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	fields := make([]interface{}, 0, len(docs)*2)
	for _, d := range docs {
		if strings.TrimSpace(d.SourceID) == "" {
			return fmt.Errorf("knowledge: document source id required")
		}
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("knowledge: marshal document %s: %w", d.SourceID, err)
		}
		fields = append(fields, d.SourceID, payload)
	}
	if err := r.client.HSet(ctx, docsKey(tenantID), fields...).Err(); err != nil {
		return fmt.Errorf("knowledge: store documents: %w", err)
	}
	return nil
}

// Delete removes documents by source id.
func (r *RedisRepository) Delete(ctx context.Context, tenantID string, sourceIDs ...string) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, docsKey(tenantID), sourceIDs...).Err(); err != nil {
		return fmt.Errorf("knowledge: delete documents: %w", err)
	}
	return nil
}

// List returns every document of a tenant ordered by source id.
func (r *RedisRepository) List(ctx context.Context, tenantID string) ([]Document, error) {
	raw, err := r.client.HGetAll(ctx, docsKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("knowledge: load documents: %w", err)
	}
	docs := make([]Document, 0, len(raw))
	for id, payload := range raw {
		var d Document
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			r.logger.Warn("skipping malformed knowledge document", "tenant_id", tenantID, "source_id", id, "error", err)
			continue
		}
		if d.SourceID == "" {
			d.SourceID = id
		}
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceID < docs[j].SourceID })
	return docs, nil
}

// Search ranks the tenant's documents against query and returns at most
// maxSnippets snippets whose combined text fits within maxChars runes.
func (r *RedisRepository) Search(ctx context.Context, tenantID, query string, maxSnippets, maxChars int) (Result, error) {
	if maxSnippets <= 0 || strings.TrimSpace(query) == "" {
		return Result{}, nil
	}
	docs, err := r.List(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}

	q := terms(query)
	scored := make([]Snippet, 0, len(docs))
	for _, d := range docs {
		score := overlap(q, terms(d.Title+" "+d.Text))
		if d.Title != "" && overlap(q, terms(d.Title)) >= 0.5 {
			score += titleBoost
		}
		if score > 1 {
			score = 1
		}
		if score < MinScore {
			continue
		}
		scored = append(scored, Snippet{SourceID: d.SourceID, Title: d.Title, Text: d.Text, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	var res Result
	budget := maxChars
	for _, s := range scored {
		if len(res.Snippets) == maxSnippets {
			break
		}
		if maxChars > 0 {
			if budget <= 0 {
				break
			}
			s.Text = clip(s.Text, budget)
			budget -= utf8.RuneCountInString(s.Text)
		}
		res.Snippets = append(res.Snippets, s)
	}
	res.HasAnySource = len(res.Snippets) > 0
	return res, nil
}

func clip(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

func docsKey(tenantID string) string {
	return docsKeyPrefix + tenantID
}
