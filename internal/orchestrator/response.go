package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chaekko/chaekko/internal/backend"
	"github.com/chaekko/chaekko/internal/grouping"
)

// Item is one rendered search result.
type Item struct {
	MaterialID   string  `json:"materialId"`
	Title        string  `json:"title"`
	Author       string  `json:"author,omitempty"`
	Publisher    string  `json:"publisher,omitempty"`
	PublishYear  int     `json:"publishYear,omitempty"`
	EditionLabel string  `json:"editionLabel,omitempty"`
	Volume       string  `json:"volume,omitempty"`
	MaterialType string  `json:"materialType,omitempty"`
	CoverURL     string  `json:"coverUrl,omitempty"`
	Score        float64 `json:"score"`
	Rank         int     `json:"rank"`
	// GroupSize counts collapsed editions behind this item.
	GroupSize int `json:"groupSize,omitempty"`
}

// StageDebug is the per-stage execution record in debug output.
type StageDebug struct {
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	ElapsedMs int64  `json:"elapsedMs"`
	Hits      int    `json:"hits"`
	DSL       string `json:"dsl,omitempty"`
	Note      string `json:"note,omitempty"`
}

// DebugInfo is attached when the request asked for debug output.
type DebugInfo struct {
	QueryTextSource   string       `json:"queryTextSource"`
	FusionMethod      string       `json:"fusionMethod"`
	AppliedFallbackID string       `json:"appliedFallbackId,omitempty"`
	Stages            []StageDebug `json:"stages"`
}

// CacheInfo describes how the page cache served this response.
type CacheInfo struct {
	Hit            bool   `json:"hit"`
	AgeMs          int64  `json:"ageMs,omitempty"`
	RemainingTTLMs int64  `json:"remainingTtlMs,omitempty"`
	ETag           string `json:"etag,omitempty"`
}

// Response is one search result page.
type Response struct {
	TraceID   string     `json:"traceId"`
	RequestID string     `json:"requestId"`
	Strategy  string     `json:"strategy"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	Size      int        `json:"size"`
	TookMs    int64      `json:"tookMs"`
	Items     []Item     `json:"items"`
	Cache     CacheInfo  `json:"cache"`
	Debug     *DebugInfo `json:"debug,omitempty"`
}

// etag fingerprints the visible page: IDs, scores and titles. Identical
// pages get identical tags regardless of timing fields.
func etag(items []Item) string {
	h := sha256.New()
	for _, item := range items {
		fmt.Fprintf(h, "%s|%.6f|%s\n", item.MaterialID, item.Score, item.Title)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// itemFromMaterial renders a grouped material with its enrichment doc.
func itemFromMaterial(m grouping.Material, doc backend.Document, groupSize int) Item {
	item := Item{
		MaterialID:   m.ID,
		Title:        m.Title,
		Author:       m.Author,
		EditionLabel: m.EditionLabel,
		Volume:       m.Volume,
		Score:        m.Score,
		Rank:         m.Rank,
		GroupSize:    groupSize,
	}
	if doc != nil {
		if item.Title == "" {
			item.Title = doc.Str("title")
		}
		if item.Author == "" {
			item.Author = doc.Str("author")
		}
		item.Publisher = doc.Str("publisher")
		item.MaterialType = doc.Str("materialType")
		item.CoverURL = doc.Str("coverUrl")
		if year, ok := doc["publishYear"]; ok {
			switch y := year.(type) {
			case int:
				item.PublishYear = y
			case int64:
				item.PublishYear = int(y)
			case float64:
				item.PublishYear = int(y)
			}
		}
	}
	return item
}

// materialFromDoc builds the grouping input for one fused candidate.
func materialFromDoc(id string, score float64, rank int, doc backend.Document) grouping.Material {
	m := grouping.Material{ID: id, Score: score, Rank: rank}
	if doc != nil {
		m.Title = doc.Str("title")
		m.Author = doc.Str("author")
		m.EditionLabel = doc.Str("editionLabel")
		m.Volume = strings.TrimSpace(doc.Str("volume"))
	}
	return m
}
