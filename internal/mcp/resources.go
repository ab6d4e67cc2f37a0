package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/hopital/internal/store"
)

const recentBatchLimit = 20

func registerStatsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"hopital://stats",
		"Facility Statistics",
		mcp.WithResourceDescription("Stored facility count, batch count, facilities per province and database size."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}

		payload := map[string]interface{}{
			"facilities":    stats.Facilities,
			"batches":       stats.Batches,
			"by_province":   stats.ByProvince,
			"db_size_bytes": stats.DBSizeBytes,
			"db_size":       humanize.Bytes(uint64(stats.DBSizeBytes)),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerBatchesResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"hopital://batches",
		"Recent Ingest Batches",
		mcp.WithResourceDescription(fmt.Sprintf("The %d most recent ingest batches with source, mode and counts.", recentBatchLimit)),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		batches, err := st.ListBatches(ctx, recentBatchLimit)
		if err != nil {
			return nil, fmt.Errorf("listing batches: %w", err)
		}

		type batchView struct {
			ID        string `json:"id"`
			Source    string `json:"source"`
			Mode      string `json:"mode"`
			Inserted  int    `json:"inserted"`
			Failures  int    `json:"failures"`
			CreatedAt string `json:"created_at"`
			Age       string `json:"age"`
		}
		out := make([]batchView, 0, len(batches))
		for _, b := range batches {
			out = append(out, batchView{
				ID:        b.ID,
				Source:    b.Source,
				Mode:      b.Mode,
				Inserted:  b.Inserted,
				Failures:  b.Failures,
				CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
				Age:       humanize.Time(b.CreatedAt),
			})
		}

		data, _ := json.MarshalIndent(out, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
