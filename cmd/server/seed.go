package main

import (
	"context"
	"log/slog"
	"os"

	"atlasid/internal/ledger"
	"atlasid/internal/platform/config"
)

// seedTrustDocument publishes the authority's trust document to the in-process
// log at startup. On a real deployment the authority publishes to the shared
// consensus topic out of band; the demo log starts empty, so without a seed
// every resolution would come back not_found.
func seedTrustDocument(log *slog.Logger, topicLog ledger.Writer, cfg config.Server) {
	if cfg.TrustDocFile == "" {
		log.Warn("no trust document file configured, resolutions will fail until one is published",
			"env", "ATLASID_TRUST_DOC_FILE")
		return
	}

	doc, err := os.ReadFile(cfg.TrustDocFile)
	if err != nil {
		log.Error("read trust document file", "path", cfg.TrustDocFile, "error", err)
		os.Exit(1)
	}

	entry, err := topicLog.Append(context.Background(), ledger.TopicID(cfg.TrustTopicID), doc)
	if err != nil {
		log.Error("publish trust document", "topic", cfg.TrustTopicID, "error", err)
		os.Exit(1)
	}

	log.Info("trust document published",
		"topic", cfg.TrustTopicID,
		"sequence", entry.Sequence,
	)
}
