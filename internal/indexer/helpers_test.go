package indexer

import (
	"io"
	"log/slog"

	"github.com/reposeek/reposeek/internal/embed"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockEmbedder() *embed.MockProvider {
	return embed.NewMockProvider()
}
