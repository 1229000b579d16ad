package main

import (
	"strings"

	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/internal/match"
	"github.com/warfront/simcore/internal/storage"
	gormstorage "github.com/warfront/simcore/internal/storage/gorm"
	"github.com/warfront/simcore/internal/storage/memory"
	wsstorage "github.com/warfront/simcore/internal/storage/websocket"
	"github.com/warfront/simcore/internal/worker"

	"gorm.io/gorm"
)

// createStorageBackend builds the recording backend selected by
// storage.type. A nil backend (type "none") runs the match without
// recording anything.
func createStorageBackend(cfg *config.Config, db *gorm.DB, deps worker.Dependencies, matchContext *match.Context) (storage.Backend, error) {
	switch cfg.Storage.Type {
	case "gorm":
		return gormstorage.New(gormstorage.Dependencies{
			DB:             db,
			CombatantCache: deps.CombatantCache,
			ZoneCache:      deps.ZoneCache,
			LogManager:     deps.LogManager,
			MatchContext:   matchContext,
		}), nil

	case "websocket":
		return wsstorage.New(wsstorage.Config{
			URL:   httpToWS(cfg.Storage.Websocket.URL),
			Token: cfg.Storage.Websocket.Token,
		}), nil

	case "none":
		return nil, nil

	default:
		return memory.New(cfg.Storage.Memory), nil
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL. URLs already using a
// ws scheme pass through with only the trailing slash trimmed.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
