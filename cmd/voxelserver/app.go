package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/YashM20/voxel-builder-threejs/internal/audit"
	"github.com/YashM20/voxel-builder-threejs/internal/config"
	"github.com/YashM20/voxel-builder-threejs/internal/gameserver"
	"github.com/YashM20/voxel-builder-threejs/internal/rng"
	"github.com/YashM20/voxel-builder-threejs/internal/scripting"
	"github.com/YashM20/voxel-builder-threejs/internal/server"
	"github.com/YashM20/voxel-builder-threejs/internal/session"
	"github.com/YashM20/voxel-builder-threejs/internal/transport/static"
	"github.com/YashM20/voxel-builder-threejs/internal/transport/ws"
	"github.com/YashM20/voxel-builder-threejs/internal/world"
)

// app is the assembled server.
type app struct {
	grid      *world.Grid
	sessions  *session.Registry
	handler   *gameserver.Handler
	wsServer  *ws.Server
	static    *static.Server
	audit     *audit.Log
	lifecycle *server.Lifecycle
}

// newApp builds and seeds the world and wires every service into a lifecycle.
//
// Precondition: cfg must be valid; logger must be non-nil.
// Postcondition: Returns an app ready for lifecycle.Run, or an error if the
// world could not be generated or the catalog could not be loaded.
func newApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	src := rng.FromSeed(cfg.World.Seed)

	grid, err := world.NewGrid(cfg.World.Width, cfg.World.Height, cfg.World.Depth)
	if err != nil {
		return nil, fmt.Errorf("creating grid: %w", err)
	}
	gen, err := newGenerator(cfg.World, logger)
	if err != nil {
		return nil, err
	}
	if err := gen.Generate(grid, src); err != nil {
		return nil, fmt.Errorf("generating world: %w", err)
	}
	logger.Info("world initialized",
		zap.Int("width", cfg.World.Width),
		zap.Int("height", cfg.World.Height),
		zap.Int("depth", cfg.World.Depth),
		zap.Int("empty_cells", grid.Count(world.Empty)),
	)

	var catalog *world.Catalog
	if cfg.World.Catalog != "" {
		catalog, err = world.LoadCatalog(cfg.World.Catalog)
		if err != nil {
			return nil, err
		}
		logger.Info("block catalog loaded", zap.Int("blocks", catalog.Len()))
	}

	a := &app{grid: grid}
	opts := gameserver.Options{
		OutboxSize:     cfg.Server.OutboundQueue,
		EditsPerSecond: cfg.RateLimit.EditsPerSecond,
		EditBurst:      cfg.RateLimit.Burst,
		Catalog:        catalog,
	}
	if cfg.Audit.Enabled {
		a.audit = audit.NewLog(cfg.Audit.Dir, logger)
		opts.Auditor = a.audit
		logger.Info("audit trail enabled", zap.String("dir", cfg.Audit.Dir))
	}

	a.sessions = session.NewRegistry(src, cfg.Session.Palette)
	hub := gameserver.NewHub(a.sessions, logger)
	a.handler = gameserver.NewHandler(grid, a.sessions, hub, opts, logger)

	wsCfg := ws.Config{
		Addr:            cfg.Server.Addr(),
		WriteTimeout:    cfg.Server.WriteTimeout,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	a.lifecycle = server.NewLifecycle(logger)
	if cfg.Static.Enabled {
		a.static = static.NewServer(cfg.Static.Addr(), cfg.Static.Dir, logger)
		if cfg.SharedListener() {
			wsCfg.Fallback = a.static.Handler()
			logger.Info("serving static files on the websocket listener",
				zap.String("addr", cfg.Server.Addr()),
				zap.String("dir", cfg.Static.Dir),
			)
		} else {
			a.lifecycle.Add("static", &server.FuncService{
				StartFn: a.static.ListenAndServe,
				StopFn:  a.static.Stop,
			})
		}
	}
	a.wsServer = ws.NewServer(wsCfg, a.handler, logger)
	a.lifecycle.Add("websocket", &server.FuncService{
		StartFn: a.wsServer.ListenAndServe,
		StopFn:  a.wsServer.Stop,
	})
	return a, nil
}

// newGenerator selects the Lua generator when a script is configured and the
// built-in terrain otherwise.
func newGenerator(cfg config.WorldConfig, logger *zap.Logger) (world.Generator, error) {
	if cfg.GeneratorScript != "" {
		gen, err := scripting.LoadLuaGenerator(cfg.GeneratorScript, cfg.ScriptInstructionLimit, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using scripted world generator", zap.String("script", cfg.GeneratorScript))
		return gen, nil
	}
	gen := world.NewDefaultGenerator()
	gen.GroundBlock = cfg.GroundBlock
	gen.ScatterBlock = cfg.ScatterBlock
	gen.ScatterCount = cfg.ScatterCount
	return gen, nil
}

// Close releases resources not owned by a lifecycle service.
func (a *app) Close() {
	if a.audit != nil {
		_ = a.audit.Close()
	}
}
