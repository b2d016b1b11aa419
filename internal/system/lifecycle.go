package system

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/KevinKickass/StationCore/internal/actuator"
	"github.com/KevinKickass/StationCore/internal/api/rest"
	"github.com/KevinKickass/StationCore/internal/api/websocket"
	"github.com/KevinKickass/StationCore/internal/config"
	"github.com/KevinKickass/StationCore/internal/coordination"
	"github.com/KevinKickass/StationCore/internal/driver"
	"github.com/KevinKickass/StationCore/internal/input"
	"github.com/KevinKickass/StationCore/internal/modbus"
	"github.com/KevinKickass/StationCore/internal/notify"
	"github.com/KevinKickass/StationCore/internal/profiles"
	"github.com/KevinKickass/StationCore/internal/sequence"
	"github.com/KevinKickass/StationCore/internal/storage"
	"go.uber.org/zap"
)

// LifecycleManager is the application context: it owns every component,
// wires them at construction and tears them down in dependency order on
// shutdown. Nothing hangs off package-level globals.
type LifecycleManager struct {
	config       *config.Config
	logger       *zap.Logger
	storage      *storage.PostgresClient
	wsHub        *websocket.Hub
	channel      *coordination.Channel
	controller   *actuator.Controller
	orchestrator *sequence.Orchestrator
	inputSource  input.Source
	restServer   *rest.Server

	stateMu      sync.RWMutex
	currentState ProcessState

	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		currentState: StateInitializing,
	}

	lm.wsHub = websocket.NewHub(logger)

	// Optional run log. When disabled the orchestrator runs without a
	// recorder; nothing is ever read back from the database.
	var recorder sequence.Recorder
	if cfg.Database.Enabled {
		db, err := storage.NewPostgresClient(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect run log database: %w", err)
		}
		lm.storage = db
		recorder = storage.NewRunLog(db, cfg.Station.ID, logger)
		logger.Info("Run log enabled")
	}

	notifier := notify.NewNotifier(cfg.Notify.Address, cfg.Notify.Enabled, logger)

	lm.channel = coordination.NewChannel(cfg.Network, logger)

	lm.orchestrator = sequence.NewOrchestrator(
		lm.channel,
		notifier,
		recorder,
		lm.wsHub,
		sequence.Config{
			OperationID: cfg.Motion.OperationID,
			LoopDelay:   cfg.Motion.LoopDelay,
		},
		logger,
	)

	units, err := buildUnits(cfg, logger)
	if err != nil {
		return nil, err
	}

	lm.controller = actuator.NewController(units, actuator.Config{
		HomingRequired:  cfg.Motion.HomingRequired,
		HomingTimeout:   cfg.Motion.HomingTimeout,
		PollInterval:    cfg.Motion.PollInterval,
		StartGrace:      cfg.Motion.StartGrace,
		CompletionLimit: cfg.Motion.CompletionLimit,
		RetractOnStop:   cfg.Motion.RetractOnStop,
		RetractVelocity: cfg.Motion.RetractVelocity,
	}, lm.orchestrator, logger)

	lm.orchestrator.AttachController(lm.controller)
	lm.channel.SetHandler(lm.orchestrator)

	if cfg.Input.Enabled {
		lm.inputSource = input.NewKeyReader(os.Stdin, lm.orchestrator, logger)
	}

	lm.restServer = rest.NewServer(cfg, lm, logger, lm.wsHub)

	return lm, nil
}

// buildUnits constructs one driver per configured actuator. Units behind
// the same gateway address share one Modbus client.
func buildUnits(cfg *config.Config, logger *zap.Logger) ([]actuator.Unit, error) {
	if len(cfg.Station.Actuators) == 0 {
		logger.Info("No actuators configured, station is coordination-only")
		return nil, nil
	}

	loader, err := profiles.NewLoader(cfg.Profiles.SearchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}

	clients := make(map[string]*modbus.Client)
	units := make([]actuator.Unit, 0, len(cfg.Station.Actuators))

	for _, ac := range cfg.Station.Actuators {
		profileName := ac.Profile
		if profileName == "" {
			profileName = "azd"
		}

		profile, err := loader.Load(profileName)
		if err != nil {
			return nil, fmt.Errorf("actuator %s: %w", ac.Name, err)
		}

		client, ok := clients[ac.Address]
		if !ok {
			client = modbus.NewClient(ac.Address, cfg.Modbus.DefaultTimeout)
			clients[ac.Address] = client
		}

		units = append(units, actuator.Unit{
			Name:   ac.Name,
			Driver: driver.NewAZDriver(ac.Name, ac.UnitID, client, profile, logger),
		})
	}

	return units, nil
}

// Start brings the whole station up: hub, coordination listener, API, local
// input, then the boot homing sequence.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting station",
		zap.String("station_id", lm.config.Station.ID),
		zap.String("station_name", lm.config.Station.Name))

	lm.setState(StateInitializing)

	go lm.wsHub.Run()

	lm.orchestrator.Run()

	if err := lm.channel.Start(); err != nil {
		lm.setState(StateError)
		return err
	}

	if err := lm.restServer.Start(); err != nil {
		lm.setState(StateError)
		return err
	}

	if lm.inputSource != nil {
		if err := lm.inputSource.Start(); err != nil {
			lm.logger.Warn("Local input not available", zap.Error(err))
		}
	}

	// Boot homing runs in the background; failures land the orchestrator
	// in fault, recoverable via clear-fault. They never crash the process.
	go func() {
		if err := lm.orchestrator.Initialize(context.Background()); err != nil {
			lm.logger.Error("Initialization failed, waiting for clear-fault", zap.Error(err))
		}
	}()

	lm.setState(StateRunning)

	lm.logger.Info("Station started",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("coordination_port", lm.config.Network.ListenPort),
		zap.Bool("sender", lm.config.Network.IsSender))

	return nil
}

// Shutdown tears the station down in dependency order: coordination first
// so no new remote commands arrive, then motion, then local input and the
// outer surfaces.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down station")
		lm.setState(StateStopping)

		lm.channel.Stop()

		lm.orchestrator.Shutdown()
		lm.controller.Close()

		if lm.inputSource != nil {
			if err := lm.inputSource.Close(); err != nil {
				lm.logger.Warn("Input close failed", zap.Error(err))
			}
		}

		timeout := lm.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("rest api shutdown failed: %w", err)
		}

		if lm.storage != nil {
			lm.storage.Close()
		}

		lm.setState(StateStopped)
		lm.logger.Info("Shutdown complete")
	})

	return shutdownErr
}

// StationStatus implements rest.StationProvider.
func (lm *LifecycleManager) StationStatus() rest.StationStatusResponse {
	status := lm.orchestrator.Status()

	return rest.StationStatusResponse{
		StationID:     lm.config.Station.ID,
		StationName:   lm.config.Station.Name,
		State:         string(status.State),
		ActuatorState: string(lm.controller.State()),
		Looping:       status.Looping,
		Cycle:         status.Cycle,
		LastError:     status.LastError,
		Units:         lm.controller.UnitStatuses(),
		Timestamp:     time.Now().Unix(),
	}
}

// ExecuteCommand implements rest.StationProvider.
func (lm *LifecycleManager) ExecuteCommand(name, source string) error {
	cmd, ok := sequence.ParseCommand(name)
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}

	if !lm.orchestrator.Command(cmd, source) {
		return fmt.Errorf("station is shutting down")
	}
	return nil
}

func (lm *LifecycleManager) setState(state ProcessState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = state
}

// State returns the coarse process state.
func (lm *LifecycleManager) State() ProcessState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}
