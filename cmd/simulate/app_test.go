package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/CourierBid/config"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/BearBump/CourierBid/internal/models"
	"github.com/BearBump/CourierBid/internal/services/courier"
	"github.com/BearBump/CourierBid/internal/services/dispatcher"
	"github.com/BearBump/CourierBid/internal/storage/memdispatch"
	"github.com/stretchr/testify/require"
)

func fastCouriers() *courier.Config {
	return &courier.Config{
		ReportInterval:   50 * time.Millisecond,
		DecisionDelayMin: time.Millisecond,
		DecisionDelayMax: 30 * time.Millisecond,
		DeliveryMin:      100 * time.Millisecond,
		DeliveryMax:      100 * time.Millisecond,
	}
}

func TestRunSimulation_AssignsEveryJob(t *testing.T) {
	cfg := &config.Config{
		Backend:  config.BackendMemory,
		Dispatch: config.DispatchConfig{CycleDelaySeconds: 1},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	report, err := runSimulation(ctx, cfg, simOpts{
		couriers: 3,
		cycles:   2,
		window:   300 * time.Millisecond,
		warmup:   100 * time.Millisecond,
		courier:  fastCouriers(),
	}, logger.NewDiscard())
	require.NoError(t, err)

	require.Equal(t, int64(2), report.Dispatcher.TotalAssigned)
	require.Equal(t, 2, report.Audited)
	require.Empty(t, report.Violations)
	require.Len(t, report.Couriers, 3)

	var won, offers int64
	for _, c := range report.Couriers {
		won += c.Won
		offers += c.Offers
	}
	// the last assignment may still be in flight when the agents stop
	require.GreaterOrEqual(t, won, int64(1))
	require.Equal(t, int64(6), offers)
}

func TestAgentsAndDispatcher_WinnerDeliversThenFreesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store := memdispatch.New()
	require.NoError(t, store.AddRestaurant(ctx, models.Restaurant{
		ID: "r1", Name: "Chez Test", Position: models.Position{Lon: 2.35, Lat: 48.85},
	}, []models.MenuItem{{Item: "Quiche", Price: 9}}))

	cfg := *fastCouriers()
	cfg.DeliveryMin, cfg.DeliveryMax = 800*time.Millisecond, 800*time.Millisecond
	deps := courier.Deps{Locations: store, Feed: store, Bids: store}
	ids := []string{"courier-1", "courier-2"}
	agentCtx, stopAgents := context.WithCancel(ctx)
	done := make(chan error, len(ids))
	for _, id := range ids {
		a := courier.New(id, deps, courier.NewTiming(cfg, nil), nil)
		go func() { done <- a.Run(agentCtx) }()
	}
	defer func() {
		stopAgents()
		for range ids {
			require.NoError(t, <-done)
		}
	}()

	status := func(id string) models.CourierStatus {
		c, err := store.Courier(ctx, id)
		if err != nil {
			return ""
		}
		return c.Status
	}
	require.Eventually(t, func() bool {
		for _, id := range ids {
			if !store.Listening(id) || status(id) != models.CourierStatusAvailable {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	d := dispatcher.New(dispatcher.Deps{
		Locations: store,
		Notifier:  store,
		Jobs:      store,
		Bids:      store,
		Watcher:   store,
		Catalog:   store,
	}, nil).WithSettings(200*time.Millisecond, 5)

	first, err := d.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, dispatcher.OutcomeAssigned, first.Outcome)
	require.Equal(t, 2, first.Offered)
	winner := first.Winner

	require.Eventually(t, func() bool {
		return status(winner) == models.CourierStatusOnDelivery
	}, time.Second, 5*time.Millisecond)

	// a courier on delivery is not offered the next job
	second, err := d.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, second.Offered)
	require.NotEqual(t, winner, second.Winner)

	require.Eventually(t, func() bool {
		return status(winner) == models.CourierStatusAvailable
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRunSimulation_CanceledDuringWarmup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	report, err := runSimulation(ctx, &config.Config{Backend: config.BackendMemory}, simOpts{
		couriers: 1,
		warmup:   time.Hour,
		courier:  fastCouriers(),
	}, logger.NewDiscard())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	require.Zero(t, report.Audited)
}

func TestRootCmd_PrintsReport(t *testing.T) {
	t.Setenv("configPath", "")
	cmd := newRootCmd()
	out := new(strings.Builder)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--couriers", "0", "--cycles", "1", "--window", "100ms", "--warmup", "0s"})
	require.NoError(t, cmd.Execute())

	var report Report
	require.NoError(t, json.Unmarshal([]byte(out.String()), &report))
	require.Equal(t, int64(1), report.Dispatcher.TotalAssigned+report.Dispatcher.TotalExpired+report.Dispatcher.TotalNoCouriers)
}
