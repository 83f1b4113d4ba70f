package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"blaze/internal/client"
	expmodels "blaze/internal/experiment/models"
	"blaze/internal/experiment/registry"
	"blaze/internal/platform/config"
	"blaze/internal/platform/logger"
	"blaze/internal/platform/redis"
	"blaze/internal/storage"
	"blaze/internal/telemetry/collector"
	"blaze/internal/telemetry/models"
	id "blaze/pkg/domain"
	"blaze/pkg/platform/circuit"
)

const closeTimeout = 10 * time.Second

type tally struct {
	mu          sync.Mutex
	split       map[id.ExperimentID]map[id.VariantID]int
	mismatches  int
	notEnrolled map[id.ExperimentID]int
	closeErrors int
}

func (t *tally) record(exp id.ExperimentID, variant id.VariantID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.split[exp] == nil {
		t.split[exp] = map[id.VariantID]int{}
	}
	t.split[exp][variant]++
}

func runSimulation(ctx context.Context, out io.Writer) error {
	log := logger.New(logLevel, "text")

	reg, err := registry.LoadFile(experimentsFile)
	if err != nil {
		return err
	}
	active := reg.ListActive()
	if len(active) == 0 {
		return fmt.Errorf("no active experiments in %s", experimentsFile)
	}

	cfg := config.TelemetryFromEnv()
	cfg.CollectorURL = collectorURL

	newStorage, closeStorage, err := storageFactory(ctx, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	breaker := circuit.New("collector",
		circuit.WithFailureThreshold(5),
		circuit.WithCooldown(30*time.Second),
	)
	sender := collector.New(cfg.CollectorURL, collector.WithBreaker(breaker))

	t := &tally{
		split:       map[id.ExperimentID]map[id.VariantID]int{},
		notEnrolled: map[id.ExperimentID]int{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	start := time.Now()
	for i := range visitors {
		g.Go(func() error {
			return simulateVisitor(gctx, reg, active, newStorage(i), sender, cfg, log, t)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printSplit(out, active, t, time.Since(start))
	if breaker.IsOpen() {
		fmt.Fprintf(out, "\ncollector circuit open: events remain in visitor buffers\n")
	}
	return nil
}

func simulateVisitor(
	ctx context.Context,
	reg *registry.Registry,
	active []expmodels.Experiment,
	store client.Storage,
	sender *collector.Client,
	cfg config.Telemetry,
	log *slog.Logger,
	t *tally,
) error {
	first := map[id.ExperimentID]id.VariantID{}
	for view := range pageViews {
		c := client.New(reg, store, sender, cfg, client.WithLogger(log))
		if err := c.Start(ctx); err != nil {
			return err
		}

		for _, exp := range active {
			variant, ok := c.Variant(exp.ID)
			if !ok {
				if view == 0 {
					t.mu.Lock()
					t.notEnrolled[exp.ID]++
					t.mu.Unlock()
				}
				continue
			}
			if view == 0 {
				first[exp.ID] = variant
				t.record(exp.ID, variant)
			} else if first[exp.ID] != variant {
				t.mu.Lock()
				t.mismatches++
				t.mu.Unlock()
			}
			trackMetrics(ctx, c, exp, variant)
		}

		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		err := c.Close(closeCtx)
		cancel()
		if err != nil {
			t.mu.Lock()
			t.closeErrors++
			t.mu.Unlock()
		}
	}
	return nil
}

// trackMetrics emits the denominator event for every metric and converts with
// the configured probability. Every variant but the first gets the lift.
func trackMetrics(ctx context.Context, c *client.Client, exp expmodels.Experiment, variant id.VariantID) {
	p := conversionRate
	if len(exp.Variants) > 0 && exp.Variants[0].ID != variant {
		p += lift
	}
	for _, m := range exp.Metrics {
		_, _ = c.Track(ctx, m.Denominator, models.Properties{"experiment_id": models.String(exp.ID.String())})
		if rand.Float64() < p {
			_, _ = c.Track(ctx, m.Numerator, models.Properties{"experiment_id": models.String(exp.ID.String())})
		}
	}
}

// storageFactory returns per-visitor storage. With redis each visitor gets its
// own key prefix and the session store expires like a browser session.
func storageFactory(ctx context.Context, log *slog.Logger) (func(int) client.Storage, func(), error) {
	if redisURL == "" {
		return func(int) client.Storage {
			return client.Storage{
				Persistent: storage.NewInMemoryStore(),
				Session:    storage.NewInMemoryStore(),
			}
		}, func() {}, nil
	}

	rcfg := config.FromEnv().Redis
	rcfg.URL = redisURL
	rdb, err := redis.New(ctx, rcfg)
	if err != nil {
		return nil, nil, err
	}
	runID := time.Now().UnixNano()
	log.Info("visitor storage in redis", "run", runID)
	persistent := storage.NewRedisStore(rdb)
	session := storage.NewRedisStore(rdb, storage.WithTTL(rcfg.SessionTTL))
	return func(i int) client.Storage {
			prefix := fmt.Sprintf("sim:%d:%d:", runID, i)
			return client.Storage{
				Persistent: storage.WithPrefix(persistent, prefix+"local:"),
				Session:    storage.WithPrefix(session, prefix+"session:"),
			}
		}, func() {
			_ = rdb.Close()
		}, nil
}

func printSplit(out io.Writer, active []expmodels.Experiment, t *tally, elapsed time.Duration) {
	fmt.Fprintf(out, "%d visitors, %d page views each, %s\n\n", visitors, pageViews, elapsed.Round(time.Millisecond))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXPERIMENT\tVARIANT\tWEIGHT\tVISITORS\tSHARE")
	for _, exp := range active {
		counts := t.split[exp.ID]
		total := 0
		for _, n := range counts {
			total += n
		}
		ids := make([]id.VariantID, 0, len(exp.Variants))
		weights := map[id.VariantID]float64{}
		for _, v := range exp.Variants {
			ids = append(ids, v.ID)
			weights[v.ID] = v.Weight
		}
		sort.SliceStable(ids, func(i, j int) bool { return weights[ids[i]] > weights[ids[j]] })
		for _, v := range ids {
			share := 0.0
			if total > 0 {
				share = float64(counts[v]) / float64(total)
			}
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%.3f\n", exp.ID, v, weights[v], counts[v], share)
		}
		fmt.Fprintf(w, "%s\t(not enrolled)\t\t%d\t\n", exp.ID, t.notEnrolled[exp.ID])
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\nsticky mismatches: %d\n", t.mismatches)
	if t.closeErrors > 0 {
		fmt.Fprintf(out, "clients that failed to close in time: %d\n", t.closeErrors)
	}
}
