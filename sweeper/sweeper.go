package sweeper

import (
	"context"
	"time"

	"github.com/procyon-projects/chrono"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fiware/message-backplane/authz"
	"github.com/fiware/message-backplane/logging"
	"github.com/fiware/message-backplane/store"
)

var logger = logging.Log()

var (
	sweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backplane_sweep_cycles_total",
		Help: "Number of completed retention sweep cycles.",
	})
	sweepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backplane_sweep_failures_total",
		Help: "Number of failed sweep tasks, by task.",
	}, []string{"task"})
	messagesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backplane_sweep_messages_deleted_total",
		Help: "Number of expired messages deleted by the sweeper.",
	})
)

/**
* Recurring maintenance task, independent of request handling: expires
* messages per bus retention and deletes expired tokens. Both sweeps are best
* effort, a failing cycle is logged and the schedule continues.
 */
type RetentionSweeper struct {
	messageStore *store.MessageStore
	graph        *authz.Graph
	interval     time.Duration

	scheduler chrono.TaskScheduler
	task      chrono.ScheduledTask
}

func NewRetentionSweeper(messageStore *store.MessageStore, graph *authz.Graph, interval time.Duration) *RetentionSweeper {
	return &RetentionSweeper{
		messageStore: messageStore,
		graph:        graph,
		interval:     interval,
	}
}

func (sweeper *RetentionSweeper) Start() error {
	sweeper.scheduler = chrono.NewDefaultTaskScheduler()
	task, err := sweeper.scheduler.ScheduleWithFixedDelay(sweeper.runCycle, sweeper.interval)
	if err != nil {
		return err
	}
	sweeper.task = task
	logger.Infof("Retention sweeper scheduled every %v.", sweeper.interval)
	return nil
}

func (sweeper *RetentionSweeper) Stop() {
	if sweeper.task != nil {
		sweeper.task.Cancel()
	}
	if sweeper.scheduler != nil {
		<-sweeper.scheduler.Shutdown()
	}
}

// Per-cycle error boundary: nothing a single cycle does may terminate the
// scheduled task.
func (sweeper *RetentionSweeper) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Cleanup cycle panicked: %v.", r)
			sweepFailures.WithLabelValues("cycle").Inc()
		}
	}()

	deleted, err := sweeper.messageStore.SweepExpired(ctx)
	if err != nil {
		logger.Errorf("Backplane messages cleanup task error: %v.", err)
		sweepFailures.WithLabelValues("messages").Inc()
	} else {
		messagesDeleted.Add(float64(deleted))
	}

	if err := sweeper.graph.DeleteExpired(ctx); err != nil {
		logger.Errorf("Backplane token cleanup task error: %v.", err)
		sweepFailures.WithLabelValues("tokens").Inc()
	}

	sweepCycles.Inc()
}
